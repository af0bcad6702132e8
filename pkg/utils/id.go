package utils

import "github.com/google/uuid"

// GenRequestID returns a new request correlation identifier.
func GenRequestID() string { return uuid.NewString() }
