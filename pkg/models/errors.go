package models

import (
	"errors"
	"fmt"
)

// Validation errors: rejected before any mutation or network call.
var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrSendInFlight   = errors.New("a send is already in flight")
	ErrUploadInFlight = errors.New("an upload is already in flight")
	ErrNoFiles        = errors.New("no files provided")
)

// Authentication errors: short-circuit with no side effects.
var (
	ErrUnauthorized      = errors.New("caller identity missing or invalid")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// TransportError wraps a network failure, non-success status or aborted
// stream from an upstream collaborator. Status is zero when the request
// never produced a response. Detail carries the upstream body verbatim
// when one was present.
type TransportError struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.Status, e.Detail)
	default:
		return fmt.Sprintf("%s: upstream status %d", e.Op, e.Status)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports an upstream body that matched none of
// the shapes the boundary decoders understand.
type MalformedResponseError struct {
	Op    string
	Shape string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: unexpected response shape: %s", e.Op, e.Shape)
}
