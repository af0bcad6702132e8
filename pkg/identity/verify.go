package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chatrelay/pkg/models"
)

// DefaultTolerance bounds accepted webhook timestamp skew, matching the
// provider's own verifier.
const DefaultTolerance = 5 * time.Minute

// secretPrefix marks provider-issued signing secrets; the remainder is
// base64 key material.
const secretPrefix = "whsec_"

// Verify checks the provider signature over the exact raw byte body.
// Signatures are computed over id.timestamp.body, so the body must be
// the bytes as received, never a re-serialized copy. The signature
// header may carry several space-separated "v1,<base64>" candidates; any
// match passes. Every failure mode returns ErrSignatureMismatch-wrapped
// errors and must leave no side effects.
func Verify(secret string, body []byte, msgID, timestamp, signature string, tolerance time.Duration) error {
	if msgID == "" || timestamp == "" || signature == "" {
		return fmt.Errorf("%w: missing signature headers", models.ErrSignatureMismatch)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", models.ErrSignatureMismatch)
	}
	if skew := time.Since(time.Unix(ts, 0)); skew > tolerance || skew < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", models.ErrSignatureMismatch)
	}

	key, err := signingKey(secret)
	if err != nil {
		return err
	}
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, candidate := range strings.Fields(signature) {
		parts := strings.SplitN(candidate, ",", 2)
		if len(parts) != 2 || parts[0] != "v1" {
			continue
		}
		if hmac.Equal([]byte(expected), []byte(parts[1])) {
			return nil
		}
	}
	return models.ErrSignatureMismatch
}

func signingKey(secret string) ([]byte, error) {
	raw := strings.TrimPrefix(secret, secretPrefix)
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		// secrets configured as plain strings are used as-is
		return []byte(raw), nil
	}
	return key, nil
}

// Sign produces a "v1,<base64>" signature for the given message. Used by
// tests and local tooling to fabricate provider deliveries.
func Sign(secret string, body []byte, msgID, timestamp string) string {
	key, _ := signingKey(secret)
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
