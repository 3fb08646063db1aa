package bookings

import (
	"crypto/rand"
	"fmt"
)

const (
	referencePrefix = "NMD"
	referenceLength = 8

	// referenceAlphabet omits 0/O and 1/I so agents can read references
	// over the phone.
	referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewReference generates a human-facing booking reference. Uniqueness is
// enforced by the database; Create retries on collision.
func NewReference() (string, error) {
	buf := make([]byte, referenceLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reference: %w", err)
	}
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return fmt.Sprintf("%s-%s", referencePrefix, string(buf)), nil
}
