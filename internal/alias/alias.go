// Package alias issues short opaque identity codes for participants. A code
// is what moderators use to reference a participant without seeing the raw
// transport id. Codes are fixed-length, drawn from an unambiguous
// alphanumeric alphabet, and regenerated on collision by the caller.
package alias

import (
	"crypto/rand"
	"fmt"
)

// alphabet omits 0/O and 1/I/L to keep codes unambiguous when read aloud.
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// DefaultLength is the issued code length when none is configured.
const DefaultLength = 6

// Issuer generates identity codes of a fixed length.
type Issuer struct {
	length int
}

// NewIssuer returns an issuer producing codes of the given length.
// A non-positive length falls back to DefaultLength.
func NewIssuer(length int) *Issuer {
	if length <= 0 {
		length = DefaultLength
	}
	return &Issuer{length: length}
}

// Generate returns a new random code. Uniqueness is not guaranteed here;
// callers check against issued codes and retry on collision.
func (i *Issuer) Generate() (string, error) {
	buf := make([]byte, i.length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("alias: read random: %w", err)
	}
	for n, b := range buf {
		buf[n] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// Length returns the configured code length.
func (i *Issuer) Length() int { return i.length }
