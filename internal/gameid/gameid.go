// Package gameid generates sortable game identifiers: UUIDv7 encoded as
// 26 characters of Crockford base32. Ids created later sort later, which
// keeps snapshot directories and game listings in creation order.
package gameid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Generate returns a new game id.
func Generate() string {
	u, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to a
		// plain random UUID rather than refusing to create the game.
		u = uuid.New()
	}
	return encode(u)
}

// encode packs the 128 uuid bits into 26 base32 characters, msb first.
// 26*5 = 130 bits, so the leading character carries only 3 bits and never
// exceeds '7'.
func encode(u uuid.UUID) string {
	var out [26]byte
	var acc uint64
	bits := 0
	pos := 25
	for i := 15; i >= 0; i-- {
		acc |= uint64(u[i]) << bits
		bits += 8
		for bits >= 5 && pos > 0 {
			out[pos] = alphabet[acc&0x1f]
			acc >>= 5
			bits -= 5
			pos--
		}
	}
	out[0] = alphabet[acc&0x1f]
	return string(out[:])
}

// Validate checks that an id has the generated shape. It does not prove
// the id exists, only that it could have.
func Validate(id string) error {
	if len(id) != 26 {
		return fmt.Errorf("game id must be 26 characters, got %d", len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("game id first character must be 0-7, got %c", id[0])
	}
	for i, c := range id {
		if !strings.ContainsRune(alphabet, c) {
			return fmt.Errorf("invalid character %c at position %d", c, i)
		}
	}
	return nil
}
