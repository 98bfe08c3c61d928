// Package id mints the identifiers used for accounts, credentials, web
// sessions, and ceremony state.
package id

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// rawLen is the number of random bytes behind each identifier.
const rawLen = 16

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a 26-character lowercase base32 identifier backed by 16
// random bytes. The version and variant bits of UUIDv4 are set on the raw
// bytes, so an id can be reformatted as a canonical UUID without losing
// entropy.
func NewID() (string, error) {
	raw := make([]byte, rawLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	raw[6] = (raw[6] & 0x0F) | 0x40
	raw[8] = (raw[8] & 0x3F) | 0x80
	return strings.ToLower(encoding.EncodeToString(raw)), nil
}
