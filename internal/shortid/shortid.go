// Package shortid implements the reversible, salted encoding used to
// obfuscate run ids in proxy hostnames and paths (spec.md §4.5): a run
// id must round-trip through the encoding exactly, it must not leak
// the raw integer to casual inspection, and it must fit in a DNS label
// for the hostname addressing scheme.
//
// No hashids/sqids-style dependency appears anywhere in the example
// corpus, so this is a small hand-rolled codec over the standard
// library's encoding/binary and crypto/hmac; see DESIGN.md for why
// nothing in the corpus could be wired in for this instead.
package shortid

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"strings"
)

// ErrInvalid is returned when a short id fails checksum verification,
// meaning it was tampered with or was never produced by Encode.
var ErrInvalid = errors.New("shortid: invalid or tampered id")

// checksumSize is the number of checksum bytes appended to the raw id
// before encoding. 4 bytes keeps the encoded string short while making
// forgery impractical given the salt is a server secret.
const checksumSize = 4

// Codec encodes and decodes run ids with a server-held salt. The zero
// value is not usable; construct with New.
type Codec struct {
	salt []byte
}

// New builds a Codec from the configured salt. The salt must be
// non-empty; reusing an empty salt would make ids trivially forgeable.
func New(salt string) (*Codec, error) {
	if salt == "" {
		return nil, errors.New("shortid: salt must not be empty")
	}
	return &Codec{salt: []byte(salt)}, nil
}

// Encode renders id as a lowercase, DNS-label-safe short id.
func (c *Codec) Encode(id int64) string {
	buf := make([]byte, 8+checksumSize)
	binary.BigEndian.PutUint64(buf[:8], uint64(id))
	copy(buf[8:], c.mac(buf[:8]))
	enc := base32.HexEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return strings.ToLower(enc)
}

// Decode recovers the run id encoded in s, verifying its checksum.
// Returns ErrInvalid if s was not produced by Encode with this salt.
func (c *Codec) Decode(s string) (int64, error) {
	buf, err := base32.HexEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(s))
	if err != nil || len(buf) != 8+checksumSize {
		return 0, ErrInvalid
	}
	want := c.mac(buf[:8])
	if !hmac.Equal(want, buf[8:]) {
		return 0, ErrInvalid
	}
	return int64(binary.BigEndian.Uint64(buf[:8])), nil
}

func (c *Codec) mac(data []byte) []byte {
	h := hmac.New(sha256.New, c.salt)
	h.Write(data)
	return h.Sum(nil)[:checksumSize]
}
