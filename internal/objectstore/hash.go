package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// hashingReader wraps a reader, feeding every byte read through a
// sha256 digest so the caller can compute a content hash while
// streaming the data on to its destination in one pass.
type hashingReader struct {
	r io.Reader
	h hash.Hash
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, h: sha256.New()}
}

func (h *hashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.h.Write(p[:n])
	}
	return n, err
}

// HexDigest returns the lowercase hex sha256 digest of everything read
// so far. Call only after the reader has been fully consumed.
func (h *hashingReader) HexDigest() string {
	return hex.EncodeToString(h.h.Sum(nil))
}
