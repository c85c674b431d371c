package collection

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// HashSize is the size of a content hash in bytes.
const HashSize = sha256.Size

// Hash is a content address: the SHA-256 digest of a blob's bytes.
type Hash [HashSize]byte

// HashOf returns the content hash of data.
func HashOf(data []byte) Hash {
	return sha256.Sum256(data)
}

// String returns the lowercase hex form of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash parses a lowercase hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != HashSize*2 {
		return h, fmt.Errorf("invalid hash length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash: %w", err)
	}
	copy(h[:], b)
	return h, nil
}

// ErrInvalidHashSeq indicates hash sequence bytes that are not a whole
// number of hashes or are empty.
var ErrInvalidHashSeq = errors.New("invalid hash sequence")

// ParseHashSeq decodes a hash sequence blob: the concatenation of content
// hashes whose first element addresses the collection metadata blob and whose
// remaining elements address the files, in collection order.
func ParseHashSeq(b []byte) ([]Hash, error) {
	if len(b) == 0 || len(b)%HashSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHashSeq, len(b))
	}
	seq := make([]Hash, len(b)/HashSize)
	for i := range seq {
		copy(seq[i][:], b[i*HashSize:])
	}
	return seq, nil
}

// EncodeHashSeq is the inverse of ParseHashSeq.
func EncodeHashSeq(seq []Hash) []byte {
	out := make([]byte, 0, len(seq)*HashSize)
	for _, h := range seq {
		out = append(out, h[:]...)
	}
	return out
}
