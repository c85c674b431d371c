// Package collection models a named, ordered set of content-addressed blobs:
// the unit of one transfer. The metadata blob records the file names; the
// hash sequence pairs them with content hashes, metadata first.
package collection

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// metadataHeader is the fixed tag identifying the metadata blob format.
// Changing the encoding requires a new tag.
const metadataHeader = "arkdrop-collection-v1"

const (
	maxNameLength = 4096
	maxNameCount  = 1 << 20
)

var (
	// ErrInvalidMetadata indicates metadata bytes with a wrong header tag or
	// an undecodable name table.
	ErrInvalidMetadata = errors.New("invalid collection metadata")
	// ErrMetadataMismatch indicates a hash sequence whose length does not
	// match the metadata's name count.
	ErrMetadataMismatch = errors.New("collection metadata does not match hash sequence")
)

// Metadata is the decoded collection metadata blob: an ordered file name
// list. Sequence order is transfer order. Immutable once parsed.
type Metadata struct {
	Names []string
}

// ParseMetadata decodes a metadata blob. The header tag must match exactly.
// Names are count- and length-prefixed, so names containing spaces or any
// other byte survive the round trip.
func ParseMetadata(b []byte) (Metadata, error) {
	if len(b) < len(metadataHeader) || string(b[:len(metadataHeader)]) != metadataHeader {
		return Metadata{}, fmt.Errorf("%w: header tag mismatch", ErrInvalidMetadata)
	}
	rest := b[len(metadataHeader):]

	if len(rest) < 4 {
		return Metadata{}, fmt.Errorf("%w: truncated name count", ErrInvalidMetadata)
	}
	count := binary.BigEndian.Uint32(rest)
	rest = rest[4:]
	if count > maxNameCount {
		return Metadata{}, fmt.Errorf("%w: name count %d too large", ErrInvalidMetadata, count)
	}

	names := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 2 {
			return Metadata{}, fmt.Errorf("%w: truncated name length", ErrInvalidMetadata)
		}
		nameLen := int(binary.BigEndian.Uint16(rest))
		rest = rest[2:]
		if nameLen > maxNameLength {
			return Metadata{}, fmt.Errorf("%w: name length %d too large", ErrInvalidMetadata, nameLen)
		}
		if len(rest) < nameLen {
			return Metadata{}, fmt.Errorf("%w: truncated name", ErrInvalidMetadata)
		}
		names = append(names, string(rest[:nameLen]))
		rest = rest[nameLen:]
	}
	if len(rest) != 0 {
		return Metadata{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidMetadata, len(rest))
	}
	return Metadata{Names: names}, nil
}

// Encode is the inverse of ParseMetadata.
func (m Metadata) Encode() []byte {
	size := len(metadataHeader) + 4
	for _, name := range m.Names {
		size += 2 + len(name)
	}
	out := make([]byte, 0, size)
	out = append(out, metadataHeader...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(m.Names)))
	for _, name := range m.Names {
		out = binary.BigEndian.AppendUint16(out, uint16(len(name)))
		out = append(out, name...)
	}
	return out
}

// ValidateHashSeqLen enforces the invariant linking metadata to the hash
// sequence: the sequence holds the metadata hash plus exactly one hash per
// name, so its length must be len(Names)+1.
func (m Metadata) ValidateHashSeqLen(n int) error {
	if len(m.Names)+1 != n {
		return fmt.Errorf("%w: %d names but %d hashes", ErrMetadataMismatch, len(m.Names), n)
	}
	return nil
}
