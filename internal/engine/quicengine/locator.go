// Package quicengine is a content-addressed transfer engine speaking
// QUIC directly between sender and receiver. The sender's locator
// carries everything a receiver needs: the collection root, the
// sender's dial addresses, and the certificate fingerprint to pin.
package quicengine

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/arkdrop/arkdrop/internal/engine"
	"github.com/arkdrop/arkdrop/pkg/collection"
	"github.com/arkdrop/arkdrop/pkg/ticket"
)

// locatorFormat tags the descriptor layout. Bump on incompatible
// changes; receivers reject tags they do not know.
const locatorFormat byte = 0x01

const maxLocatorAddrs = 8

// descriptor is the decoded form of a locator.
type descriptor struct {
	Root        collection.Hash
	Fingerprint [32]byte
	Addrs       []string
}

// encodeLocator packs a descriptor into the base64url form carried by
// tickets. Addresses are kept in order until the encoded form would
// exceed the ticket's locator limit, then the rest are dropped.
func encodeLocator(d descriptor) string {
	addrs := d.Addrs
	if len(addrs) > maxLocatorAddrs {
		addrs = addrs[:maxLocatorAddrs]
	}
	rawLen := 1 + 32 + 32 + 1
	kept := 0
	for _, addr := range addrs {
		next := rawLen + 1 + len(addr)
		if base64.RawURLEncoding.EncodedLen(next) > ticket.MaxLocatorLength {
			break
		}
		rawLen = next
		kept++
	}
	addrs = addrs[:kept]

	var buf bytes.Buffer
	buf.Grow(rawLen)
	buf.WriteByte(locatorFormat)
	buf.Write(d.Root[:])
	buf.Write(d.Fingerprint[:])
	buf.WriteByte(byte(len(addrs)))
	for _, addr := range addrs {
		buf.WriteByte(byte(len(addr)))
		buf.WriteString(addr)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes())
}

// decodeLocator unpacks a locator produced by encodeLocator. Locators
// from other engines fail with ErrUnsupportedFormat.
func decodeLocator(locator string) (descriptor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(locator)
	if err != nil {
		return descriptor{}, fmt.Errorf("%w: not base64url", engine.ErrUnsupportedFormat)
	}
	if len(raw) < 1 || raw[0] != locatorFormat {
		return descriptor{}, fmt.Errorf("%w: unknown descriptor tag", engine.ErrUnsupportedFormat)
	}
	raw = raw[1:]

	var d descriptor
	if len(raw) < len(d.Root)+len(d.Fingerprint)+1 {
		return descriptor{}, fmt.Errorf("%w: descriptor truncated", engine.ErrUnsupportedFormat)
	}
	copy(d.Root[:], raw[:32])
	copy(d.Fingerprint[:], raw[32:64])
	count := int(raw[64])
	raw = raw[65:]
	if count == 0 || count > maxLocatorAddrs {
		return descriptor{}, fmt.Errorf("%w: bad address count %d", engine.ErrUnsupportedFormat, count)
	}
	for i := 0; i < count; i++ {
		if len(raw) < 1 {
			return descriptor{}, fmt.Errorf("%w: descriptor truncated", engine.ErrUnsupportedFormat)
		}
		n := int(raw[0])
		raw = raw[1:]
		if n == 0 || len(raw) < n {
			return descriptor{}, fmt.Errorf("%w: bad address length", engine.ErrUnsupportedFormat)
		}
		d.Addrs = append(d.Addrs, string(raw[:n]))
		raw = raw[n:]
	}
	if len(raw) != 0 {
		return descriptor{}, fmt.Errorf("%w: trailing bytes", engine.ErrUnsupportedFormat)
	}
	return d, nil
}
