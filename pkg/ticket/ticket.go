// Package ticket implements the user-shareable transfer ticket codec.
// A ticket is the engine's connection locator plus a one-byte confirmation
// code, formatted as "<locator>:<confirmation>".
package ticket

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MinLocatorLength is the shortest locator accepted by Decode.
	MinLocatorLength = 10
	// MaxLocatorLength is the longest locator accepted by Decode.
	MaxLocatorLength = 200
)

// ErrInvalidTicket indicates the ticket string is malformed.
var ErrInvalidTicket = errors.New("invalid ticket format")

// Ticket is a parsed transfer ticket. It is immutable after construction:
// built once by the sender from the engine's locator, or parsed once by the
// receiver from user input.
type Ticket struct {
	Locator      string
	Confirmation uint8
}

// Encode formats a ticket as "<locator>:<confirmation>". It never fails;
// validation happens on the decode side.
func Encode(locator string, confirmation uint8) string {
	return locator + ":" + strconv.Itoa(int(confirmation))
}

// String returns the wire form of the ticket.
func (t Ticket) String() string {
	return Encode(t.Locator, t.Confirmation)
}

// Decode parses a combined ticket string. The string is split at the LAST
// colon; if the right side parses as an unsigned byte that pair is returned.
// Otherwise the whole string is treated as a bare locator with confirmation 0
// (backward compatibility with tickets issued before confirmation codes).
// A string that passes neither path fails with ErrInvalidTicket.
func Decode(s string) (Ticket, error) {
	if idx := strings.LastIndexByte(s, ':'); idx >= 0 {
		left, right := s[:idx], s[idx+1:]
		if conf, err := strconv.ParseUint(right, 10, 8); err == nil {
			if err := validateLocator(left); err != nil {
				return Ticket{}, err
			}
			return Ticket{Locator: left, Confirmation: uint8(conf)}, nil
		}
	}
	if err := validateLocator(s); err != nil {
		return Ticket{}, err
	}
	return Ticket{Locator: s, Confirmation: 0}, nil
}

// IsValid reports whether s decodes as a ticket. Pure validation, no I/O.
func IsValid(s string) bool {
	_, err := Decode(s)
	return err == nil
}

func validateLocator(locator string) error {
	if len(locator) < MinLocatorLength || len(locator) > MaxLocatorLength {
		return fmt.Errorf("%w: locator length %d outside [%d, %d]",
			ErrInvalidTicket, len(locator), MinLocatorLength, MaxLocatorLength)
	}
	for i := 0; i < len(locator); i++ {
		if !isLocatorChar(locator[i]) {
			return fmt.Errorf("%w: locator contains invalid character %q", ErrInvalidTicket, locator[i])
		}
	}
	return nil
}

func isLocatorChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '=' || c == '+' || c == '/':
		return true
	}
	return false
}
