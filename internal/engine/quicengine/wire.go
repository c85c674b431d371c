package quicengine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/arkdrop/arkdrop/pkg/collection"
)

// Stream protocol. Every stream starts with a 4-byte magic naming the
// request kind, the collection root, and the confirmation byte. Blob
// requests add the requested hash. The server answers with a status
// byte; blob payloads follow as (offset, length, data) records.
const (
	magicHello = "ADH1"
	magicBlob  = "ADB1"
)

const (
	statusOK byte = iota
	statusBadConfirmation
	statusNotFound
)

// maxRecordLen bounds a single payload record. Anything larger is a
// protocol error, not a big buffer.
const maxRecordLen = 8 << 20

var errBadMagic = errors.New("quicengine: bad request magic")

type request struct {
	Magic        string
	Root         collection.Hash
	Confirmation uint8
	Blob         collection.Hash // blob requests only
}

func writeRequest(w io.Writer, req request) error {
	buf := make([]byte, 0, 4+32+1+32)
	buf = append(buf, req.Magic...)
	buf = append(buf, req.Root[:]...)
	buf = append(buf, req.Confirmation)
	if req.Magic == magicBlob {
		buf = append(buf, req.Blob[:]...)
	}
	_, err := w.Write(buf)
	return err
}

func readRequest(r io.Reader) (request, error) {
	var req request
	var head [4 + 32 + 1]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return req, fmt.Errorf("read request header: %w", err)
	}
	req.Magic = string(head[:4])
	copy(req.Root[:], head[4:36])
	req.Confirmation = head[36]
	switch req.Magic {
	case magicHello:
	case magicBlob:
		if _, err := io.ReadFull(r, req.Blob[:]); err != nil {
			return req, fmt.Errorf("read blob hash: %w", err)
		}
	default:
		return req, fmt.Errorf("%w: %q", errBadMagic, req.Magic)
	}
	return req, nil
}

func writeStatus(w io.Writer, status byte) error {
	_, err := w.Write([]byte{status})
	return err
}

func readStatus(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read status: %w", err)
	}
	return b[0], nil
}

func writeSize(w io.Writer, size uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], size)
	_, err := w.Write(b[:])
	return err
}

func readSize(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read size: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// writeRecord frames one payload chunk as offset, length, data.
func writeRecord(w io.Writer, offset uint64, data []byte) error {
	var head [12]byte
	binary.BigEndian.PutUint64(head[:8], offset)
	binary.BigEndian.PutUint32(head[8:], uint32(len(data)))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readRecord reads one payload chunk into buf. Records larger than buf
// fail rather than grow it. io.EOF on a record boundary means the
// payload is complete.
func readRecord(r io.Reader, buf []byte) (offset uint64, n int, err error) {
	var head [12]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if err == io.EOF {
			return 0, 0, io.EOF
		}
		return 0, 0, fmt.Errorf("read record header: %w", err)
	}
	offset = binary.BigEndian.Uint64(head[:8])
	length := binary.BigEndian.Uint32(head[8:])
	if length == 0 || length > maxRecordLen {
		return 0, 0, fmt.Errorf("quicengine: bad record length %d", length)
	}
	if int(length) > len(buf) {
		return 0, 0, fmt.Errorf("quicengine: record exceeds buffer: %d > %d", length, len(buf))
	}
	if _, err := io.ReadFull(r, buf[:length]); err != nil {
		return 0, 0, fmt.Errorf("read record body: %w", err)
	}
	return offset, int(length), nil
}
