package codec

import (
	"encoding/binary"
	"errors"
	"io"
)

// Preamble opens every connection before the first frame.
var Preamble = [4]byte{'T', 'G', 'W', 0}

const (
	// LenPrefixSize is the width of the frame length prefix.
	LenPrefixSize = 4

	// DefaultMaxPayload caps inbound payload sizes. A prefix beyond the cap
	// means the stream lost frame alignment; there is no way back short of
	// reconnecting.
	DefaultMaxPayload = 64 * 1024
)

var (
	ErrFraming     = errors.New("codec: framing corrupt")
	ErrBadPreamble = errors.New("codec: bad preamble")
)

// WritePreamble sends the connection preamble.
func WritePreamble(w io.Writer) error {
	_, err := w.Write(Preamble[:])
	return err
}

// ReadPreamble consumes and verifies the connection preamble.
func ReadPreamble(r io.Reader) error {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return err
	}
	if got != Preamble {
		return ErrBadPreamble
	}
	return nil
}

// FrameReader reads length-prefixed payloads from a stream. The returned
// payload is only valid until the next Read call.
type FrameReader struct {
	r          io.Reader
	maxPayload uint32
	buf        []byte
	prefix     [LenPrefixSize]byte
}

func NewFrameReader(r io.Reader, maxPayload uint32) *FrameReader {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	return &FrameReader{r: r, maxPayload: maxPayload}
}

// Read returns the next frame payload. ErrFraming means the prefix itself is
// unusable and the connection must be dropped; a payload whose body fails to
// decode later does not affect framing.
func (fr *FrameReader) Read() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(fr.prefix[:])
	if n < PayloadHeaderSize || n > fr.maxPayload {
		return nil, ErrFraming
	}
	if uint32(cap(fr.buf)) < n {
		fr.buf = make([]byte, n)
	}
	buf := fr.buf[:n]
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// FrameWriter writes length-prefixed payloads to a stream. Prefix and payload
// go out in one Write so concurrent readers never observe a torn frame; the
// writer itself expects a single goroutine.
type FrameWriter struct {
	w   io.Writer
	buf []byte
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

func (fw *FrameWriter) Write(payload []byte) error {
	total := LenPrefixSize + len(payload)
	if cap(fw.buf) < total {
		fw.buf = make([]byte, total)
	}
	buf := fw.buf[:total]
	binary.BigEndian.PutUint32(buf[0:LenPrefixSize], uint32(len(payload)))
	copy(buf[LenPrefixSize:], payload)
	_, err := fw.w.Write(buf)
	return err
}
