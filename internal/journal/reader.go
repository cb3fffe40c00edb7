package journal

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"tradegw/internal/schema"
)

var (
	ErrBadMagic         = errors.New("journal record magic mismatch")
	ErrChecksumMismatch = errors.New("journal record checksum mismatch")
)

// Reader decodes journal records from a single segment stream.
type Reader struct {
	r         *bufio.Reader
	headerBuf [recordHeaderSize]byte
	sumBuf    [checksumSize]byte
	payload   []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next record. The payload slice is reused across calls;
// copy it to retain. io.EOF marks a clean end of the segment.
func (r *Reader) Next() (schema.EventHeader, []byte, error) {
	if _, err := io.ReadFull(r.r, r.headerBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return schema.EventHeader{}, nil, io.EOF
		}
		return schema.EventHeader{}, nil, fmt.Errorf("read record header: %w", err)
	}
	header, payloadLen, err := decodeRecordHeader(r.headerBuf[:])
	if err != nil {
		return schema.EventHeader{}, nil, err
	}
	if cap(r.payload) < payloadLen {
		r.payload = make([]byte, payloadLen)
	}
	payload := r.payload[:payloadLen]
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return schema.EventHeader{}, nil, fmt.Errorf("read record payload: %w", err)
	}
	if _, err := io.ReadFull(r.r, r.sumBuf[:]); err != nil {
		return schema.EventHeader{}, nil, fmt.Errorf("read record checksum: %w", err)
	}
	want := uint32(r.sumBuf[0]) | uint32(r.sumBuf[1])<<8 | uint32(r.sumBuf[2])<<16 | uint32(r.sumBuf[3])<<24
	if got := checksum(r.headerBuf[:], payload); got != want {
		return schema.EventHeader{}, nil, ErrChecksumMismatch
	}
	return header, payload, nil
}
