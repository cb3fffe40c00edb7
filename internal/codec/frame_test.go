package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"tradegw/internal/schema"
)

func TestFrameRoundTrip(t *testing.T) {
	var stream bytes.Buffer
	fw := NewFrameWriter(&stream)

	first := EncodePing(nil, schema.Ping{TimeNano: 10})
	second := EncodeTick(nil, schema.Tick{SubID: 1, Seq: 2})
	if err := fw.Write(first); err != nil {
		t.Fatalf("write first: %v", err)
	}
	if err := fw.Write(second); err != nil {
		t.Fatalf("write second: %v", err)
	}

	fr := NewFrameReader(&stream, 0)
	got, err := fr.Read()
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Fatalf("first frame mismatch: got %x want %x", got, first)
	}
	got, err = fr.Read()
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Fatalf("second frame mismatch: got %x want %x", got, second)
	}
	if _, err = fr.Read(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestFrameReaderRejectsOversizedPrefix(t *testing.T) {
	var stream bytes.Buffer
	var prefix [LenPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], DefaultMaxPayload+1)
	stream.Write(prefix[:])

	fr := NewFrameReader(&stream, 0)
	if _, err := fr.Read(); !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrFraming, got %v", err)
	}
}

func TestFrameReaderRejectsRunt(t *testing.T) {
	var stream bytes.Buffer
	var prefix [LenPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], 2)
	stream.Write(prefix[:])
	stream.Write([]byte{0, 0})

	fr := NewFrameReader(&stream, 0)
	if _, err := fr.Read(); !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrFraming, got %v", err)
	}
}

func TestFramingSurvivesUndecodablePayload(t *testing.T) {
	var stream bytes.Buffer
	fw := NewFrameWriter(&stream)

	// A well-framed payload carrying a type the catalog does not know.
	junk := make([]byte, 12)
	binary.BigEndian.PutUint16(junk[0:2], 999)
	if err := fw.Write(junk); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	tick := EncodeTick(nil, schema.Tick{SubID: 5, Seq: 1})
	if err := fw.Write(tick); err != nil {
		t.Fatalf("write tick: %v", err)
	}

	fr := NewFrameReader(&stream, 0)
	payload, err := fr.Read()
	if err != nil {
		t.Fatalf("read junk frame: %v", err)
	}
	if PayloadType(payload) != schema.MsgType(999) {
		t.Fatalf("junk type = %d", PayloadType(payload))
	}
	if _, ok := DecodeTick(payload); ok {
		t.Fatalf("tick decode accepted junk")
	}

	payload, err = fr.Read()
	if err != nil {
		t.Fatalf("read tick frame after junk: %v", err)
	}
	decoded, ok := DecodeTick(payload)
	if !ok {
		t.Fatalf("tick after junk failed to decode")
	}
	if decoded.SubID != 5 || decoded.Seq != 1 {
		t.Fatalf("tick after junk mismatch: %+v", decoded)
	}
}

func TestPreambleRoundTrip(t *testing.T) {
	var stream bytes.Buffer
	if err := WritePreamble(&stream); err != nil {
		t.Fatalf("write preamble: %v", err)
	}
	if err := ReadPreamble(&stream); err != nil {
		t.Fatalf("read preamble: %v", err)
	}

	stream.Reset()
	stream.WriteString("HTTP")
	if err := ReadPreamble(&stream); !errors.Is(err, ErrBadPreamble) {
		t.Fatalf("expected ErrBadPreamble, got %v", err)
	}
}
