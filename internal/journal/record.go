package journal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"tradegw/internal/schema"
)

// On-disk record layout, little-endian:
//
//	[0:4)   magic "TGWJ"
//	[4:6)   record version
//	[6:8)   header size
//	[8:10)  message type
//	[10:12) message version
//	[12:14) source
//	[14:16) flags
//	[16:20) payload length
//	[20:28) sequence
//	[28:36) event timestamp (ns)
//	[36:44) receive timestamp (ns)
//	[44:52) trace id
//	[52:56) reserved
//
// The payload follows the header, then a CRC32-C checksum over
// header+payload closes the record.
const (
	recordVersion    uint16 = 1
	recordHeaderSize        = 56
	checksumSize            = 4
)

var (
	recordMagic = [4]byte{'T', 'G', 'W', 'J'}

	castagnoli = crc32.MakeTable(crc32.Castagnoli)
)

func encodeHeader(dst []byte, h schema.EventHeader, payloadLen int) {
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], recordHeaderSize)
	binary.LittleEndian.PutUint16(dst[8:10], uint16(h.Type))
	binary.LittleEndian.PutUint16(dst[10:12], h.Version)
	binary.LittleEndian.PutUint16(dst[12:14], uint16(h.Source))
	binary.LittleEndian.PutUint16(dst[14:16], h.Flags)
	binary.LittleEndian.PutUint32(dst[16:20], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[20:28], h.Seq)
	binary.LittleEndian.PutUint64(dst[28:36], uint64(h.TsEvent))
	binary.LittleEndian.PutUint64(dst[36:44], uint64(h.TsRecv))
	binary.LittleEndian.PutUint64(dst[44:52], h.TraceID)
	binary.LittleEndian.PutUint32(dst[52:56], 0)
}

func decodeRecordHeader(src []byte) (schema.EventHeader, int, error) {
	var h schema.EventHeader
	if len(src) < recordHeaderSize {
		return h, 0, fmt.Errorf("record header too short: %d bytes", len(src))
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return h, 0, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(src[4:6]); v != recordVersion {
		return h, 0, fmt.Errorf("unsupported record version %d", v)
	}
	if s := binary.LittleEndian.Uint16(src[6:8]); s != recordHeaderSize {
		return h, 0, fmt.Errorf("unexpected header size %d", s)
	}
	h.Type = schema.MsgType(binary.LittleEndian.Uint16(src[8:10]))
	h.Version = binary.LittleEndian.Uint16(src[10:12])
	h.Source = binary.LittleEndian.Uint16(src[12:14])
	h.Flags = binary.LittleEndian.Uint16(src[14:16])
	payloadLen := int(binary.LittleEndian.Uint32(src[16:20]))
	h.Seq = binary.LittleEndian.Uint64(src[20:28])
	h.TsEvent = int64(binary.LittleEndian.Uint64(src[28:36]))
	h.TsRecv = int64(binary.LittleEndian.Uint64(src[36:44]))
	h.TraceID = binary.LittleEndian.Uint64(src[44:52])
	return h, payloadLen, nil
}

func checksum(header, payload []byte) uint32 {
	sum := crc32.Update(0, castagnoli, header)
	return crc32.Update(sum, castagnoli, payload)
}
