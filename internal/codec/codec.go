package codec

import (
	"encoding/binary"

	"tradegw/internal/schema"
)

// Every payload opens with the same 4-byte header: message type then wire
// version, both big-endian. Bodies are fixed-width big-endian fields, so a
// payload that passes the size check always decodes. Trailing bytes are
// tolerated for forward compatibility.
const PayloadHeaderSize = 4

// PayloadType reads the message type without decoding the body. Payloads too
// short to carry a header report MsgUnknown, which dispatchers skip.
func PayloadType(payload []byte) schema.MsgType {
	if len(payload) < 2 {
		return schema.MsgUnknown
	}
	return schema.MsgType(binary.BigEndian.Uint16(payload[0:2]))
}

// PayloadVersion reads the wire version of a payload.
func PayloadVersion(payload []byte) uint16 {
	if len(payload) < PayloadHeaderSize {
		return 0
	}
	return binary.BigEndian.Uint16(payload[2:4])
}

func putHeader(dst []byte, t schema.MsgType) {
	binary.BigEndian.PutUint16(dst[0:2], uint16(t))
	binary.BigEndian.PutUint16(dst[2:4], schema.WireVersion)
}

func checkPayload(src []byte, t schema.MsgType, size int) bool {
	if len(src) < size {
		return false
	}
	return schema.MsgType(binary.BigEndian.Uint16(src[0:2])) == t
}
