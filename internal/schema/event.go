package schema

// SchemaVersion tags journal records and bus events with the encoding
// generation of their payloads.
const SchemaVersion uint16 = 1

// Event sources recorded in headers.
const (
	SourceGateway uint16 = 1
	SourceLocal   uint16 = 2
	SourceReplay  uint16 = 3
)

// EventHeader describes one order event as it moves through the in-process
// queue and the journal. The payload keeps its wire encoding; Type says
// which decoder applies.
type EventHeader struct {
	Type    MsgType
	Version uint16
	Source  uint16
	Flags   uint16
	Seq     uint64
	TsEvent int64
	TsRecv  int64
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(msgType MsgType, source uint16, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:    msgType,
		Version: SchemaVersion,
		Source:  source,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}
