package wire

import "encoding/binary"

// SizeOfBinderVersion is sizeof(struct binder_version): one i32 field,
// identical in both protocol variants.
const SizeOfBinderVersion = 4

// DecodeBinderVersion reads the protocol_version field the BINDER_VERSION
// ioctl wrote back.
func DecodeBinderVersion(buf []byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf[0:4]))
}

// EncodeBinderVersion produces the (zeroed) request buffer the
// BINDER_VERSION ioctl reads and overwrites in place.
func EncodeBinderVersion() []byte {
	return make([]byte, SizeOfBinderVersion)
}

// Layout is the pair of packed record encodings (BinderWriteRead,
// BinderTransactionData, FlatBinderObject) that differ between the v7
// (32-bit BinderSize/BinderPtr) and v8 (64-bit) protocol variants. Session
// picks one at Open time once BINDER_VERSION has answered, per SPEC_FULL.md
// §4.1/§9 — the width is a runtime fact, not a build tag.
type Layout struct {
	// Width is 4 for v7, 8 for v8.
	Width int
}

// LayoutFor returns the Layout for a negotiated protocol version (7 or 8).
func LayoutFor(protocolVersion int32) (Layout, bool) {
	switch protocolVersion {
	case ProtocolVersion7:
		return Layout{Width: 4}, true
	case ProtocolVersion8:
		return Layout{Width: 8}, true
	default:
		return Layout{}, false
	}
}

func (l Layout) putWidth(buf []byte, off int, v uint64) {
	if l.Width == 4 {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(v))
	} else {
		binary.LittleEndian.PutUint64(buf[off:off+8], v)
	}
}

func (l Layout) getWidth(buf []byte, off int) uint64 {
	if l.Width == 4 {
		return uint64(binary.LittleEndian.Uint32(buf[off : off+4]))
	}
	return binary.LittleEndian.Uint64(buf[off : off+8])
}

// SizeOfBinderWriteRead is sizeof(struct binder_write_read) for this
// layout: six BinderSize/BinderPtr-width fields.
func (l Layout) SizeOfBinderWriteRead() int {
	return 6 * l.Width
}

// EncodeBinderWriteRead packs a binder_write_read record.
func (l Layout) EncodeBinderWriteRead(writeSize, writeConsumed, writeBuffer, readSize, readConsumed, readBuffer uint64) []byte {
	buf := make([]byte, l.SizeOfBinderWriteRead())
	l.putWidth(buf, 0*l.Width, writeSize)
	l.putWidth(buf, 1*l.Width, writeConsumed)
	l.putWidth(buf, 2*l.Width, writeBuffer)
	l.putWidth(buf, 3*l.Width, readSize)
	l.putWidth(buf, 4*l.Width, readConsumed)
	l.putWidth(buf, 5*l.Width, readBuffer)
	return buf
}

// DecodeBinderWriteRead reads back the write_consumed/read_consumed fields
// the kernel updates in place after BINDER_WRITE_READ returns.
func (l Layout) DecodeBinderWriteRead(buf []byte) (writeConsumed, readConsumed uint64) {
	writeConsumed = l.getWidth(buf, 1*l.Width)
	readConsumed = l.getWidth(buf, 4*l.Width)
	return
}

// SizeOfTransactionData is sizeof(struct binder_transaction_data) for this
// layout. target is always a plain u32 (the union's narrowest member, per
// the original source and spec.md's field list); a v8 layout pads after it
// so cookie lands on an 8-byte boundary, matching the kernel's natural
// struct alignment. offsets/offsets_size are carried (SPEC_FULL.md §9)
// even though the original source omitted them.
func (l Layout) SizeOfTransactionData() int {
	if l.Width == 4 {
		return 4 * 10 // target,cookie,code,flags,sender_pid,sender_euid,data_size,offsets_size,data,offsets
	}
	return 4 + 4 /*pad*/ + 8 + 4 + 4 + 4 + 4 + 8 + 8 + 8 + 8
}

const (
	tdOffTarget = 0
)

func (l Layout) tdOffsets() (cookie, code, flags, senderPID, senderEUID, dataSize, offsetsSize, data, offsets int) {
	if l.Width == 4 {
		return 4, 8, 12, 16, 20, 24, 28, 32, 36
	}
	return 8, 16, 20, 24, 28, 32, 40, 48, 56
}

// TransactionData is the decoded, width-independent view of a
// binder_transaction_data record.
type TransactionData struct {
	Target      uint32
	Cookie      uint64
	Code        uint32
	Flags       uint32
	SenderPID   int32
	SenderEUID  uint32
	DataSize    uint64
	OffsetsSize uint64
	Data        uint64
	Offsets     uint64
}

// EncodeTransactionData packs a binder_transaction_data record using this
// layout's field widths.
func (l Layout) EncodeTransactionData(td TransactionData) []byte {
	cookieOff, codeOff, flagsOff, pidOff, euidOff, dataSizeOff, offsetsSizeOff, dataOff, offsetsOff := l.tdOffsets()
	buf := make([]byte, l.SizeOfTransactionData())
	binary.LittleEndian.PutUint32(buf[tdOffTarget:tdOffTarget+4], td.Target)
	l.putWidth(buf, cookieOff, td.Cookie)
	binary.LittleEndian.PutUint32(buf[codeOff:codeOff+4], td.Code)
	binary.LittleEndian.PutUint32(buf[flagsOff:flagsOff+4], td.Flags)
	binary.LittleEndian.PutUint32(buf[pidOff:pidOff+4], uint32(td.SenderPID))
	binary.LittleEndian.PutUint32(buf[euidOff:euidOff+4], td.SenderEUID)
	l.putWidth(buf, dataSizeOff, td.DataSize)
	l.putWidth(buf, offsetsSizeOff, td.OffsetsSize)
	l.putWidth(buf, dataOff, td.Data)
	l.putWidth(buf, offsetsOff, td.Offsets)
	return buf
}

// DecodeTransactionData unpacks a binder_transaction_data record. buf must
// be at least SizeOfTransactionData() bytes.
func (l Layout) DecodeTransactionData(buf []byte) TransactionData {
	cookieOff, codeOff, flagsOff, pidOff, euidOff, dataSizeOff, offsetsSizeOff, dataOff, offsetsOff := l.tdOffsets()
	return TransactionData{
		Target:      binary.LittleEndian.Uint32(buf[tdOffTarget : tdOffTarget+4]),
		Cookie:      l.getWidth(buf, cookieOff),
		Code:        binary.LittleEndian.Uint32(buf[codeOff : codeOff+4]),
		Flags:       binary.LittleEndian.Uint32(buf[flagsOff : flagsOff+4]),
		SenderPID:   int32(binary.LittleEndian.Uint32(buf[pidOff : pidOff+4])),
		SenderEUID:  binary.LittleEndian.Uint32(buf[euidOff : euidOff+4]),
		DataSize:    l.getWidth(buf, dataSizeOff),
		OffsetsSize: l.getWidth(buf, offsetsSizeOff),
		Data:        l.getWidth(buf, dataOff),
		Offsets:     l.getWidth(buf, offsetsOff),
	}
}

// SizeOfFlatBinderObject is sizeof(struct flat_binder_object) for this
// layout: 16 bytes (v7) or 24 bytes (v8), matching spec.md's data model.
func (l Layout) SizeOfFlatBinderObject() int {
	return 8 + 2*l.Width
}

// FlatBinderObject is the decoded, width-independent view of a flat binder
// object.
type FlatBinderObject struct {
	Type           uint32
	Flags          uint32
	HandleOrBinder uint64
	Cookie         uint64
}

// EncodeFlatBinderObject packs a flat_binder_object record.
func (l Layout) EncodeFlatBinderObject(o FlatBinderObject) []byte {
	buf := make([]byte, l.SizeOfFlatBinderObject())
	binary.LittleEndian.PutUint32(buf[0:4], o.Type)
	binary.LittleEndian.PutUint32(buf[4:8], o.Flags)
	l.putWidth(buf, 8, o.HandleOrBinder)
	l.putWidth(buf, 8+l.Width, o.Cookie)
	return buf
}

// DecodeFlatBinderObject unpacks a flat_binder_object record. buf must be
// at least SizeOfFlatBinderObject() bytes.
func (l Layout) DecodeFlatBinderObject(buf []byte) FlatBinderObject {
	return FlatBinderObject{
		Type:           binary.LittleEndian.Uint32(buf[0:4]),
		Flags:          binary.LittleEndian.Uint32(buf[4:8]),
		HandleOrBinder: l.getWidth(buf, 8),
		Cookie:         l.getWidth(buf, 8+l.Width),
	}
}

// CommandTransactionCode returns BC_TRANSACTION or BC_REPLY sized for this
// layout's transaction-data width, built the same way the kernel header
// does: _IOW('c', nr, sizeof(binder_transaction_data)).
func (l Layout) CommandTransactionCode(reply bool) uint32 {
	nr := 0
	if reply {
		nr = 1
	}
	return IoW('c', nr, l.SizeOfTransactionData())
}

// ReturnReplyCode returns BR_REPLY sized for this layout's transaction-data
// width: _IOR('r', 3, sizeof(binder_transaction_data)). This is the only
// return code whose numeric value this client must vary by layout, since
// it is the only one carrying the variable-width transaction record.
func (l Layout) ReturnReplyCode() uint32 {
	return IoR('r', 3, l.SizeOfTransactionData())
}
