// Package parcel implements the Android Parcel wire format: little-endian,
// 4-byte-aligned primitives, length-prefixed UTF-16LE strings, and embedded
// flat binder objects. Grounded on the append-only buffer-builder shape of
// the teacher's pkg/control/protocol.go (PackRequestHeader/packParameter),
// generalized from that protocol's big-endian fixed headers to Parcel's
// little-endian, alignment-padded, variable-length records.
package parcel

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/gobinder/android-binder/pkg/status"
	"github.com/gobinder/android-binder/pkg/wire"
)

// strictModePenaltyGather is written as the first word of every interface
// token (the strict-mode header word, with no other policy bits set).
const strictModePenaltyGather = 0x00400000

// Parcel is a growable, 4-byte-aligned byte buffer for building outbound
// transaction payloads and for reading inbound reply payloads. The zero
// value is an empty, ready-to-write Parcel.
type Parcel struct {
	buf    []byte
	off    int      // read cursor
	objOff []uint32 // byte offsets of every flat binder object appended via PutBinder
}

// New returns an empty Parcel ready for writing.
func New() *Parcel {
	return &Parcel{}
}

// FromBytes wraps an existing buffer (e.g. a reply payload copied out of the
// session's mmap region) for reading.
func FromBytes(buf []byte) *Parcel {
	return &Parcel{buf: buf}
}

// Bytes returns the Parcel's backing buffer.
func (p *Parcel) Bytes() []byte {
	return p.buf
}

// Len returns the number of bytes written so far.
func (p *Parcel) Len() int {
	return len(p.buf)
}

// Offsets returns the byte offset of every flat binder object appended via
// PutBinder, in append order. This backs BinderTransactionData's
// offsets/offsets_size fields (SPEC_FULL.md §9 — carried even though the
// original source never populated them).
func (p *Parcel) Offsets() []uint32 {
	return p.objOff
}

func (p *Parcel) pad() {
	for len(p.buf)%4 != 0 {
		p.buf = append(p.buf, 0)
	}
}

// PutU8 appends a single byte, then pads to a 4-byte boundary.
func (p *Parcel) PutU8(v uint8) {
	p.buf = append(p.buf, v)
	p.pad()
}

// PutI16 appends a little-endian i16, then pads to a 4-byte boundary.
func (p *Parcel) PutI16(v int16) {
	p.PutU16(uint16(v))
}

// PutU16 appends a little-endian u16, then pads to a 4-byte boundary.
func (p *Parcel) PutU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	p.buf = append(p.buf, b[:]...)
	p.pad()
}

// PutI32 appends a little-endian i32.
func (p *Parcel) PutI32(v int32) {
	p.PutU32(uint32(v))
}

// PutU32 appends a little-endian u32.
func (p *Parcel) PutU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

// PutU64 appends a little-endian u64, 4-byte aligned (Parcel never pads to
// 8; the kernel ABI only requires 4-byte alignment for the data blob).
func (p *Parcel) PutU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

// PutStr16 appends an Android str16: an i32 UTF-16 unit count, the UTF-16LE
// units, a trailing NUL unit, then zero-padding out to a 4-byte boundary.
func (p *Parcel) PutStr16(s string) {
	units := utf16.Encode([]rune(s))
	p.PutI32(int32(len(units)))
	for _, u := range units {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], u)
		p.buf = append(p.buf, b[:]...)
	}
	p.buf = append(p.buf, 0, 0) // trailing NUL unit
	p.pad()
}

// PutInterfaceToken appends the strict-mode header word followed by the
// str16 interface name, the header every transaction to a remote service
// begins with.
func (p *Parcel) PutInterfaceToken(name string) {
	p.PutI32(int32(strictModePenaltyGather))
	p.PutStr16(name)
}

// PutBinder appends a flat_binder_object of type BINDER_TYPE_BINDER — a
// local binder reference, the kind add_service hands the service manager
// for itself (spec.md §4.2, §4.4) — recording its offset in Offsets() so
// the caller can populate BinderTransactionData.Offsets/OffsetsSize. flags
// defaults to wire.FlatBinderObjectDefaultFlags when flags is zero.
func (p *Parcel) PutBinder(layout wire.Layout, handle uint64, cookie uint64, flags uint32) {
	if flags == 0 {
		flags = wire.FlatBinderObjectDefaultFlags
	}
	p.objOff = append(p.objOff, uint32(len(p.buf)))
	obj := wire.FlatBinderObject{
		Type:           wire.BinderTypeBinder,
		Flags:          flags,
		HandleOrBinder: handle,
		Cookie:         cookie,
	}
	p.buf = append(p.buf, layout.EncodeFlatBinderObject(obj)...)
}

func (p *Parcel) need(n int) error {
	if p.off+n > len(p.buf) {
		return status.New(status.ShortRead, "parcel read")
	}
	return nil
}

// GetI32 reads the next little-endian i32.
func (p *Parcel) GetI32() (int32, error) {
	if err := p.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(p.buf[p.off : p.off+4]))
	p.off += 4
	return v, nil
}

// GetU32 reads the next little-endian u32.
func (p *Parcel) GetU32() (uint32, error) {
	v, err := p.GetI32()
	return uint32(v), err
}

// GetStr16 reads an Android str16: length-prefixed UTF-16LE units plus
// trailing NUL, then skips to the next 4-byte boundary.
func (p *Parcel) GetStr16() (string, error) {
	n, err := p.GetI32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", status.New(status.DecodeError, "negative str16 length")
	}
	byteLen := int(n) * 2
	if err := p.need(byteLen + 2); err != nil {
		return "", status.NewWithCause(status.DecodeError, "truncated str16", err)
	}
	units := make([]uint16, n)
	for i := 0; i < int(n); i++ {
		units[i] = binary.LittleEndian.Uint16(p.buf[p.off : p.off+2])
		p.off += 2
	}
	p.off += 2 // trailing NUL unit
	for p.off%4 != 0 {
		p.off++
	}
	return string(utf16.Decode(units)), nil
}

// GetObject reads a flat_binder_object and returns its handle. Only
// BINDER_TYPE_HANDLE is supported (spec.md Non-goals exclude accepting
// transferred strong/weak binder references); any other type tag is
// reported as UnsupportedObject rather than silently misinterpreted.
func (p *Parcel) GetObject(layout wire.Layout) (uint32, error) {
	size := layout.SizeOfFlatBinderObject()
	if err := p.need(size); err != nil {
		return 0, err
	}
	obj := layout.DecodeFlatBinderObject(p.buf[p.off : p.off+size])
	p.off += size
	if obj.Type != wire.BinderTypeHandle {
		return 0, status.NewWithCode(status.UnsupportedObject, "get_object", obj.Type)
	}
	return uint32(obj.HandleOrBinder), nil
}

// Remaining reports how many unread bytes remain.
func (p *Parcel) Remaining() int {
	return len(p.buf) - p.off
}
