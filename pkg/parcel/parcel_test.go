//go:build unit

package parcel

import (
	"testing"

	"github.com/gobinder/android-binder/pkg/wire"
)

// TestPutStr16Alignment verifies str16 encoding: length prefix, UTF-16LE
// units, trailing NUL unit, then zero-padding to a 4-byte boundary.
func TestPutStr16Alignment(t *testing.T) {
	p := New()
	p.PutStr16("abc")
	// i32 len(3) + 3*2 bytes + 2 (NUL) = 12, already 4-aligned.
	if p.Len() != 12 {
		t.Fatalf("Len() = %d, expected 12", p.Len())
	}
	if p.Len()%4 != 0 {
		t.Fatalf("Len() = %d not 4-byte aligned", p.Len())
	}
}

// TestStr16RoundTrip verifies Put/GetStr16 symmetry including an empty
// string and non-ASCII content.
func TestStr16RoundTrip(t *testing.T) {
	for _, s := range []string{"", "android.os.IServiceManager", "héllo"} {
		p := New()
		p.PutStr16(s)
		r := FromBytes(p.Bytes())
		got, err := r.GetStr16()
		if err != nil {
			t.Fatalf("GetStr16(%q) error: %v", s, err)
		}
		if got != s {
			t.Errorf("GetStr16 = %q, expected %q", got, s)
		}
		if r.Remaining() != 0 {
			t.Errorf("Remaining() = %d, expected 0", r.Remaining())
		}
	}
}

// TestInterfaceTokenHeader verifies the strict-mode sentinel precedes the
// interface name.
func TestInterfaceTokenHeader(t *testing.T) {
	p := New()
	p.PutInterfaceToken("android.os.IServiceManager")
	r := FromBytes(p.Bytes())
	sentinel, err := r.GetI32()
	if err != nil {
		t.Fatalf("GetI32 error: %v", err)
	}
	if sentinel != int32(strictModePenaltyGather) {
		t.Errorf("sentinel = 0x%x, expected 0x%x", sentinel, strictModePenaltyGather)
	}
	name, err := r.GetStr16()
	if err != nil {
		t.Fatalf("GetStr16 error: %v", err)
	}
	if name != "android.os.IServiceManager" {
		t.Errorf("name = %q", name)
	}
}

// TestPutBinderRecordsOffset verifies PutBinder appends a BINDER_TYPE_BINDER
// flat object (spec.md §4.2, §4.4 — add_service hands over a local binder,
// not a handle) and records its offset for BinderTransactionData.Offsets.
func TestPutBinderRecordsOffset(t *testing.T) {
	for _, l := range []wire.Layout{{Width: 4}, {Width: 8}} {
		p := New()
		p.PutI32(1) // leading filler so the offset isn't trivially zero
		offsetWant := uint32(p.Len())
		p.PutBinder(l, 0xABABABAB, 0xCACACACA, 0)
		offs := p.Offsets()
		if len(offs) != 1 || offs[0] != offsetWant {
			t.Fatalf("Offsets() = %v, expected [%d]", offs, offsetWant)
		}
		r := FromBytes(p.Bytes())
		if _, err := r.GetI32(); err != nil {
			t.Fatalf("GetI32 error: %v", err)
		}
		size := l.SizeOfFlatBinderObject()
		if r.Remaining() != size {
			t.Fatalf("Remaining() = %d, expected %d", r.Remaining(), size)
		}
		obj := l.DecodeFlatBinderObject(r.buf[r.off : r.off+size])
		if obj.Type != wire.BinderTypeBinder {
			t.Errorf("Type = 0x%x, expected BinderTypeBinder 0x%x", obj.Type, wire.BinderTypeBinder)
		}
		if obj.HandleOrBinder != 0xABABABAB {
			t.Errorf("HandleOrBinder = 0x%x, expected 0xABABABAB", obj.HandleOrBinder)
		}
		if obj.Cookie != 0xCACACACA {
			t.Errorf("Cookie = 0x%x, expected 0xCACACACA", obj.Cookie)
		}
		// GetObject only accepts BINDER_TYPE_HANDLE; a BINDER_TYPE_BINDER
		// object must be reported, not silently misread as a handle.
		if _, err := r.GetObject(l); err == nil {
			t.Fatal("expected UnsupportedObject decoding a BINDER_TYPE_BINDER object, got nil")
		}
	}
}

// TestGetObjectRejectsNonHandle verifies a non-HANDLE flat object type is
// reported as UnsupportedObject rather than misread as a handle.
func TestGetObjectRejectsNonHandle(t *testing.T) {
	l := wire.Layout{Width: 8}
	obj := wire.FlatBinderObject{Type: wire.BinderTypeBinder, Flags: 0, HandleOrBinder: 1, Cookie: 0}
	p := FromBytes(l.EncodeFlatBinderObject(obj))
	if _, err := p.GetObject(l); err == nil {
		t.Fatal("expected error for BINDER_TYPE_BINDER object, got nil")
	}
}

// TestGetStr16TruncatedFails verifies a truncated str16 reports an error
// instead of panicking.
func TestGetStr16TruncatedFails(t *testing.T) {
	p := New()
	p.PutI32(100) // claims 100 units, buffer has none
	r := FromBytes(p.Bytes())
	if _, err := r.GetStr16(); err == nil {
		t.Fatal("expected error reading truncated str16, got nil")
	}
}
