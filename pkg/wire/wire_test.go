//go:build unit

package wire

import "testing"

// TestIocEncoding verifies IoW/IoWR reproduce the kernel's well-known
// BINDER_WRITE_READ, BINDER_VERSION, BINDER_SET_MAX_THREADS and
// BINDER_THREAD_EXIT device ioctl numbers.
func TestIocEncoding(t *testing.T) {
	tests := []struct {
		name     string
		got      uint32
		expected uint32
	}{
		{"BINDER_WRITE_READ(v8)", IoWR(BinderIocMagic, ReqWriteRead, 48), 0xc030_6201},
		{"BINDER_VERSION", IoWR(BinderIocMagic, ReqVersion, SizeOfBinderVersion), 0xc0046209},
		{"BINDER_SET_MAX_THREADS", IoW(BinderIocMagic, ReqSetMaxThreads, 4), 0x40046205},
		{"BINDER_THREAD_EXIT", IoW(BinderIocMagic, ReqThreadExit, 4), 0x40046208},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.expected {
				t.Errorf("%s = 0x%x, expected 0x%x", tc.name, tc.got, tc.expected)
			}
		})
	}
}

// TestLayoutForKnownVersions verifies the v7/v8 width negotiation.
func TestLayoutForKnownVersions(t *testing.T) {
	if l, ok := LayoutFor(ProtocolVersion7); !ok || l.Width != 4 {
		t.Fatalf("LayoutFor(7) = %+v, %v; expected Width=4, ok", l, ok)
	}
	if l, ok := LayoutFor(ProtocolVersion8); !ok || l.Width != 8 {
		t.Fatalf("LayoutFor(8) = %+v, %v; expected Width=8, ok", l, ok)
	}
	if _, ok := LayoutFor(99); ok {
		t.Fatalf("LayoutFor(99) should not be ok")
	}
}

// TestTransactionCommandCodes cross-checks the size-bearing BC_TRANSACTION/
// BC_REPLY/BR_REPLY codes against the literal values spec.md and the
// original source give for the v8 (64-bit) protocol variant.
func TestTransactionCommandCodes(t *testing.T) {
	l := Layout{Width: 8}
	if got := l.CommandTransactionCode(false); got != BcTransaction {
		t.Errorf("BC_TRANSACTION = 0x%x, expected 0x%x", got, BcTransaction)
	}
	if got := l.CommandTransactionCode(true); got != BcReply {
		t.Errorf("BC_REPLY = 0x%x, expected 0x%x", got, BcReply)
	}
	if got := l.ReturnReplyCode(); got != BrReply {
		t.Errorf("BR_REPLY = 0x%x, expected 0x%x", got, BrReply)
	}
}

// TestSizeOfTransactionDataByWidth pins the v7/v8 transaction-data sizes
// that drive the size-bearing ioctl codes above.
func TestSizeOfTransactionDataByWidth(t *testing.T) {
	if got := (Layout{Width: 4}).SizeOfTransactionData(); got != 40 {
		t.Errorf("v7 SizeOfTransactionData = %d, expected 40", got)
	}
	if got := (Layout{Width: 8}).SizeOfTransactionData(); got != 64 {
		t.Errorf("v8 SizeOfTransactionData = %d, expected 64", got)
	}
}

// TestTransactionDataRoundTrip exercises encode/decode symmetry for both
// protocol widths.
func TestTransactionDataRoundTrip(t *testing.T) {
	for _, l := range []Layout{{Width: 4}, {Width: 8}} {
		td := TransactionData{
			Target:      7,
			Cookie:      0xCAFEBABE,
			Code:        TransactionPing,
			Flags:       TransactionFlagAcceptFds,
			SenderPID:   1234,
			SenderEUID:  5678,
			DataSize:    16,
			OffsetsSize: 0,
			Data:        0x1000,
			Offsets:     0,
		}
		buf := l.EncodeTransactionData(td)
		if len(buf) != l.SizeOfTransactionData() {
			t.Fatalf("width=%d: encoded len %d != SizeOfTransactionData %d", l.Width, len(buf), l.SizeOfTransactionData())
		}
		got := l.DecodeTransactionData(buf)
		if got != td {
			t.Errorf("width=%d: round trip mismatch: got %+v, want %+v", l.Width, got, td)
		}
	}
}

// TestFlatBinderObjectRoundTrip exercises encode/decode symmetry for both
// protocol widths.
func TestFlatBinderObjectRoundTrip(t *testing.T) {
	for _, l := range []Layout{{Width: 4}, {Width: 8}} {
		if got := l.SizeOfFlatBinderObject(); got != 8+2*l.Width {
			t.Fatalf("width=%d: SizeOfFlatBinderObject = %d", l.Width, got)
		}
		obj := FlatBinderObject{
			Type:           BinderTypeHandle,
			Flags:          FlatBinderObjectDefaultFlags,
			HandleOrBinder: 42,
			Cookie:         0,
		}
		buf := l.EncodeFlatBinderObject(obj)
		got := l.DecodeFlatBinderObject(buf)
		if got != obj {
			t.Errorf("width=%d: round trip mismatch: got %+v, want %+v", l.Width, got, obj)
		}
	}
}

// TestBinderVersionRoundTrip verifies the single-i32 BINDER_VERSION payload.
func TestBinderVersionRoundTrip(t *testing.T) {
	buf := EncodeBinderVersion()
	if len(buf) != SizeOfBinderVersion {
		t.Fatalf("EncodeBinderVersion len = %d, expected %d", len(buf), SizeOfBinderVersion)
	}
	buf[0] = 8
	if got := DecodeBinderVersion(buf); got != 8 {
		t.Errorf("DecodeBinderVersion = %d, expected 8", got)
	}
}
