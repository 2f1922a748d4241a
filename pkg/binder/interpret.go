package binder

import (
	"encoding/binary"
	"unsafe"

	"github.com/gobinder/android-binder/pkg/parcel"
	"github.com/gobinder/android-binder/pkg/status"
	"github.com/gobinder/android-binder/pkg/wire"
)

// interpretReturns walks a BINDER_WRITE_READ read-buffer and drives the
// return-code state machine spec.md §4.3 describes: BR_NOOP/
// BR_TRANSACTION_COMPLETE/BR_SPAWN_LOOPER are ignored and the loop
// continues; BR_REPLY is terminal success (decoding a StatusCode or a
// Parcel copied out of the session's mmap region); BR_ERROR/BR_FAILED_REPLY
// are terminal failures; anything else becomes UnexpectedReturn(code). If
// the stream is exhausted after only ignorable codes (e.g. a one-way send's
// BR_TRANSACTION_COMPLETE), this returns a zero CallResult — CallResult::Noop
// — with a nil error (spec.md §4.3 step 7). ShortRead is reserved for a
// stream that never yields a whole leading code (read_consumed < 4) or that
// cuts off mid-code; a BR_REPLY whose transaction record is cut off fails
// with TruncatedPayload. This is factored out of Session.Call as a
// pure function of its inputs so it is unit-testable against synthetic
// return streams without a real device.
func interpretReturns(layout wire.Layout, buf []byte, mapped []byte) (CallResult, error) {
	pos := 0
	consumedAny := false
	for {
		if pos == len(buf) {
			if !consumedAny {
				return CallResult{}, status.New(status.ShortRead, "return stream has no complete return code")
			}
			return CallResult{}, nil
		}
		if pos+4 > len(buf) {
			return CallResult{}, status.New(status.ShortRead, "return stream truncated before next code")
		}
		code := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4
		consumedAny = true

		switch code {
		case wire.BrNoop, wire.BrTransactionComplete, wire.BrSpawnLooper:
			continue

		case layout.ReturnReplyCode():
			size := layout.SizeOfTransactionData()
			if pos+size > len(buf) {
				return CallResult{}, status.New(status.TruncatedPayload, "truncated BR_REPLY transaction data")
			}
			td := layout.DecodeTransactionData(buf[pos : pos+size])

			if td.Flags&wire.TransactionFlagStatusCode != 0 {
				statusBytes, err := readMapped(mapped, td.Data, 4)
				if err != nil {
					return CallResult{}, err
				}
				return CallResult{StatusCode: int32(binary.LittleEndian.Uint32(statusBytes)), HasStatus: true}, nil
			}

			data, err := copyReplyData(mapped, td)
			if err != nil {
				return CallResult{}, err
			}
			return CallResult{Reply: parcel.FromBytes(data)}, nil

		case wire.BrError:
			// No payload (spec.md §4.3's table; mirrors the original
			// source's binder.rs, which returns here without consuming a
			// trailing word) — terminal regardless of what follows.
			return CallResult{}, status.New(status.DriverError, "BR_ERROR")

		case wire.BrFailedReply:
			return CallResult{}, status.New(status.TransactionFailed, "BR_FAILED_REPLY")

		default:
			return CallResult{}, status.NewWithCode(status.UnexpectedReturn, "unrecognized return code", code)
		}
	}
}

// copyReplyData copies a BR_REPLY's data payload out of the session's
// read-only mmap region before returning it to the caller: the kernel owns
// that memory and will reuse it for the next transaction, so the payload
// must not be referenced after this call returns (spec.md §5).
func copyReplyData(mapped []byte, td wire.TransactionData) ([]byte, error) {
	return readMapped(mapped, td.Data, td.DataSize)
}

// readMapped copies size bytes out of the session's mmap region starting at
// the kernel-supplied pointer ptr, bounds-checking against the mapped slice
// before touching it. Used both for BR_REPLY's Parcel payload and for the
// inline status-code word a STATUS_CODE-flagged reply stores at *data
// (spec.md §4.3 step 6).
func readMapped(mapped []byte, ptr uint64, size uint64) ([]byte, error) {
	if len(mapped) == 0 {
		return nil, status.New(status.TruncatedPayload, "reply data outside mapped region")
	}
	base := uintptr(unsafe.Pointer(&mapped[0]))
	p := uintptr(ptr)
	if p < base {
		return nil, status.New(status.TruncatedPayload, "reply data pointer precedes mapped region")
	}
	off := p - base
	end := off + uintptr(size)
	if end > uintptr(len(mapped)) {
		return nil, status.New(status.TruncatedPayload, "reply data extends past mapped region")
	}
	out := make([]byte, size)
	copy(out, mapped[off:end])
	return out, nil
}
