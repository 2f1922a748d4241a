// Package binder drives a single /dev/binder session: open, version
// negotiation, the shared mmap region, the looper-registration handshake,
// and the request/reply transaction loop. Grounded on the teacher's
// pkg/driver/ioctl.go DeviceFile (open/ioctl/close wrapping) and
// pkg/device/device.go Device (mutex-guarded, idempotent-Close wrapper
// around a driver handle), generalized from Hailo's many typed ioctls to
// Binder's single BINDER_WRITE_READ request/reply protocol.
package binder

import (
	"encoding/binary"
	"log"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/gobinder/android-binder/pkg/parcel"
	"github.com/gobinder/android-binder/pkg/status"
	"github.com/gobinder/android-binder/pkg/wire"
)

// DefaultDevice is the well-known binder device path.
const DefaultDevice = "/dev/binder"

// CallResult is the outcome of a successful Session.Call: either a decoded
// reply Parcel, or a StatusCode returned in place of a Parcel (spec.md
// §4.3 — BR_REPLY with TRANSACTION_FLAG_STATUS_CODE set).
type CallResult struct {
	Reply      *parcel.Parcel
	StatusCode int32
	HasStatus  bool
}

// Session owns one open, mmap'd, looper-registered binder file descriptor.
// A Session may be used concurrently by multiple goroutines; Call serializes
// access with an internal mutex, matching the single binder_thread_exit/
// single-looper-thread model spec.md §5 describes (Non-goal: no
// multi-threaded looper pool).
type Session struct {
	mu     sync.Mutex
	fd     int
	path   string
	mapped []byte
	layout wire.Layout
	closed bool
}

// Open opens and initializes a binder session: open the device, negotiate
// the protocol variant via BINDER_VERSION, map the shared region read-only,
// advertise the looper thread ceiling, and register this thread as a looper
// via BC_ENTER_LOOPER.
func Open(path string) (*Session, error) {
	if path == "" {
		path = DefaultDevice
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		errno, _ := err.(unix.Errno)
		return nil, status.FromErrno(errno, "opening "+path)
	}

	s := &Session{fd: fd, path: path}

	layout, err := s.negotiateVersion()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	s.layout = layout

	mapped, err := unix.Mmap(fd, 0, wire.MapSize, unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		unix.Close(fd)
		errno, _ := err.(unix.Errno)
		return nil, status.FromErrno(errno, "mapping "+path)
	}
	s.mapped = mapped

	maxThreads := uint32(wire.MaxThreads)
	if err := s.ioctl(wire.IoW(wire.BinderIocMagic, wire.ReqSetMaxThreads, 4), unsafe.Pointer(&maxThreads)); err != nil {
		unix.Munmap(mapped)
		unix.Close(fd)
		return nil, err
	}

	if err := s.writeOnly([]byte{
		byte(wire.BcEnterLooper), byte(wire.BcEnterLooper >> 8),
		byte(wire.BcEnterLooper >> 16), byte(wire.BcEnterLooper >> 24),
	}); err != nil {
		unix.Munmap(mapped)
		unix.Close(fd)
		return nil, err
	}

	return s, nil
}

func (s *Session) negotiateVersion() (wire.Layout, error) {
	buf := wire.EncodeBinderVersion()
	cmd := wire.IoWR(wire.BinderIocMagic, wire.ReqVersion, wire.SizeOfBinderVersion)
	if err := s.ioctl(cmd, unsafe.Pointer(&buf[0])); err != nil {
		return wire.Layout{}, err
	}
	version := wire.DecodeBinderVersion(buf)
	layout, ok := wire.LayoutFor(version)
	if !ok {
		return wire.Layout{}, status.NewWithCode(status.VersionMismatch, "negotiating binder protocol version", uint32(version))
	}
	return layout, nil
}

func (s *Session) ioctl(cmd uint32, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), uintptr(cmd), uintptr(arg))
	if errno != 0 {
		return status.FromErrno(errno, "ioctl")
	}
	return nil
}

// writeOnly issues a BINDER_WRITE_READ with a write-only buffer, used for
// the one-shot BC_ENTER_LOOPER/BC_EXIT_LOOPER announcements.
func (s *Session) writeOnly(cmd []byte) error {
	bwr := s.layout.EncodeBinderWriteRead(
		uint64(len(cmd)), 0, uint64(uintptr(unsafe.Pointer(&cmd[0]))),
		0, 0, 0,
	)
	ioctlCmd := wire.IoWR(wire.BinderIocMagic, wire.ReqWriteRead, s.layout.SizeOfBinderWriteRead())
	return s.ioctl(ioctlCmd, unsafe.Pointer(&bwr[0]))
}

// Call issues a transaction to target/code with the given parcel and flags,
// and blocks until BR_REPLY or a terminal failure return code is read back.
// See interpretReturns for the return-stream state machine.
func (s *Session) Call(p *parcel.Parcel, target, code, flags uint32) (CallResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return CallResult{}, status.New(status.DriverError, "call on closed session")
	}

	data := p.Bytes()
	var dataPtr uint64
	if len(data) > 0 {
		dataPtr = uint64(uintptr(unsafe.Pointer(&data[0])))
	}

	offsets := p.Offsets()
	entryWidth := s.layout.Width
	offsetsBuf := make([]byte, len(offsets)*entryWidth)
	for i, off := range offsets {
		// Offsets are recorded as byte positions within the Parcel's own
		// buffer; binder_transaction_data.offsets wants them as an array of
		// binder_size_t entries, so each entry is 4 bytes on a v7 (32-bit)
		// session and 8 bytes on v8, matching the negotiated layout width.
		if entryWidth == 4 {
			binary.LittleEndian.PutUint32(offsetsBuf[i*entryWidth:], uint32(off))
		} else {
			binary.LittleEndian.PutUint64(offsetsBuf[i*entryWidth:], uint64(off))
		}
	}
	var offsetsPtr uint64
	if len(offsetsBuf) > 0 {
		offsetsPtr = uint64(uintptr(unsafe.Pointer(&offsetsBuf[0])))
	}

	td := wire.TransactionData{
		Target:      target,
		Code:        code,
		Flags:       flags,
		DataSize:    uint64(len(data)),
		OffsetsSize: uint64(len(offsetsBuf)),
		Data:        dataPtr,
		Offsets:     offsetsPtr,
	}
	tdBuf := s.layout.EncodeTransactionData(td)

	cmdHeader := s.layout.CommandTransactionCode(false)
	writeBuf := make([]byte, 4+len(tdBuf))
	putUint32At(writeBuf, 0, cmdHeader)
	copy(writeBuf[4:], tdBuf)

	readBuf := make([]byte, wire.ReadSize)

	bwr := s.layout.EncodeBinderWriteRead(
		uint64(len(writeBuf)), 0, uint64(uintptr(unsafe.Pointer(&writeBuf[0]))),
		uint64(len(readBuf)), 0, uint64(uintptr(unsafe.Pointer(&readBuf[0]))),
	)
	ioctlCmd := wire.IoWR(wire.BinderIocMagic, wire.ReqWriteRead, s.layout.SizeOfBinderWriteRead())
	if err := s.ioctl(ioctlCmd, unsafe.Pointer(&bwr[0])); err != nil {
		return CallResult{}, err
	}

	_, readConsumed := s.layout.DecodeBinderWriteRead(bwr)
	return interpretReturns(s.layout, readBuf[:readConsumed], s.mapped)
}

// Close tears the session down: a best-effort BC_EXIT_LOOPER (logged, not
// fatal, on failure — the original source's Drop panicked via .expect() on
// this exact call; SPEC_FULL.md §7 requires best-effort-and-log instead),
// then unmap and close. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writeOnly([]byte{
		byte(wire.BcExitLooper), byte(wire.BcExitLooper >> 8),
		byte(wire.BcExitLooper >> 16), byte(wire.BcExitLooper >> 24),
	}); err != nil {
		log.Printf("[binder] BC_EXIT_LOOPER failed on %s: %v", s.path, err)
	}

	cmd := wire.IoW(wire.BinderIocMagic, wire.ReqThreadExit, 4)
	var zero uint32
	if err := s.ioctl(cmd, unsafe.Pointer(&zero)); err != nil {
		log.Printf("[binder] BINDER_THREAD_EXIT failed on %s: %v", s.path, err)
	}

	if s.mapped != nil {
		if err := unix.Munmap(s.mapped); err != nil {
			log.Printf("[binder] munmap failed on %s: %v", s.path, err)
		}
	}

	return unix.Close(s.fd)
}

// Layout returns the protocol layout this session negotiated.
func (s *Session) Layout() wire.Layout {
	return s.layout
}

// Path returns the device path this session opened.
func (s *Session) Path() string {
	return s.path
}

func putUint32At(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}
