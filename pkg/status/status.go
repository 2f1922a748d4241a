// Package status is the error taxonomy shared by pkg/parcel, pkg/binder,
// and pkg/servicemanager — grounded on the teacher
// (emergingrobotics-go-hailo) pkg/driver/errors.go Status/HailoError
// pattern: a closed enum with a human-readable table, a single wrapped
// error type carrying the status plus context plus an optional cause, and
// an errno-to-status mapping function for syscall failures.
package status

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Status is a taxonomy of everything that can go wrong opening a binder
// session, driving a transaction, decoding a Parcel, or talking to the
// servicemanager (spec.md §7).
type Status int

const (
	Success Status = iota

	// Initialization and per-call kernel errors.
	DeviceOpenFailed
	VersionMismatch
	MmapFailed
	IoctlFailed

	// Protocol decoding.
	ShortRead
	TruncatedPayload
	UnexpectedReturn

	// Explicit kernel/remote failures.
	DriverError
	TransactionFailed

	// Syscall interruption.
	Interrupted

	// Parcel parsing.
	DecodeError
	UnsupportedObject

	// Servicemanager layer.
	ServiceManagerUnreachable
	AddServiceFailed
)

var messages = map[Status]string{
	Success:                   "success",
	DeviceOpenFailed:          "failed to open binder device",
	VersionMismatch:           "binder protocol version mismatch",
	MmapFailed:                "failed to map binder device",
	IoctlFailed:               "ioctl failed",
	ShortRead:                 "short read from binder device",
	TruncatedPayload:          "truncated return-stream payload",
	UnexpectedReturn:          "unexpected binder return code",
	DriverError:               "binder driver error",
	TransactionFailed:         "binder transaction failed",
	Interrupted:               "interrupted",
	DecodeError:               "parcel decode error",
	UnsupportedObject:         "unsupported flat binder object type",
	ServiceManagerUnreachable: "servicemanager unreachable",
	AddServiceFailed:          "add_service failed",
}

// String returns the human-readable status message.
func (s Status) String() string {
	if msg, ok := messages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// BinderError is the single error type every package in this module
// returns. Code carries the numeric payload for statuses that need one
// (UnexpectedReturn(code), AddServiceFailed(code)); it is zero otherwise.
type BinderError struct {
	Status  Status
	Context string
	Code    uint32
	Cause   error
}

// Error implements the error interface.
func (e *BinderError) Error() string {
	msg := e.Status.String()
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (0x%x)", msg, e.Code)
	}
	switch {
	case e.Context != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Context, msg, e.Cause)
	case e.Context != "":
		return fmt.Sprintf("%s: %s", e.Context, msg)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	default:
		return msg
	}
}

// Unwrap returns the underlying cause, if any.
func (e *BinderError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *BinderError with the same Status.
func (e *BinderError) Is(target error) bool {
	var other *BinderError
	if errors.As(target, &other) {
		return e.Status == other.Status
	}
	return false
}

// New creates a BinderError with the given status and context.
func New(status Status, context string) *BinderError {
	return &BinderError{Status: status, Context: context}
}

// NewWithCause creates a BinderError wrapping an underlying cause.
func NewWithCause(status Status, context string, cause error) *BinderError {
	return &BinderError{Status: status, Context: context, Cause: cause}
}

// NewWithCode creates a BinderError carrying a numeric code, e.g.
// UnexpectedReturn(code) or AddServiceFailed(code).
func NewWithCode(status Status, context string, code uint32) *BinderError {
	return &BinderError{Status: status, Context: context, Code: code}
}

// ErrnoToStatus maps a Linux errno from an open/ioctl/mmap call to a
// Status. EINTR maps to Interrupted: spec.md §5 requires surfacing a
// signal-interrupted BINDER_WRITE_READ distinctly so a caller can retry.
func ErrnoToStatus(errno unix.Errno) Status {
	switch errno {
	case unix.EINTR:
		return Interrupted
	case unix.ENODEV, unix.ENOENT:
		return DeviceOpenFailed
	case unix.ENOTTY, unix.EINVAL:
		return IoctlFailed
	case unix.ENOMEM:
		return MmapFailed
	default:
		return IoctlFailed
	}
}

// FromErrno builds a BinderError from an errno, with context.
func FromErrno(errno unix.Errno, context string) *BinderError {
	return &BinderError{Status: ErrnoToStatus(errno), Context: context, Cause: errno}
}
