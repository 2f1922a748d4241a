// Package servicemanager implements the handle-0 binder client to
// Android's IServiceManager: Ping, Get, Add, List, and Check. Grounded on
// the teacher's pkg/control/messages.go opcode-dispatch shape (build
// request, issue it, log and wrap failures, validate, log success), and on
// original_source/src/service/service_manager.rs for the transaction codes
// and per-call request layouts it implements.
package servicemanager

import (
	"fmt"
	"log"

	"github.com/gobinder/android-binder/pkg/binder"
	"github.com/gobinder/android-binder/pkg/parcel"
	"github.com/gobinder/android-binder/pkg/status"
	"github.com/gobinder/android-binder/pkg/wire"
)

// ServiceManagerHandle is the binder handle of the service manager itself,
// always 0.
const ServiceManagerHandle = 0

// InterfaceToken is the interface name every transaction to the service
// manager must open with.
const InterfaceToken = "android.os.IServiceManager"

// Transaction codes understood by IServiceManager.
const (
	codeGetService   = 1
	codeCheckService = 2
	codeAddService   = 3
	codeListServices = 4
)

// addServiceCookie is the fixed cookie value spec.md §4.4 specifies for the
// flat binder object add_service sends along with the local handle.
const addServiceCookie = 0xCACACACA

// caller is the subset of *binder.Session this package drives transactions
// through. Narrowing to an interface lets the transaction-building logic
// below be unit tested against a synthetic session, the same way
// interpretReturns is tested against a synthetic return stream, without a
// real /dev/binder.
type caller interface {
	Call(p *parcel.Parcel, target, code, flags uint32) (binder.CallResult, error)
	Layout() wire.Layout
}

// ServiceManager is a client bound to handle 0 of an open Session. The
// Session is shared by pointer, not owned or consumed (SPEC_FULL.md §9 —
// the original source's Service/ServiceManager moved the Binder by value;
// this relaxes that to let one Session back many Service handles).
type ServiceManager struct {
	session caller
}

// Service is a remote binder handle obtained from the service manager.
type Service struct {
	Handle  uint32
	session caller
}

// New opens a Session against the given device path ("" for the default)
// and pings the service manager to confirm it answers before returning.
func New(devicePath string) (*ServiceManager, error) {
	s, err := binder.Open(devicePath)
	if err != nil {
		return nil, err
	}
	sm := &ServiceManager{session: s}
	if err := sm.Ping(); err != nil {
		s.Close()
		return nil, status.NewWithCause(status.ServiceManagerUnreachable, "pinging service manager", err)
	}
	return sm, nil
}

// Close tears down the underlying session. A session without a Close
// method is left as is.
func (sm *ServiceManager) Close() error {
	if c, ok := sm.session.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Ping issues the well-known ping transaction against handle 0.
func (sm *ServiceManager) Ping() error {
	log.Printf("[servicemanager] Ping")
	_, err := sm.session.Call(parcel.New(), ServiceManagerHandle, wire.TransactionPing, 0x10)
	if err != nil {
		log.Printf("[servicemanager] Ping failed: %v", err)
		return err
	}
	log.Printf("[servicemanager] Ping succeeded")
	return nil
}

func buildRequest(name string) *parcel.Parcel {
	p := parcel.New()
	p.PutInterfaceToken(InterfaceToken)
	p.PutStr16(name)
	return p
}

// Get looks up a named service, returning its handle wrapped in a Service
// bound to the same session. Fails with ServiceManagerUnreachable-class
// errors if the name is unregistered.
func (sm *ServiceManager) Get(name string) (Service, error) {
	log.Printf("[servicemanager] Get(%q)", name)
	result, err := sm.session.Call(buildRequest(name), ServiceManagerHandle, codeGetService, 0)
	if err != nil {
		log.Printf("[servicemanager] Get(%q) failed: %v", name, err)
		return Service{}, err
	}
	if result.HasStatus {
		log.Printf("[servicemanager] Get(%q): not found, status=%d", name, result.StatusCode)
		return Service{}, status.NewWithCode(status.ServiceManagerUnreachable, "get_service: not found", uint32(result.StatusCode))
	}
	handle, err := result.Reply.GetObject(sm.session.Layout())
	if err != nil {
		return Service{}, err
	}
	log.Printf("[servicemanager] Get(%q): handle=%d", name, handle)
	return Service{Handle: handle, session: sm.session}, nil
}

// Check looks up a named service the same way Get does, but reports
// non-existence as (false, nil) instead of an error — restoring the
// CHECK_SERVICE transaction the original source defined but never called
// (SPEC_FULL.md §4.5).
func (sm *ServiceManager) Check(name string) (Service, bool, error) {
	log.Printf("[servicemanager] Check(%q)", name)
	result, err := sm.session.Call(buildRequest(name), ServiceManagerHandle, codeCheckService, 0)
	if err != nil {
		log.Printf("[servicemanager] Check(%q) failed: %v", name, err)
		return Service{}, false, err
	}
	if result.HasStatus {
		log.Printf("[servicemanager] Check(%q): absent", name)
		return Service{}, false, nil
	}
	handle, err := result.Reply.GetObject(sm.session.Layout())
	if err != nil {
		return Service{}, false, err
	}
	return Service{Handle: handle, session: sm.session}, true, nil
}

// Add registers the calling process's binder handle under name.
// allowIsolated controls whether isolated processes may look it up.
func (sm *ServiceManager) Add(name string, handle uint64, allowIsolated bool) error {
	log.Printf("[servicemanager] Add(%q, handle=%d, allowIsolated=%v)", name, handle, allowIsolated)

	p := parcel.New()
	p.PutInterfaceToken(InterfaceToken)
	p.PutStr16(name)
	p.PutBinder(sm.session.Layout(), handle, addServiceCookie, 0)
	isolated := int32(0)
	if allowIsolated {
		isolated = 1
	}
	p.PutI32(isolated)

	result, err := sm.session.Call(p, ServiceManagerHandle, codeAddService, 0)
	if err != nil {
		log.Printf("[servicemanager] Add(%q) failed: %v", name, err)
		return err
	}
	if result.HasStatus && result.StatusCode != 0 {
		log.Printf("[servicemanager] Add(%q): rejected, status=%d", name, result.StatusCode)
		return status.NewWithCode(status.AddServiceFailed, "add_service", uint32(result.StatusCode))
	}
	log.Printf("[servicemanager] Add(%q): registered", name)
	return nil
}

// List enumerates every registered service name, issuing one
// LIST_SERVICES transaction per index. Per spec.md §4.4, a StatusCode
// reply or a call failure both just mean "end of list": either stops the
// loop and returns the names accumulated so far, not an error.
func (sm *ServiceManager) List() ([]string, error) {
	var names []string
	for n := uint32(0); n < TransactionLastIndex; n++ {
		p := parcel.New()
		p.PutInterfaceToken(InterfaceToken)
		p.PutU32(n)

		result, err := sm.session.Call(p, ServiceManagerHandle, codeListServices, 0)
		if err != nil {
			log.Printf("[servicemanager] List: call failed at index %d: %v", n, err)
			break
		}
		if result.HasStatus {
			break
		}
		name, err := result.Reply.GetStr16()
		if err != nil {
			log.Printf("[servicemanager] List: decode failed at index %d: %v", n, err)
			break
		}
		names = append(names, name)
	}
	return names, nil
}

// TransactionLastIndex bounds List's enumeration loop (2^32-1, matching
// the original source's loop over 0..u32::MAX).
const TransactionLastIndex = 1<<32 - 1

// Call issues an arbitrary transaction against this service's handle.
func (svc Service) Call(p *parcel.Parcel, code, flags uint32) (binder.CallResult, error) {
	if svc.session == nil {
		return binder.CallResult{}, status.New(status.DriverError, fmt.Sprintf("call on unbound service handle %d", svc.Handle))
	}
	return svc.session.Call(p, svc.Handle, code, flags)
}
