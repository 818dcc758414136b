package rpc

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/sense/hdlc"
	"github.com/temoto/sense/transport"
)

// ErrorKind is closed set of failure classes, see KindOf.
type ErrorKind uint8

const (
	KindNone ErrorKind = iota
	// checksum or escape failure, recovered inside decoder
	KindFrameCorrupt
	KindFrameTooLarge
	// inbound packet for unknown call, dropped
	KindCallNotFound
	// device returned error status for known call
	KindRemote
	KindTransportClosed
	// remote NOT_FOUND, drives capability fallback
	KindCapabilityUnavailable
	KindCancelled
	KindOther
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindFrameCorrupt:
		return "frame-corrupt"
	case KindFrameTooLarge:
		return "frame-too-large"
	case KindCallNotFound:
		return "call-not-found"
	case KindRemote:
		return "remote"
	case KindTransportClosed:
		return "transport-closed"
	case KindCapabilityUnavailable:
		return "capability-unavailable"
	case KindCancelled:
		return "cancelled"
	case KindOther:
		return "other"
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// ErrTransportClosed is the transport package sentinel, so errors.Is matches either.
const ErrTransportClosed = transport.ErrClosed

type Error struct {
	Kind   ErrorKind
	Status Status
	Method Method
	Err    error
}

func (e *Error) Error() string {
	s := "rpc " + e.Kind.String()
	if e.Method.Name != "" {
		s += " method=" + e.Method.FullName()
	}
	if e.Kind == KindRemote || e.Kind == KindCapabilityUnavailable || e.Status != StatusOK {
		s += " status=" + e.Status.String()
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// RemoteError classifies device error status.
func RemoteError(m Method, status Status) *Error {
	kind := KindRemote
	if status == StatusNotFound {
		kind = KindCapabilityUnavailable
	}
	return &Error{Kind: kind, Status: status, Method: m}
}

func cancelledError(m Method, cause error) *Error {
	kind := KindCancelled
	if errors.Is(cause, ErrTransportClosed) {
		kind = KindTransportClosed
	}
	return &Error{Kind: kind, Status: StatusCancelled, Method: m, Err: cause}
}

// KindOf classifies any error returned by this module.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, hdlc.ErrFrameTooLarge):
		return KindFrameTooLarge
	case errors.Is(err, hdlc.ErrFrameCorrupt),
		errors.Is(err, hdlc.ErrEscape),
		errors.Is(err, hdlc.ErrFrameShort),
		errors.Is(err, hdlc.ErrAddress):
		return KindFrameCorrupt
	case errors.Is(err, ErrTransportClosed):
		return KindTransportClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	}
	return KindOther
}

// StatusOf returns remote status or UNKNOWN for non remote errors.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusUnknown
}

// IsNotFound reports whether device lacks the method.
// Only exact NOT_FOUND status qualifies.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindCapabilityUnavailable && e.Status == StatusNotFound
}
