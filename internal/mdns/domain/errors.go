package domain

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates the failure signals surfaced by the codec, the query
// engine and discovery sessions. Callers switch on it (see KindOf) instead of
// matching error strings.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	// KindMalformedPacket: wire data could not be decoded.
	KindMalformedPacket
	// KindEncoding: a message could not be encoded (name or label too long).
	KindEncoding
	// KindProtocol: a decoded message violates mDNS / DNS-SD semantics.
	KindProtocol
	// KindTransport: socket-level failure. Fatal to a session.
	KindTransport
	// KindResolutionTimeout: no SRV/TXT answer before the resolve deadline.
	KindResolutionTimeout
	// KindSessionStopped: the session was stopped while the call was in flight.
	KindSessionStopped
)

// String returns a stable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindMalformedPacket:
		return "malformed packet"
	case KindEncoding:
		return "encoding"
	case KindProtocol:
		return "bonjour protocol"
	case KindTransport:
		return "transport"
	case KindResolutionTimeout:
		return "resolution timeout"
	case KindSessionStopped:
		return "session stopped"
	default:
		return "unknown"
	}
}

// Error is the single discovery error type. Kind is the discriminant, Detail a
// human-readable description and Err the optional lower-level cause.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrMalformedPacket   = &Error{Kind: KindMalformedPacket}
	ErrEncoding          = &Error{Kind: KindEncoding}
	ErrProtocol          = &Error{Kind: KindProtocol}
	ErrTransport         = &Error{Kind: KindTransport}
	ErrResolutionTimeout = &Error{Kind: KindResolutionTimeout}
	ErrSessionStopped    = &Error{Kind: KindSessionStopped}
)

// NewError builds an *Error of the given kind.
func NewError(kind ErrorKind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

// Malformedf builds a KindMalformedPacket error with a formatted detail.
func Malformedf(format string, args ...any) *Error {
	return &Error{Kind: KindMalformedPacket, Detail: fmt.Sprintf(format, args...)}
}

// Encodingf builds a KindEncoding error with a formatted detail.
func Encodingf(format string, args ...any) *Error {
	return &Error{Kind: KindEncoding, Detail: fmt.Sprintf(format, args...)}
}

// Protocolf builds a KindProtocol error with a formatted detail.
func Protocolf(format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality, so errors.Is(err, ErrTransport) holds for every
// transport error regardless of detail or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
