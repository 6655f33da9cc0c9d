// Package ltsmerr collects the protocol-level error kinds from spec §7 that
// aren't already covered by internal/wire's transport-level errors
// (IoClosed, IoError, Underflow).
package ltsmerr

import "fmt"

// ProtocolError reports an unexpected byte, bad length, or unsupported
// version encountered while parsing the wire protocol.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "ltsm: protocol error: " + e.Reason }

// NewProtocolError builds a ProtocolError with a formatted reason.
func NewProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// AuthFailed reports a password or certificate mismatch during security
// negotiation.
type AuthFailed struct {
	Reason string
}

func (e *AuthFailed) Error() string { return "ltsm: authentication failed: " + e.Reason }

// TLSError wraps a handshake or record-layer failure, tagged with the
// session id and negotiated cipher where available (spec §7).
type TLSError struct {
	SessionID string
	Cipher    string
	Err       error
}

func (e *TLSError) Error() string {
	return fmt.Sprintf("ltsm: tls error (session=%s cipher=%s): %v", e.SessionID, e.Cipher, e.Err)
}

func (e *TLSError) Unwrap() error { return e.Err }

// Unsupported reports a requested encoder/codec that isn't built in. Per
// spec §7 this is recoverable: the caller falls back to Raw (video) or PCM
// (audio) and logs a warning.
type Unsupported struct {
	What string
}

func (e *Unsupported) Error() string { return "ltsm: unsupported: " + e.What }

// ScardError surfaces the exact PC/SC status code a remote call failed
// with (spec §7); see internal/pcsc/statuscodes.go for the enumeration.
type ScardError struct {
	Code uint32
	Name string
}

func (e *ScardError) Error() string { return fmt.Sprintf("ltsm: scard error %s (0x%08X)", e.Name, e.Code) }

// AudioError reports a codec or sink rejecting a frame. The audio channel
// stays alive; the frame is dropped.
type AudioError struct {
	Reason string
}

func (e *AudioError) Error() string { return "ltsm: audio error: " + e.Reason }
