package pcsc

import "time"

// Protocol is the card communication protocol negotiated by Connect
// (SCARD_PROTOCOL_T0/T1, mirrored from winscard.h).
type Protocol uint32

const (
	ProtocolUndefined Protocol = 0
	ProtocolT0        Protocol = 1
	ProtocolT1        Protocol = 2
)

// ShareMode and Disposition mirror the PC/SC-Lite Connect/Disconnect
// parameters; the proxy passes them through to the Backend unmodified.
type ShareMode uint32
type Disposition uint32

// ReaderState is one row of the fixed-size reader-state table the local
// stub maintains (spec §4.6 DESIGN FLAG: fixed-size table, not a growable
// map, so a single GetStatusChange snapshot is O(1) to copy).
type ReaderState struct {
	Name            string
	CurrentState    uint32
	EventState      uint32
	ATR             []byte
	CardPresent     bool
	LastChangedUnix int64
}

// Backend is the external collaborator the remote peer drives: the real
// (or simulated) PC/SC-Lite resource manager on the host where the smart
// card reader is physically attached (spec §6.5: "the full PC/SC-Lite API
// surface listed in §4.6").
type Backend interface {
	EstablishContext() (ctx uint64, status Status)
	ReleaseContext(ctx uint64) Status
	ListReaders(ctx uint64) (names []string, status Status)
	Connect(ctx uint64, reader string, mode ShareMode, preferred Protocol) (handle uint64, active Protocol, status Status)
	Reconnect(handle uint64, mode ShareMode, preferred Protocol, disposition Disposition) (active Protocol, status Status)
	Disconnect(handle uint64, disposition Disposition) Status
	BeginTransaction(handle uint64) Status
	EndTransaction(handle uint64, disposition Disposition) Status
	Transmit(handle uint64, sendPCI Protocol, data []byte) (recvProtocol Protocol, recvPCILen uint32, resp []byte, status Status)
	Status(handle uint64) (name string, state uint32, protocol Protocol, atr []byte, status Status)
	GetStatusChange(ctx uint64, timeout time.Duration, readers []ReaderState) (updated []ReaderState, status Status)
	Control(handle uint64, controlCode uint32, in []byte) (out []byte, status Status)
	GetAttrib(handle uint64, attribID uint32) (value []byte, status Status)
	SetAttrib(handle uint64, attribID uint32, value []byte) Status
	Cancel(ctx uint64) Status
}
