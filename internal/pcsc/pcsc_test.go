package pcsc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ltsm-go/ltsm/internal/channel"
	"github.com/ltsm-go/ltsm/internal/wire"
)

// fakeBackend is a minimal in-memory PC/SC-Lite resource manager for tests.
type fakeBackend struct {
	nextCtx    uint64
	nextHandle uint64
	readers    []string
}

func (b *fakeBackend) EstablishContext() (uint64, Status) {
	b.nextCtx++
	return b.nextCtx, SCardSSuccess
}
func (b *fakeBackend) ReleaseContext(ctx uint64) Status { return SCardSSuccess }
func (b *fakeBackend) ListReaders(ctx uint64) ([]string, Status) {
	return b.readers, SCardSSuccess
}
func (b *fakeBackend) Connect(ctx uint64, reader string, mode ShareMode, preferred Protocol) (uint64, Protocol, Status) {
	b.nextHandle++
	return b.nextHandle, ProtocolT1, SCardSSuccess
}
func (b *fakeBackend) Reconnect(handle uint64, mode ShareMode, preferred Protocol, disposition Disposition) (Protocol, Status) {
	return ProtocolT1, SCardSSuccess
}
func (b *fakeBackend) Disconnect(handle uint64, disposition Disposition) Status { return SCardSSuccess }
func (b *fakeBackend) BeginTransaction(handle uint64) Status                    { return SCardSSuccess }
func (b *fakeBackend) EndTransaction(handle uint64, disposition Disposition) Status {
	return SCardSSuccess
}
func (b *fakeBackend) Transmit(handle uint64, sendPCI Protocol, data []byte) (Protocol, uint32, []byte, Status) {
	resp := append([]byte{0x90, 0x00}, data...)
	return ProtocolT1, 0, resp, SCardSSuccess
}
func (b *fakeBackend) Status(handle uint64) (string, uint32, Protocol, []byte, Status) {
	return "fake-reader", 1, ProtocolT1, []byte{0x3B, 0x00}, SCardSSuccess
}
func (b *fakeBackend) GetStatusChange(ctx uint64, timeout time.Duration, readers []ReaderState) ([]ReaderState, Status) {
	out := make([]ReaderState, len(readers))
	for i, r := range readers {
		out[i] = ReaderState{Name: r.Name, CurrentState: r.CurrentState, EventState: r.CurrentState + 1}
	}
	return out, SCardSSuccess
}
func (b *fakeBackend) Control(handle uint64, controlCode uint32, in []byte) ([]byte, Status) {
	return in, SCardSSuccess
}
func (b *fakeBackend) GetAttrib(handle uint64, attribID uint32) ([]byte, Status) {
	return []byte{1, 2, 3}, SCardSSuccess
}
func (b *fakeBackend) SetAttrib(handle uint64, attribID uint32, value []byte) Status {
	return SCardSSuccess
}
func (b *fakeBackend) Cancel(ctx uint64) Status { return SCardSSuccess }

func newChannelPair(t *testing.T) (*channel.Channel, *channel.Channel, func()) {
	t.Helper()
	a, b := net.Pipe()
	sa, sb := wire.New(a), wire.New(b)
	sa.SetRecvTimeout(2 * time.Second)
	sb.SetRecvTimeout(2 * time.Second)

	muxA := channel.NewMultiplexer(sa)
	muxB := channel.NewMultiplexer(sb)

	pump := func(mux *channel.Multiplexer, side *wire.Stream) {
		for {
			msgType, err := side.RecvByte()
			if err != nil {
				return
			}
			if err := mux.HandleIncoming(msgType); err != nil {
				return
			}
		}
	}
	go pump(muxA, sa)
	go pump(muxB, sb)

	chA, err := muxA.Open(9, "pcsc", channel.SpeedNormal, 0)
	require.NoError(t, err)
	chB, err := muxB.Open(9, "pcsc", channel.SpeedNormal, 0)
	require.NoError(t, err)

	return chA, chB, func() { a.Close(); b.Close() }
}

func TestRemoteClientEstablishContextRoundTrip(t *testing.T) {
	chClient, chRemote, closer := newChannelPair(t)
	defer closer()

	backend := &fakeBackend{}
	peer := NewRemotePeer(chRemote, backend)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go peer.Serve(ctx)

	client := NewRemoteClient(chClient)
	remoteCtx, status, err := client.EstablishContext(ctx)
	require.NoError(t, err)
	require.Equal(t, SCardSSuccess, status)
	require.Equal(t, uint64(1), remoteCtx)
}

func TestRemoteClientConnectAndTransmit(t *testing.T) {
	chClient, chRemote, closer := newChannelPair(t)
	defer closer()

	backend := &fakeBackend{readers: []string{"Reader 1"}}
	peer := NewRemotePeer(chRemote, backend)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go peer.Serve(ctx)

	client := NewRemoteClient(chClient)
	remoteCtx, _, err := client.EstablishContext(ctx)
	require.NoError(t, err)

	names, err := client.ListReaders(ctx, remoteCtx)
	require.NoError(t, err)
	require.Equal(t, []string{"Reader 1"}, names)

	handle, active, status, err := client.Connect(ctx, remoteCtx, "Reader 1", 0, 0)
	require.NoError(t, err)
	require.Equal(t, SCardSSuccess, status)
	require.Equal(t, ProtocolT1, active)

	_, resp, status, err := client.Transmit(ctx, handle, ProtocolT1, []byte{0x00, 0xA4})
	require.NoError(t, err)
	require.Equal(t, SCardSSuccess, status)
	require.Equal(t, []byte{0x90, 0x00, 0x00, 0xA4}, resp)
}

func TestTransactionLockExclusivity(t *testing.T) {
	chClient, chRemote, closer := newChannelPair(t)
	defer closer()

	backend := &fakeBackend{}
	peer := NewRemotePeer(chRemote, backend)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go peer.Serve(ctx)

	client := NewRemoteClient(chClient)

	status, err := client.BeginTransaction(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, SCardSSuccess, status)

	status, err = client.BeginTransaction(ctx, 99)
	require.NoError(t, err)
	require.Equal(t, SCardESharingViolation, status, "a second owner must not acquire a held transaction lock")

	status, err = client.EndTransaction(ctx, 99, 0)
	require.NoError(t, err)
	require.Equal(t, SCardENotTransacted, status, "only the owner may end the transaction")

	status, err = client.EndTransaction(ctx, 42, 0)
	require.NoError(t, err)
	require.Equal(t, SCardSSuccess, status)

	status, err = client.BeginTransaction(ctx, 99)
	require.NoError(t, err)
	require.Equal(t, SCardSSuccess, status, "the lock must be free again after the owner ends it")
}

func TestIDMapRoundTripAndRelease(t *testing.T) {
	m := newIDMap()
	local := m.Bind(0xDEADBEEF)
	remote, ok := m.Remote(local)
	require.True(t, ok)
	require.Equal(t, uint64(0xDEADBEEF), remote)
	require.Equal(t, 1, m.Count())

	// Re-binding the same remote id returns the same local id.
	require.Equal(t, local, m.Bind(0xDEADBEEF))

	m.Release(local)
	require.Equal(t, 0, m.Count())
	_, ok = m.Remote(local)
	require.False(t, ok)
}

func TestReaderTableSnapshotAndChangeDetection(t *testing.T) {
	var table readerTable
	changed := table.Replace([]ReaderState{{Name: "Reader 1", EventState: 1}})
	require.Equal(t, []string{"Reader 1"}, changed)

	snap := table.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "Reader 1", snap[0].Name)

	changed = table.Replace([]ReaderState{{Name: "Reader 1", EventState: 1}})
	require.Empty(t, changed, "replacing with identical state must report no change")

	changed = table.Replace([]ReaderState{{Name: "Reader 1", EventState: 2}})
	require.Equal(t, []string{"Reader 1"}, changed)
}

func TestRemoteClientGetStatusChangeZeroTimeoutReturnsImmediately(t *testing.T) {
	chClient, chRemote, closer := newChannelPair(t)
	defer closer()

	backend := &fakeBackend{readers: []string{"Reader 1"}}
	peer := NewRemotePeer(chRemote, backend)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go peer.Serve(ctx)

	client := NewRemoteClient(chClient)
	remoteCtx, _, err := client.EstablishContext(ctx)
	require.NoError(t, err)

	start := time.Now()
	updated, status, err := client.GetStatusChange(ctx, remoteCtx, 0, []ReaderState{{Name: "Reader 1"}})
	require.NoError(t, err)
	require.Equal(t, SCardSSuccess, status)
	require.Len(t, updated, 1)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
