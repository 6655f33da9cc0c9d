package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ltsm-go/ltsm/internal/wire"
)

// pump reads one LTSM frame's message-type byte from side and dispatches it
// into mux, looping until the pipe closes. It stands in for the RFB engine's
// ready loop noticing a reserved message type (spec §6.1).
func pump(mux *Multiplexer, side *wire.Stream, done chan<- struct{}) {
	defer close(done)
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

func newPipePair() (*wire.Stream, *wire.Stream, func()) {
	a, b := net.Pipe()
	sa, sb := wire.New(a), wire.New(b)
	sa.SetRecvTimeout(2 * time.Second)
	sb.SetRecvTimeout(2 * time.Second)
	return sa, sb, func() { a.Close(); b.Close() }
}

func TestChannelPushPullRoundTrip(t *testing.T) {
	sa, sb, closer := newPipePair()
	defer closer()

	muxA := NewMultiplexer(sa)
	muxB := NewMultiplexer(sb)

	doneA := make(chan struct{})
	doneB := make(chan struct{})
	go pump(muxA, sa, doneA)
	go pump(muxB, sb, doneB)

	chA, err := muxA.Open(7, "generic", SpeedNormal, 0)
	require.NoError(t, err)

	// muxB observes the ChannelOpen as a system message; register the
	// mirror channel itself, as the session layer would on actual
	// channel-open wiring.
	opened := make(chan byte, 1)
	muxB.OnSystemMessage = func(msg SystemMessage) {
		if msg.Cmd == CmdChannelOpen {
			opened <- msg.ChannelID
		}
	}

	var id byte
	select {
	case id = <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel-open system message")
	}
	require.Equal(t, byte(7), id)

	chB := &Channel{
		id:            id,
		speed:         SpeedNormal,
		mux:           muxB,
		outbox:        make(chan []byte, DefaultBackpressureThreshold),
		inbox:         make(chan []byte, DefaultBackpressureThreshold),
		drainedWrites: make(chan struct{}),
	}
	muxB.mu.Lock()
	muxB.channels[id] = chB
	muxB.mu.Unlock()
	go chB.writeLoop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, chA.Push(ctx, []byte("hello from A")))
	got, err := chB.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello from A", string(got))

	require.NoError(t, chB.Push(ctx, []byte("hello from B")))
	got, err = chA.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello from B", string(got))

	require.Equal(t, byte(7), chA.ID())
	require.Equal(t, SpeedNormal, chA.SpeedHint())
}

func TestChannelCloseReleasesID(t *testing.T) {
	sa, sb, closer := newPipePair()
	defer closer()

	muxA := NewMultiplexer(sa)
	muxB := NewMultiplexer(sb)

	doneA := make(chan struct{})
	doneB := make(chan struct{})
	go pump(muxA, sa, doneA)
	go pump(muxB, sb, doneB)

	chA, err := muxA.Open(3, "generic", SpeedSlow, 0)
	require.NoError(t, err)

	require.NoError(t, chA.Close("done"))

	_, ok := muxA.Get(3)
	require.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = chA.Pull(ctx)
	require.ErrorIs(t, err, ErrClosed)

	// Closing twice must not panic or block (sync.Once guard).
	require.NoError(t, chA.Close("again"))
}

func TestMultiplexerRejectsReservedChannelZero(t *testing.T) {
	sa, _, closer := newPipePair()
	defer closer()

	muxA := NewMultiplexer(sa)
	_, err := muxA.Open(0, "generic", SpeedNormal, 0)
	require.Error(t, err)
}
