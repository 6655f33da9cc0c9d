// Package channel implements the LTSM channel multiplexer: virtual,
// ordered, reliable byte channels framed inside the RFB link (spec §4.5).
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Speed is a hint the codec layer on a channel uses to pick a cheaper or
// more aggressive compression strategy (spec §4.5).
type Speed int

const (
	SpeedSlow Speed = iota
	SpeedNormal
	SpeedFast
	SpeedUltraFast
)

// DefaultBackpressureThreshold bounds how many outbound frames may be
// queued on a channel before Push blocks (spec §4.5, §5).
const DefaultBackpressureThreshold = 64

// ErrClosed is returned by Push/Pull once a channel has been closed.
var ErrClosed = errors.New("channel: closed")

// Channel is a single virtual channel multiplexed over the RFB link. It
// satisfies the push/pull/close/speedHint capability set from spec §3.
type Channel struct {
	id    byte
	speed Speed
	mux   *Multiplexer
	log   zerolog.Logger

	outbox        chan []byte
	inbox         chan []byte
	drainedWrites chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// ID returns the channel's byte id (1-255; 0 is reserved for system
// messages).
func (c *Channel) ID() byte { return c.id }

// SpeedHint returns the channel's configured speed hint.
func (c *Channel) SpeedHint() Speed { return c.speed }

// Push enqueues data to be framed and written to the peer. It blocks when
// the outbound queue is at its backpressure threshold (spec §4.5).
func (c *Channel) Push(ctx context.Context, data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	buf := append([]byte(nil), data...)
	select {
	case c.outbox <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pull blocks until a frame arrives from the peer, the context is
// cancelled, or the channel is closed.
func (c *Channel) Pull(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.inbox:
		if !ok {
			return nil, ErrClosed
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close flushes pending writes, tells the peer via ChannelClose, and
// releases the channel id (spec §4.5: "Cancellation").
func (c *Channel) Close(reason string) error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.outbox)
		<-c.drainedWrites
		c.closeErr = c.mux.sendChannelClose(c.id, reason)
		c.mux.release(c.id)
		close(c.inbox)
	})
	return c.closeErr
}

// writeLoop is the per-channel write-side framing thread (spec §5): it
// drains outbox, hands each frame to the multiplexer's single serialized
// writer, and signals drainedWrites once outbox is closed and empty.
func (c *Channel) writeLoop() {
	defer close(c.drainedWrites)
	for data := range c.outbox {
		if err := c.mux.sendChannelData(c.id, data); err != nil {
			c.log.Warn().Err(err).Msg("channel write failed")
			return
		}
	}
}
