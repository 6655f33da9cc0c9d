package rfbengine

import (
	"context"
	"time"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/wire"
)

const continuousPollInterval = 16 * time.Millisecond

// handleEnableContinuousUpdates is message type 150, C→S: the client
// hands the server a sub-region to watch and stops issuing explicit
// FramebufferUpdateRequests for it (spec §4.3).
func (sess *Session) handleEnableContinuousUpdates() error {
	enable, err := sess.stream.RecvByte()
	if err != nil {
		return err
	}
	x, err := sess.stream.RecvU16BE()
	if err != nil {
		return err
	}
	y, err := sess.stream.RecvU16BE()
	if err != nil {
		return err
	}
	w, err := sess.stream.RecvU16BE()
	if err != nil {
		return err
	}
	h, err := sess.stream.RecvU16BE()
	if err != nil {
		return err
	}
	sess.continuousUpdates = enable != 0
	sess.continuousRegion = rfbproto.Region{X: x, Y: y, Width: w, Height: h}
	return nil
}

// RunContinuousUpdates polls the Display Adapter for damage and pushes
// spontaneous updates while continuous updates are enabled, independent of
// the client issuing FramebufferUpdateRequests (spec §4.3). Neither
// RunServer nor the supervisor starts it; updates are pushed only while a
// caller runs it alongside the ready loop.
func (sess *Session) RunContinuousUpdates(ctx context.Context) error {
	ticker := time.NewTicker(continuousPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !sess.continuousUpdates {
				continue
			}
			if err := sess.handleUpdateRequest(FramebufferUpdateRequest{
				Incremental: true,
				Region:      sess.continuousRegion,
			}); err != nil {
				return err
			}
		}
	}
}

// sendEnableContinuousUpdates sends message type 150, C→S: the client
// asks the server to push spontaneous updates for region instead of
// requiring an explicit FramebufferUpdateRequest per frame.
func sendEnableContinuousUpdates(s *wire.Stream, enable bool, region rfbproto.Region) error {
	if err := s.SendByte(rfbproto.MsgEnableContinuousUpdates); err != nil {
		return err
	}
	if err := s.SendByte(boolByte(enable)); err != nil {
		return err
	}
	if err := s.SendU16BE(region.X); err != nil {
		return err
	}
	if err := s.SendU16BE(region.Y); err != nil {
		return err
	}
	if err := s.SendU16BE(region.Width); err != nil {
		return err
	}
	if err := s.SendU16BE(region.Height); err != nil {
		return err
	}
	return s.Flush()
}

// SetContinuousUpdates toggles server-pushed continuous updates for
// region, an alternative to polling with RequestFramebufferUpdate.
func (sess *Session) SetContinuousUpdates(enable bool, region rfbproto.Region) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sendEnableContinuousUpdates(sess.stream, enable, region)
}
