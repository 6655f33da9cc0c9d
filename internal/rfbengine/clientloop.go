package rfbengine

import (
	"context"
	"time"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

// clientDecodableEncodings is the documented list of rectangle encodings
// this client's receiver can actually decode off the wire (spec §2, §8).
// Only Raw pixel data and the resize pseudo-encodings are implemented;
// offering anything else here would let the server choose an encoding
// recvOneRectangle can't parse, permanently desynchronizing the stream.
var clientDecodableEncodings = []int32{
	rfbproto.EncodingRaw,
	rfbproto.PseudoEncodingDesktopSize,
	rfbproto.PseudoEncodingExtendedDesktopSize,
}

// sendClientReadyHandshake sends the client's half of entering the ready
// loop: its pixel format, its encoding offer, and the first
// FramebufferUpdateRequest. Without this the server has nothing to
// respond to and the session stalls after ServerInit (spec §4.3).
func (sess *Session) sendClientReadyHandshake() error {
	if err := sess.SetPixelFormat(sess.clientFormat); err != nil {
		return err
	}
	if err := sess.SetEncodings(clientDecodableEncodings); err != nil {
		return err
	}
	full := rfbproto.Region{X: 0, Y: 0, Width: sess.width, Height: sess.height}
	return sess.RequestFramebufferUpdate(false, full)
}

// pollFramebufferUpdates keeps requesting incremental updates once the
// ready loop is running. This binary has no native input source to pace
// requests off of, so it polls at the same cadence the server uses for
// continuous updates (spec §4.3). A GUI front end would instead request a
// fresh frame right after forwarding input via SendKeyEvent/
// SendPointerEvent, or negotiate server-pushed updates with
// SetContinuousUpdates.
func (sess *Session) pollFramebufferUpdates(ctx context.Context) {
	ticker := time.NewTicker(continuousPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			full := rfbproto.Region{X: 0, Y: 0, Width: sess.width, Height: sess.height}
			if err := sess.RequestFramebufferUpdate(true, full); err != nil {
				sess.log.Warn().Err(err).Msg("framebuffer update request failed")
				return
			}
		}
	}
}
