package rfbengine

import (
	"github.com/ltsm-go/ltsm/internal/encoding"
	"github.com/ltsm-go/ltsm/internal/ltsmerr"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/wire"
)

const alignmentTile = 4

// handleUpdateRequest answers a FramebufferUpdateRequest. At most one
// update may be in flight per session (spec §4.3, §8); a request arriving
// while one is in flight is dropped rather than producing a second
// concurrent write, and the damage it would have covered stays with the
// Display Adapter for a later request.
func (sess *Session) handleUpdateRequest(req FramebufferUpdateRequest) error {
	if !sess.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer sess.inFlight.Store(false)

	clip := rfbproto.Region{X: 0, Y: 0, Width: sess.width, Height: sess.height}

	// A client's very first request always gets a full update even if it
	// asked for incremental, since there's no prior frame to diff against
	// (spec §4.3, §8: "incremental requests before any full update fall
	// back to a full update").
	if !req.Incremental || !sess.sentFirstUpdate {
		target := clip.AlignUp(alignmentTile, clip)
		if target.Empty() {
			return nil
		}
		sess.sentFirstUpdate = true
		return sess.sendFramebufferUpdate(target)
	}

	damage, hasDamage := sess.Display.PollDamage()
	if !hasDamage {
		return nil
	}
	target := damage.ClipTo(clip).Intersect(req.Region).AlignUp(alignmentTile, clip)
	if target.Empty() {
		return nil
	}
	return sess.sendFramebufferUpdate(target)
}

func (sess *Session) sendFramebufferUpdate(region rfbproto.Region) error {
	pitch := int(sess.width) * sess.serverFormat.BytesPerPixel()
	pixels := make([]byte, pitch*int(sess.height))
	if err := sess.Display.CopyRegion(
		rfbproto.Region{X: 0, Y: 0, Width: sess.width, Height: sess.height},
		pixels, pitch,
	); err != nil {
		return err
	}

	bpp := sess.serverFormat.BytesPerPixel()
	offset := int(region.Y)*pitch + int(region.X)*bpp
	view := encoding.FramebufferView{
		Region: region,
		Pixels: pixels[offset:],
		Pitch:  pitch,
		Format: sess.serverFormat,
	}

	rects, err := sess.pool.Encode([]encoding.Task{{View: view, Encoding: sess.chosen}}, sess.clientFormat)
	if err != nil {
		return err
	}

	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	if err := sess.stream.SendByte(rfbproto.MsgFramebufferUpdate); err != nil {
		return err
	}
	if err := sess.stream.SendBytes([]byte{0}); err != nil { // padding
		return err
	}
	if err := sess.stream.SendU16BE(uint16(len(rects))); err != nil {
		return err
	}
	for _, rect := range rects {
		if err := writeRectangleHeader(sess.stream, rect.Region, rect.Encoding); err != nil {
			return err
		}
		if err := sess.stream.SendBytes(rect.Payload); err != nil {
			return err
		}
	}
	return sess.stream.Flush()
}

func writeRectangleHeader(s *wire.Stream, r rfbproto.Region, encodingID int32) error {
	if err := s.SendU16BE(r.X); err != nil {
		return err
	}
	if err := s.SendU16BE(r.Y); err != nil {
		return err
	}
	if err := s.SendU16BE(r.Width); err != nil {
		return err
	}
	if err := s.SendU16BE(r.Height); err != nil {
		return err
	}
	return s.SendU32BE(uint32(int32(encodingID)))
}

// handleFramebufferUpdate is the client-side receiver: it reads the
// rectangle stream and uploads each into the viewer surface.
func (sess *Session) handleFramebufferUpdate() error {
	if _, err := sess.stream.RecvBytes(1); err != nil { // padding
		return err
	}
	count, err := sess.stream.RecvU16BE()
	if err != nil {
		return err
	}
	for i := uint16(0); i < count; i++ {
		if err := sess.recvOneRectangle(); err != nil {
			return err
		}
	}
	return sess.Surface.Present()
}

func (sess *Session) recvOneRectangle() error {
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
	encType, err := sess.stream.RecvU32BE()
	if err != nil {
		return err
	}
	region := rfbproto.Region{X: x, Y: y, Width: w, Height: h}

	switch int32(encType) {
	case rfbproto.PseudoEncodingDesktopSize, rfbproto.PseudoEncodingExtendedDesktopSize:
		return sess.recvResizeRectangle(region, int32(encType))
	case rfbproto.EncodingRaw:
		bpp := sess.clientFormat.BytesPerPixel()
		payload, err := sess.stream.RecvBytes(int(w) * int(h) * bpp)
		if err != nil {
			return err
		}
		return sess.Surface.UploadRegion(region, payload, sess.clientFormat)
	default:
		// Only Raw and the resize pseudo-encodings above have a decoder;
		// anything else is an encoding this client never offered via
		// SetEncodings (clientDecodableEncodings), so a compliant server
		// would never choose it. Reading on would desynchronize the
		// stream, since the payload length is encoding-specific, not
		// w*h*bpp.
		return ltsmerr.NewProtocolError("rectangle encoding %d is not in this client's decodable set %v", int32(encType), clientDecodableEncodings)
	}
}
