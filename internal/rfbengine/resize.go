package rfbengine

import (
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/wire"
)

type screenEntry struct {
	ID           uint32
	X, Y         uint16
	Width, Height uint16
	Flags        uint32
}

// handleSetDesktopSize is step 2 of the three-step ExtendedDesktopSize
// transaction, server side (spec §4.3): the client requests a new
// resolution, the server asks the Display Adapter to honour it, then
// replies with a status rectangle and, on success, a full update.
func (sess *Session) handleSetDesktopSize() error {
	if _, err := sess.stream.RecvBytes(1); err != nil { // padding
		return err
	}
	width, err := sess.stream.RecvU16BE()
	if err != nil {
		return err
	}
	height, err := sess.stream.RecvU16BE()
	if err != nil {
		return err
	}
	numScreens, err := sess.stream.RecvByte()
	if err != nil {
		return err
	}
	if _, err := sess.stream.RecvBytes(1); err != nil { // padding
		return err
	}
	screens := make([]screenEntry, numScreens)
	for i := range screens {
		id, err := sess.stream.RecvU32BE()
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
		flags, err := sess.stream.RecvU32BE()
		if err != nil {
			return err
		}
		screens[i] = screenEntry{ID: id, X: x, Y: y, Width: w, Height: h, Flags: flags}
	}

	errorCode := rfbproto.ExtDesktopSizeErrorNone
	if width == 0 || height == 0 {
		errorCode = rfbproto.ExtDesktopSizeErrorInvalid
	} else if err := sess.Display.RequestResize(width, height); err != nil {
		errorCode = rfbproto.ExtDesktopSizeErrorInvalid
	}

	if errorCode == rfbproto.ExtDesktopSizeErrorNone {
		sess.width, sess.height = width, height
		sess.sentFirstUpdate = false
	}
	if err := sess.sendExtendedDesktopSizeStatus(rfbproto.ExtDesktopSizeStatusResult, errorCode); err != nil {
		return err
	}
	if errorCode != rfbproto.ExtDesktopSizeErrorNone {
		return nil
	}
	return sess.handleUpdateRequest(FramebufferUpdateRequest{Incremental: false})
}

// sendExtendedDesktopSizeStatus emits the ExtendedDesktopSize pseudo
// rectangle: rectangle header with width/height carrying status/error in
// the x/y fields, one screen entry describing the whole framebuffer (spec
// §4.3).
func (sess *Session) sendExtendedDesktopSizeStatus(status, errorCode uint8) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if err := sess.stream.SendByte(rfbproto.MsgFramebufferUpdate); err != nil {
		return err
	}
	if err := sess.stream.SendBytes([]byte{0}); err != nil {
		return err
	}
	if err := sess.stream.SendU16BE(1); err != nil {
		return err
	}
	if err := sess.stream.SendU16BE(uint16(status)); err != nil {
		return err
	}
	if err := sess.stream.SendU16BE(uint16(errorCode)); err != nil {
		return err
	}
	if err := sess.stream.SendU16BE(sess.width); err != nil {
		return err
	}
	if err := sess.stream.SendU16BE(sess.height); err != nil {
		return err
	}
	if err := sess.stream.SendU32BE(uint32(rfbproto.PseudoEncodingExtendedDesktopSize)); err != nil {
		return err
	}
	if err := sess.stream.SendByte(1); err != nil { // numScreens
		return err
	}
	if err := sess.stream.SendBytes(make([]byte, 3)); err != nil { // padding
		return err
	}
	if err := sess.stream.SendU32BE(0); err != nil { // screen id
		return err
	}
	if err := sess.stream.SendU16BE(0); err != nil { // x
		return err
	}
	if err := sess.stream.SendU16BE(0); err != nil { // y
		return err
	}
	if err := sess.stream.SendU16BE(sess.width); err != nil {
		return err
	}
	if err := sess.stream.SendU16BE(sess.height); err != nil {
		return err
	}
	if err := sess.stream.SendU32BE(0); err != nil { // flags
		return err
	}
	return sess.stream.Flush()
}

// recvResizeRectangle is the client-side receiver for a DesktopSize /
// ExtendedDesktopSize pseudo-rectangle (step 3): it updates local geometry
// and lets the viewer surface resize its window.
func (sess *Session) recvResizeRectangle(region rfbproto.Region, encType int32) error {
	if encType == rfbproto.PseudoEncodingDesktopSize {
		sess.width, sess.height = region.Width, region.Height
		return sess.Surface.Resize(region.Width, region.Height)
	}

	// ExtendedDesktopSize: x=status, y=error, width/height=new geometry.
	status := region.X
	errorCode := region.Y
	numScreens, err := sess.stream.RecvByte()
	if err != nil {
		return err
	}
	if _, err := sess.stream.RecvBytes(3); err != nil { // padding
		return err
	}
	for i := 0; i < int(numScreens); i++ {
		if _, err := sess.stream.RecvBytes(16); err != nil { // one screen entry
			return err
		}
	}
	if errorCode != rfbproto.ExtDesktopSizeErrorNone || status == rfbproto.ExtDesktopSizeStatusAdvertise && region.Width == sess.width && region.Height == sess.height {
		return nil
	}
	sess.width, sess.height = region.Width, region.Height
	return sess.Surface.Resize(region.Width, region.Height)
}

// sendSetDesktopSize sends message type 251, C→S: step 1 of the
// three-step ExtendedDesktopSize transaction. recvResizeRectangle handles
// the server's reply (step 3).
func sendSetDesktopSize(s *wire.Stream, width, height uint16) error {
	if err := s.SendByte(rfbproto.MsgSetDesktopSize); err != nil {
		return err
	}
	if err := s.SendBytes([]byte{0}); err != nil { // padding
		return err
	}
	if err := s.SendU16BE(width); err != nil {
		return err
	}
	if err := s.SendU16BE(height); err != nil {
		return err
	}
	if err := s.SendByte(1); err != nil { // numScreens
		return err
	}
	if err := s.SendBytes([]byte{0}); err != nil { // padding
		return err
	}
	if err := s.SendU32BE(0); err != nil { // screen id
		return err
	}
	if err := s.SendU16BE(0); err != nil { // x
		return err
	}
	if err := s.SendU16BE(0); err != nil { // y
		return err
	}
	if err := s.SendU16BE(width); err != nil {
		return err
	}
	if err := s.SendU16BE(height); err != nil {
		return err
	}
	if err := s.SendU32BE(0); err != nil { // flags
		return err
	}
	return s.Flush()
}

// RequestDesktopResize asks the server to change the remote resolution,
// step 1 of spec §4.3's three-step ExtendedDesktopSize transaction.
func (sess *Session) RequestDesktopResize(width, height uint16) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sendSetDesktopSize(sess.stream, width, height)
}
