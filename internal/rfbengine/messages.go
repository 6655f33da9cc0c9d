package rfbengine

import (
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/wire"
)

// KeyEvent is message type 4, C→S (spec §4.3).
type KeyEvent struct {
	Pressed bool
	Keysym  uint32
}

func recvKeyEvent(s *wire.Stream) (KeyEvent, error) {
	pressed, err := s.RecvByte()
	if err != nil {
		return KeyEvent{}, err
	}
	if _, err := s.RecvBytes(2); err != nil { // padding
		return KeyEvent{}, err
	}
	keysym, err := s.RecvU32BE()
	if err != nil {
		return KeyEvent{}, err
	}
	return KeyEvent{Pressed: pressed != 0, Keysym: keysym}, nil
}

// PointerEvent is message type 5, C→S.
type PointerEvent struct {
	ButtonMask uint8
	X, Y       uint16
}

func recvPointerEvent(s *wire.Stream) (PointerEvent, error) {
	mask, err := s.RecvByte()
	if err != nil {
		return PointerEvent{}, err
	}
	x, err := s.RecvU16BE()
	if err != nil {
		return PointerEvent{}, err
	}
	y, err := s.RecvU16BE()
	if err != nil {
		return PointerEvent{}, err
	}
	return PointerEvent{ButtonMask: mask, X: x, Y: y}, nil
}

// SetPixelFormat is message type 0, C→S.
func recvSetPixelFormat(s *wire.Stream) (rfbproto.PixelFormat, error) {
	if _, err := s.RecvBytes(3); err != nil { // padding
		return rfbproto.PixelFormat{}, err
	}
	return readPixelFormat(s)
}

// SetEncodings is message type 2, C→S: an ordered list of encoding
// preferences (spec §4.3).
func recvSetEncodings(s *wire.Stream) ([]int32, error) {
	if _, err := s.RecvBytes(1); err != nil { // padding
		return nil, err
	}
	count, err := s.RecvU16BE()
	if err != nil {
		return nil, err
	}
	encodings := make([]int32, count)
	for i := range encodings {
		v, err := s.RecvU32BE()
		if err != nil {
			return nil, err
		}
		encodings[i] = int32(v)
	}
	return encodings, nil
}

// FramebufferUpdateRequest is message type 3, C→S.
type FramebufferUpdateRequest struct {
	Incremental bool
	Region      rfbproto.Region
}

func recvFramebufferUpdateRequest(s *wire.Stream) (FramebufferUpdateRequest, error) {
	incremental, err := s.RecvByte()
	if err != nil {
		return FramebufferUpdateRequest{}, err
	}
	x, err := s.RecvU16BE()
	if err != nil {
		return FramebufferUpdateRequest{}, err
	}
	y, err := s.RecvU16BE()
	if err != nil {
		return FramebufferUpdateRequest{}, err
	}
	w, err := s.RecvU16BE()
	if err != nil {
		return FramebufferUpdateRequest{}, err
	}
	h, err := s.RecvU16BE()
	if err != nil {
		return FramebufferUpdateRequest{}, err
	}
	return FramebufferUpdateRequest{
		Incremental: incremental != 0,
		Region:      rfbproto.Region{X: x, Y: y, Width: w, Height: h},
	}, nil
}

// recvClientCutText reads the short-form clipboard message (message type 6,
// C→S) when its length is non-negative; the extended clipboard uses a
// negative length, dispatched separately (spec §4.3).
func recvClientCutText(s *wire.Stream) (text []byte, extended bool, capsOrLen uint32, err error) {
	if _, err = s.RecvBytes(3); err != nil { // padding
		return nil, false, 0, err
	}
	raw, err := s.RecvU32BE()
	if err != nil {
		return nil, false, 0, err
	}
	length := int32(raw)
	if length < 0 {
		capsLen := uint32(-length)
		caps, err := s.RecvBytes(int(capsLen))
		if err != nil {
			return nil, true, 0, err
		}
		return caps, true, capsLen, nil
	}
	text, err = s.RecvBytes(int(length))
	return text, false, uint32(length), err
}

// PushClipboard sends the server's clipboard to the client using the
// short-form ServerCutText message; callers that negotiated the extended
// clipboard should prefer sendExtendedClipboardProvide instead.
func (sess *Session) PushClipboard(text []byte) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sendServerCutText(sess.stream, text)
}

// RingBell sends a Bell message to the client, forwarding a Display
// Adapter attention request (spec §6.5: DisplayAdapter.Ring).
func (sess *Session) RingBell() error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sendBell(sess.stream)
}

func sendServerCutText(s *wire.Stream, text []byte) error {
	if err := s.SendByte(rfbproto.MsgServerCutText); err != nil {
		return err
	}
	if err := s.SendBytes(make([]byte, 3)); err != nil {
		return err
	}
	if err := s.SendU32BE(uint32(len(text))); err != nil {
		return err
	}
	if err := s.SendBytes(text); err != nil {
		return err
	}
	return s.Flush()
}

func sendBell(s *wire.Stream) error {
	if err := s.SendByte(rfbproto.MsgBell); err != nil {
		return err
	}
	return s.Flush()
}

// sendSetPixelFormat is message type 0, C→S.
func sendSetPixelFormat(s *wire.Stream, pf rfbproto.PixelFormat) error {
	if err := s.SendByte(rfbproto.MsgSetPixelFormat); err != nil {
		return err
	}
	if err := s.SendBytes(make([]byte, 3)); err != nil { // padding
		return err
	}
	if err := writePixelFormat(s, pf); err != nil {
		return err
	}
	return s.Flush()
}

// sendSetEncodings is message type 2, C→S.
func sendSetEncodings(s *wire.Stream, encodings []int32) error {
	if err := s.SendByte(rfbproto.MsgSetEncodings); err != nil {
		return err
	}
	if err := s.SendBytes([]byte{0}); err != nil { // padding
		return err
	}
	if err := s.SendU16BE(uint16(len(encodings))); err != nil {
		return err
	}
	for _, e := range encodings {
		if err := s.SendU32BE(uint32(e)); err != nil {
			return err
		}
	}
	return s.Flush()
}

// sendFramebufferUpdateRequest is message type 3, C→S.
func sendFramebufferUpdateRequest(s *wire.Stream, incremental bool, region rfbproto.Region) error {
	if err := s.SendByte(rfbproto.MsgFramebufferUpdateRequest); err != nil {
		return err
	}
	if err := s.SendByte(boolByte(incremental)); err != nil {
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

func sendKeyEvent(s *wire.Stream, ev KeyEvent) error {
	if err := s.SendByte(rfbproto.MsgKeyEvent); err != nil {
		return err
	}
	if err := s.SendByte(boolByte(ev.Pressed)); err != nil {
		return err
	}
	if err := s.SendBytes(make([]byte, 2)); err != nil { // padding
		return err
	}
	if err := s.SendU32BE(ev.Keysym); err != nil {
		return err
	}
	return s.Flush()
}

func sendPointerEvent(s *wire.Stream, ev PointerEvent) error {
	if err := s.SendByte(rfbproto.MsgPointerEvent); err != nil {
		return err
	}
	if err := s.SendByte(ev.ButtonMask); err != nil {
		return err
	}
	if err := s.SendU16BE(ev.X); err != nil {
		return err
	}
	if err := s.SendU16BE(ev.Y); err != nil {
		return err
	}
	return s.Flush()
}

// sendClientCutText sends the short-form ClientCutText message (message
// type 6, C→S); the extended clipboard's negative-length form is only
// ever driven by the server side (sendExtendedClipboardRequest/-Provide).
func sendClientCutText(s *wire.Stream, text []byte) error {
	if err := s.SendByte(rfbproto.MsgClientCutText); err != nil {
		return err
	}
	if err := s.SendBytes(make([]byte, 3)); err != nil { // padding
		return err
	}
	if err := s.SendU32BE(uint32(len(text))); err != nil {
		return err
	}
	if err := s.SendBytes(text); err != nil {
		return err
	}
	return s.Flush()
}

// SetPixelFormat sends the client's desired pixel format to the server.
func (sess *Session) SetPixelFormat(pf rfbproto.PixelFormat) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sendSetPixelFormat(sess.stream, pf)
}

// SetEncodings sends the client's ordered encoding preference list.
func (sess *Session) SetEncodings(encodings []int32) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sendSetEncodings(sess.stream, encodings)
}

// RequestFramebufferUpdate asks the server for a framebuffer update over
// region, incremental or full.
func (sess *Session) RequestFramebufferUpdate(incremental bool, region rfbproto.Region) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sendFramebufferUpdateRequest(sess.stream, incremental, region)
}

// SendKeyEvent forwards a local key press/release to the server. A real
// GUI ClientSurface implementation calls this from its native input
// handler; this binary's headless surface has none to forward.
func (sess *Session) SendKeyEvent(keysym uint32, pressed bool) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sendKeyEvent(sess.stream, KeyEvent{Pressed: pressed, Keysym: keysym})
}

// SendPointerEvent forwards a local pointer move or button change to the
// server.
func (sess *Session) SendPointerEvent(buttonMask uint8, x, y uint16) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sendPointerEvent(sess.stream, PointerEvent{ButtonMask: buttonMask, X: x, Y: y})
}

// SendClipboard forwards the local clipboard to the server using the
// short-form ClientCutText message.
func (sess *Session) SendClipboard(text []byte) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sendClientCutText(sess.stream, text)
}
