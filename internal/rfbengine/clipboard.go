package rfbengine

import "github.com/ltsm-go/ltsm/internal/rfbproto"

// handleClientCutText is message type 6, C→S. Short-form ClientCutText
// carries a plain UTF-8 buffer; when the extended clipboard was negotiated
// a negative length instead introduces a capability word, starting the
// Provide/Notify/Request handshake (spec §4.3).
func (sess *Session) handleClientCutText() error {
	payload, extended, capsOrLen, err := recvClientCutText(sess.stream)
	if err != nil {
		return err
	}
	if !extended {
		sess.Display.SetClipboard(payload)
		return nil
	}
	return sess.handleExtendedClipboardCaps(capsOrLen, payload)
}

// handleExtendedClipboardCaps reacts to the capability word the client
// just advertised: Notify means "selection changed, ask if you want it";
// Provide means "here's the data you asked for"; Request means "send me
// your clipboard" (spec §4.3).
func (sess *Session) handleExtendedClipboardCaps(flags uint32, payload []byte) error {
	switch {
	case flags&rfbproto.ClipboardOpProvide != 0:
		sess.Display.SetClipboard(payload)
		return nil
	case flags&rfbproto.ClipboardOpNotify != 0:
		return sess.sendExtendedClipboardRequest()
	case flags&rfbproto.ClipboardOpRequest != 0:
		data, ok := sess.Display.GetClipboard()
		if !ok {
			return nil
		}
		return sess.sendExtendedClipboardProvide(data)
	default:
		return nil
	}
}

func (sess *Session) sendExtendedClipboardRequest() error {
	return sess.sendExtendedClipboardCaps(rfbproto.ClipboardOpRequest|rfbproto.ClipboardTypeText, nil)
}

func (sess *Session) sendExtendedClipboardProvide(data []byte) error {
	return sess.sendExtendedClipboardCaps(rfbproto.ClipboardOpProvide|rfbproto.ClipboardTypeText, data)
}

func (sess *Session) sendExtendedClipboardCaps(flags uint32, data []byte) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if err := sess.stream.SendByte(rfbproto.MsgServerCutText); err != nil {
		return err
	}
	if err := sess.stream.SendBytes(make([]byte, 3)); err != nil {
		return err
	}
	length := int32(-int64(4 + len(data)))
	if err := sess.stream.SendU32BE(uint32(length)); err != nil {
		return err
	}
	if err := sess.stream.SendU32BE(flags); err != nil {
		return err
	}
	if len(data) > 0 {
		if err := sess.stream.SendBytes(data); err != nil {
			return err
		}
	}
	return sess.stream.Flush()
}

// handleServerCutText is the client-side receiver for ServerCutText
// (spec §4.3). A non-negative length carries short-form text for the
// Surface; a negative length carries an extended-clipboard capability
// word and payload, passed to handleExtendedClipboardCaps as on the
// server side.
func (sess *Session) handleServerCutText() error {
	if _, err := sess.stream.RecvBytes(3); err != nil { // padding
		return err
	}
	raw, err := sess.stream.RecvU32BE()
	if err != nil {
		return err
	}
	length := int32(raw)
	if length < 0 {
		flags, err := sess.stream.RecvU32BE()
		if err != nil {
			return err
		}
		dataLen := int(-length) - 4
		data, err := sess.stream.RecvBytes(dataLen)
		if err != nil {
			return err
		}
		return sess.handleExtendedClipboardCaps(flags, data)
	}
	text, err := sess.stream.RecvBytes(int(length))
	if err != nil {
		return err
	}
	sess.Surface.SetClipboard(text)
	return nil
}
