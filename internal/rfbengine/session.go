// Package rfbengine implements the RFB protocol state machine: version and
// security negotiation, client/server init, the message ready loop,
// framebuffer update dispatch, desktop resize, and clipboard exchange
// (spec §4.3).
package rfbengine

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ltsm-go/ltsm/internal/channel"
	"github.com/ltsm-go/ltsm/internal/encoding"
	"github.com/ltsm-go/ltsm/internal/ltsmerr"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/tlslayer"
	"github.com/ltsm-go/ltsm/internal/wire"
)

// Role distinguishes which side of the RFB link a Session drives.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// EncodingPolicy is the operator-configurable preference list and
// blacklist used by SetEncodings negotiation (spec §4.3).
type EncodingPolicy struct {
	Preferred []int32
	Blacklist map[int32]bool
}

// SessionVariables holds client-reported variables from the LTSM
// client-variables handshake (spec SPEC_FULL §D.3), used to bias encoding
// choice and feature negotiation.
type SessionVariables map[string]string

// Session drives one RFB connection end to end. It owns the wire Stream,
// the LTSM channel Multiplexer layered on top of it, and the negotiated
// protocol state.
type Session struct {
	ID     string
	Role   Role
	stream *wire.Stream
	// writeMu is the single-writer lock for the whole RFB link (spec §5):
	// both this Session's own message sends and Mux's LTSM frame sends
	// serialize through it, since they share one underlying wire.Stream.
	writeMu sync.Mutex
	Mux     *channel.Multiplexer
	log     zerolog.Logger

	Display DisplayAdapter
	Surface ClientSurface

	clientFormat rfbproto.PixelFormat
	serverFormat rfbproto.PixelFormat
	width        uint16
	height       uint16
	desktopName  string

	registry   *encoding.Registry
	pool       *encoding.Pool
	policy     EncodingPolicy
	chosen     int32
	clientEnc  []int32

	continuousUpdates bool
	continuousRegion  rfbproto.Region
	extClipboard      bool
	resizeMode        rfbproto.DesktopResizeMode

	inFlight        atomic.Bool
	sentFirstUpdate bool
	prevButtonMask  uint8
	keymap          map[uint32]uint32

	Vars SessionVariables
}

// NewServerSession wires a freshly accepted connection into a server-role
// Session. Security/handshake happens in Run.
func NewServerSession(conn net.Conn, display DisplayAdapter, policy EncodingPolicy) *Session {
	s := wire.New(conn)
	id := uuid.NewString()
	registry := encoding.NewRegistry()
	sess := &Session{
		ID:       id,
		Role:     RoleServer,
		stream:   s,
		log:      log.Logger.With().Str("component", "rfbengine").Str("session", id).Logger(),
		Display:  display,
		registry: registry,
		pool:     encoding.NewPool(registry, encoding.DefaultWorkers),
		policy:   policy,
		Vars:     make(SessionVariables),
	}
	sess.Mux = channel.NewMultiplexerWithWriteLock(s, &sess.writeMu)
	return sess
}

// NewClientSession wires a freshly dialed connection into a client-role
// Session (the viewer side).
func NewClientSession(conn net.Conn, surface ClientSurface) *Session {
	s := wire.New(conn)
	id := uuid.NewString()
	sess := &Session{
		ID:      id,
		Role:    RoleClient,
		stream:  s,
		log:     log.Logger.With().Str("component", "rfbengine").Str("session", id).Logger(),
		Surface: surface,
		Vars:    make(SessionVariables),
	}
	sess.Mux = channel.NewMultiplexerWithWriteLock(s, &sess.writeMu)
	return sess
}

// RunServer executes the full server-side handshake and then the ready
// loop until ctx is cancelled or the client disconnects.
func (sess *Session) RunServer(ctx context.Context, secCfg SecurityConfig, sharedFormat rfbproto.PixelFormat, desktopName string) error {
	if _, err := negotiateVersionServer(sess.stream); err != nil {
		return err
	}
	stream, err := negotiateSecurityServer(sess.stream, secCfg)
	if err != nil {
		return err
	}
	sess.stream = stream
	sess.Mux = channel.NewMultiplexerWithWriteLock(stream, &sess.writeMu)
	sess.wireSystemMessages()

	if _, err := sess.stream.RecvByte(); err != nil { // client shared-flag
		return err
	}

	width, height := sess.Display.Size()
	sess.width, sess.height = width, height
	sess.serverFormat = sharedFormat
	sess.clientFormat = sharedFormat
	sess.desktopName = desktopName

	if err := sendServerInit(sess.stream, serverInit{Width: width, Height: height, Format: sharedFormat, Name: desktopName}); err != nil {
		return err
	}

	sess.pool = encoding.NewPool(sess.registry, encoding.DefaultWorkers)
	return sess.readyLoop(ctx)
}

// RunClient executes the full client-side handshake and then the ready
// loop.
func (sess *Session) RunClient(ctx context.Context, password string, tlsCfg tlslayer.Config, serverName string) error {
	if _, err := negotiateVersionClient(sess.stream); err != nil {
		return err
	}
	stream, err := negotiateSecurityClient(sess.stream, password, tlsCfg, serverName)
	if err != nil {
		return err
	}
	sess.stream = stream
	sess.Mux = channel.NewMultiplexerWithWriteLock(stream, &sess.writeMu)
	sess.wireSystemMessages()

	if err := sess.stream.SendByte(1); err != nil { // shared-flag
		return err
	}
	if err := sess.stream.Flush(); err != nil {
		return err
	}

	init, err := recvServerInit(sess.stream)
	if err != nil {
		return err
	}
	sess.width, sess.height = init.Width, init.Height
	sess.serverFormat = init.Format
	sess.clientFormat = init.Format
	sess.desktopName = init.Name

	if err := sess.Surface.CreateWindow(init.Width, init.Height, 0); err != nil {
		return err
	}

	if err := sess.sendClientReadyHandshake(); err != nil {
		return err
	}

	pollCtx, stopPoll := context.WithCancel(ctx)
	defer stopPoll()
	go sess.pollFramebufferUpdates(pollCtx)

	return sess.readyLoop(ctx)
}

// readyLoop dispatches on the message type byte until the stream closes or
// ctx is cancelled (spec §4.3 ready loop table).
func (sess *Session) readyLoop(ctx context.Context) error {
	// Cancelling ctx expires the pending read, so an idle peer does not
	// hold the loop open until the recv timeout.
	stop := context.AfterFunc(ctx, func() { _ = sess.stream.Conn().SetReadDeadline(time.Now()) })
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgType, err := sess.stream.RecvByte()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if msgType >= rfbproto.MsgLTSMSystem && msgType <= rfbproto.MsgLTSMClose {
			if err := sess.Mux.HandleIncoming(msgType); err != nil {
				sess.log.Warn().Err(err).Msg("ltsm channel dispatch failed")
			}
			continue
		}

		if err := sess.dispatch(msgType); err != nil {
			return err
		}
	}
}

func (sess *Session) dispatch(msgType uint8) error {
	if sess.Role == RoleServer {
		return sess.dispatchServer(msgType)
	}
	return sess.dispatchClient(msgType)
}

func (sess *Session) dispatchServer(msgType uint8) error {
	switch msgType {
	case rfbproto.MsgSetPixelFormat:
		pf, err := recvSetPixelFormat(sess.stream)
		if err != nil {
			return err
		}
		sess.clientFormat = pf
		return nil
	case rfbproto.MsgSetEncodings:
		encodings, err := recvSetEncodings(sess.stream)
		if err != nil {
			return err
		}
		return sess.applySetEncodings(encodings)
	case rfbproto.MsgFramebufferUpdateRequest:
		req, err := recvFramebufferUpdateRequest(sess.stream)
		if err != nil {
			return err
		}
		return sess.handleUpdateRequest(req)
	case rfbproto.MsgKeyEvent:
		ev, err := recvKeyEvent(sess.stream)
		if err != nil {
			return err
		}
		sess.handleKeyEvent(ev)
		return nil
	case rfbproto.MsgPointerEvent:
		ev, err := recvPointerEvent(sess.stream)
		if err != nil {
			return err
		}
		sess.handlePointerEvent(ev)
		return nil
	case rfbproto.MsgClientCutText:
		return sess.handleClientCutText()
	case rfbproto.MsgEnableContinuousUpdates:
		return sess.handleEnableContinuousUpdates()
	case rfbproto.MsgSetDesktopSize:
		return sess.handleSetDesktopSize()
	default:
		return ltsmerr.NewProtocolError("unexpected C->S message type %d", msgType)
	}
}

func (sess *Session) dispatchClient(msgType uint8) error {
	switch msgType {
	case rfbproto.MsgFramebufferUpdate:
		return sess.handleFramebufferUpdate()
	case rfbproto.MsgSetColourMap:
		return ltsmerr.NewProtocolError("colour-map mode not supported")
	case rfbproto.MsgBell:
		return nil
	case rfbproto.MsgServerCutText:
		return sess.handleServerCutText()
	default:
		return ltsmerr.NewProtocolError("unexpected S->C message type %d", msgType)
	}
}

func (sess *Session) handleKeyEvent(ev KeyEvent) {
	keysym := ev.Keysym
	if mapped, ok := sess.keymap[ev.Keysym]; ok {
		keysym = mapped
	}
	sess.Display.InjectKey(keysym, ev.Pressed)
}

func (sess *Session) handlePointerEvent(ev PointerEvent) {
	for bit := 0; bit < 8; bit++ {
		mask := uint8(1) << bit
		was := sess.prevButtonMask&mask != 0
		is := ev.ButtonMask&mask != 0
		if was != is {
			sess.Display.InjectButton(bit, ev.X, ev.Y, is)
		}
	}
	sess.prevButtonMask = ev.ButtonMask
	sess.Display.InjectMotion(ev.X, ev.Y)
}

// applySetEncodings stores the client's offered encoding list and picks
// the session's active encoding per the three-step preference rule (spec
// §4.3).
func (sess *Session) applySetEncodings(offered []int32) error {
	sess.clientEnc = offered
	sess.chosen = pickEncoding(offered, sess.policy.Preferred, sess.policy.Blacklist)

	for _, e := range offered {
		switch e {
		case rfbproto.PseudoEncodingExtendedDesktopSize:
			sess.resizeMode = rfbproto.DesktopResizeExtended
		case rfbproto.PseudoEncodingExtClipboard:
			sess.extClipboard = true
		}
	}
	return nil
}

// pickEncoding implements spec §4.3's SetEncodings preference order:
// 1. the first operator-preferred encoding also offered and not
//    blacklisted, in the operator's order;
// 2. otherwise the first client-offered non-blacklisted non-Raw encoding;
// 3. otherwise Raw.
func pickEncoding(offered []int32, preferred []int32, blacklist map[int32]bool) int32 {
	offeredSet := make(map[int32]bool, len(offered))
	for _, e := range offered {
		offeredSet[e] = true
	}
	for _, p := range preferred {
		if offeredSet[p] && !blacklist[p] {
			return p
		}
	}
	for _, e := range offered {
		if e == rfbproto.EncodingRaw || e < 0 || blacklist[e] {
			continue
		}
		return e
	}
	return rfbproto.EncodingRaw
}
