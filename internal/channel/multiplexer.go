package channel

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ltsm-go/ltsm/internal/ltsmerr"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/wire"
)

// SystemMessage is the control-plane payload carried inside a
// MsgLTSMSystem frame (channel id 0): channel open/close/error
// notifications, client variables, and other out-of-band notices
// (spec §4.5).
type SystemMessage struct {
	Cmd         string            `json:"cmd" mapstructure:"cmd"`
	ChannelID   byte              `json:"channel,omitempty" mapstructure:"channel"`
	ChannelType string            `json:"type,omitempty" mapstructure:"type"`
	Speed       string            `json:"speed,omitempty" mapstructure:"speed"`
	Reason      string            `json:"reason,omitempty" mapstructure:"reason"`
	Vars        map[string]string `json:"vars,omitempty" mapstructure:"vars"`
}

// System message commands.
const (
	CmdChannelOpen  = "channel-open"
	CmdChannelAck   = "channel-ack"
	CmdChannelClose = "channel-close"
	CmdChannelError = "channel-error"
	CmdClientVars   = "clientvars"
)

// Multiplexer owns the set of virtual channels for one Session and the
// single serialized path onto the shared RFB Stream (spec §4.5, §5:
// "the RFB I/O thread is the sole writer").
type Multiplexer struct {
	mu      sync.Mutex  // guards channels only
	writeMu *sync.Mutex // guards stream writes; shared with the owning Session
	stream  *wire.Stream
	log     zerolog.Logger

	channels map[byte]*Channel

	// OnSystemMessage is invoked for system messages this multiplexer
	// doesn't itself own (e.g. client-variables), letting the session
	// layer react without a channel package -> session package import
	// cycle.
	OnSystemMessage func(SystemMessage)
}

// NewMultiplexer creates a multiplexer writing onto stream, using its own
// private write lock. Use NewMultiplexerWithWriteLock when the stream is
// also written to outside this package (the RFB engine's own messages
// share the same wire), so both sides serialize through one lock.
func NewMultiplexer(stream *wire.Stream) *Multiplexer {
	return NewMultiplexerWithWriteLock(stream, new(sync.Mutex))
}

// NewMultiplexerWithWriteLock creates a multiplexer that serializes its
// stream writes through writeMu, the single-writer lock for the whole RFB
// link (spec §5).
func NewMultiplexerWithWriteLock(stream *wire.Stream, writeMu *sync.Mutex) *Multiplexer {
	return &Multiplexer{
		stream:   stream,
		writeMu:  writeMu,
		log:      log.Logger.With().Str("component", "channel-mux").Logger(),
		channels: make(map[byte]*Channel),
	}
}

// Open creates and registers a new channel, sends ChannelConnect to the
// peer, and returns it. id must be 1-255 and not already in use.
func (m *Multiplexer) Open(id byte, channelType string, speed Speed, backpressure int) (*Channel, error) {
	if id == 0 {
		return nil, ltsmerr.NewProtocolError("channel id 0 is reserved for system messages")
	}
	if backpressure <= 0 {
		backpressure = DefaultBackpressureThreshold
	}

	m.mu.Lock()
	if _, exists := m.channels[id]; exists {
		m.mu.Unlock()
		return nil, ltsmerr.NewProtocolError("channel id %d already in use", id)
	}
	ch := &Channel{
		id:            id,
		speed:         speed,
		mux:           m,
		log:           m.log.With().Uint8("channel", id).Logger(),
		outbox:        make(chan []byte, backpressure),
		inbox:         make(chan []byte, backpressure),
		drainedWrites: make(chan struct{}),
	}
	m.channels[id] = ch
	m.mu.Unlock()

	go ch.writeLoop()

	if err := m.sendConnect(id, channelType); err != nil {
		return nil, err
	}
	return ch, nil
}

// Get returns the channel registered under id, if any.
func (m *Multiplexer) Get(id byte) (*Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	return ch, ok
}

func (m *Multiplexer) release(id byte) {
	m.mu.Lock()
	delete(m.channels, id)
	m.mu.Unlock()
}

// CloseAll closes every open channel; called when the parent Session ends
// (spec §3: "Channel ... destroyed when either side sends close or the
// parent Session ends").
func (m *Multiplexer) CloseAll(reason string) {
	m.mu.Lock()
	chans := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		chans = append(chans, ch)
	}
	m.mu.Unlock()
	for _, ch := range chans {
		_ = ch.Close(reason)
	}
}

// HandleIncoming is called by the RFB engine's ready loop once it has read
// a message-type byte in the LTSM reserved range (spec §6.1). It reads the
// rest of the frame itself.
func (m *Multiplexer) HandleIncoming(msgType uint8) error {
	channelID, err := m.stream.RecvByte()
	if err != nil {
		return err
	}
	length, err := m.stream.RecvU32BE()
	if err != nil {
		return err
	}
	payload, err := m.stream.RecvBytes(int(length))
	if err != nil {
		return err
	}

	switch msgType {
	case rfbproto.MsgLTSMSystem:
		return m.handleSystem(payload)
	case rfbproto.MsgLTSMChannel:
		return m.handleChannelData(channelID, payload)
	case rfbproto.MsgLTSMConnect, rfbproto.MsgLTSMAck:
		return nil // client-originated connect/ack acknowledgement, no local action needed
	case rfbproto.MsgLTSMClose:
		return m.handleChannelClose(channelID, payload)
	default:
		return ltsmerr.NewProtocolError("unknown LTSM message type 0x%02X", msgType)
	}
}

func (m *Multiplexer) handleSystem(payload []byte) error {
	var msg SystemMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ltsmerr.NewProtocolError("malformed system message: %v", err)
	}
	if m.OnSystemMessage != nil {
		m.OnSystemMessage(msg)
	}
	return nil
}

func (m *Multiplexer) handleChannelData(channelID byte, payload []byte) error {
	ch, ok := m.Get(channelID)
	if !ok {
		m.log.Debug().Uint8("channel", channelID).Msg("data for unknown channel, dropped")
		return nil
	}
	select {
	case ch.inbox <- payload:
	default:
		// Consumer is behind; block until it reads rather than drop, preserving
		// the "ordered, reliable" guarantee (spec §4.5).
		ch.inbox <- payload
	}
	return nil
}

func (m *Multiplexer) handleChannelClose(channelID byte, payload []byte) error {
	ch, ok := m.Get(channelID)
	if !ok {
		return nil
	}
	reason := string(payload)
	go func() { _ = ch.Close(reason) }()
	return nil
}

func (m *Multiplexer) sendConnect(id byte, channelType string) error {
	msg := SystemMessage{Cmd: CmdChannelOpen, ChannelID: id, ChannelType: channelType}
	return m.sendSystem(msg)
}

func (m *Multiplexer) sendChannelClose(id byte, reason string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.stream.SendByte(rfbproto.MsgLTSMClose); err != nil {
		return err
	}
	if err := m.stream.SendByte(id); err != nil {
		return err
	}
	if err := m.stream.SendU32BE(uint32(len(reason))); err != nil {
		return err
	}
	if err := m.stream.SendBytes([]byte(reason)); err != nil {
		return err
	}
	return m.stream.Flush()
}

func (m *Multiplexer) sendChannelData(id byte, payload []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.stream.SendByte(rfbproto.MsgLTSMChannel); err != nil {
		return err
	}
	if err := m.stream.SendByte(id); err != nil {
		return err
	}
	if err := m.stream.SendU32BE(uint32(len(payload))); err != nil {
		return err
	}
	if err := m.stream.SendBytes(payload); err != nil {
		return err
	}
	return m.stream.Flush()
}

func (m *Multiplexer) sendSystem(msg SystemMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("channel: marshal system message: %w", err)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.stream.SendByte(rfbproto.MsgLTSMSystem); err != nil {
		return err
	}
	if err := m.stream.SendByte(0); err != nil {
		return err
	}
	if err := m.stream.SendU32BE(uint32(len(payload))); err != nil {
		return err
	}
	if err := m.stream.SendBytes(payload); err != nil {
		return err
	}
	return m.stream.Flush()
}

// SendSystemMessage exposes sendSystem for collaborators outside this
// package (e.g. the session layer broadcasting client-variables acks).
func (m *Multiplexer) SendSystemMessage(msg SystemMessage) error {
	return m.sendSystem(msg)
}
