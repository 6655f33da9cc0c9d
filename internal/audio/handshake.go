package audio

import (
	"context"
	"encoding/binary"

	"github.com/ltsm-go/ltsm/internal/channel"
	"github.com/ltsm-go/ltsm/internal/ltsmerr"
)

// Wire message tags for the audio channel (spec §4.7, §6.1: "Audio channel
// payloads: little-endian").
const (
	msgInit   uint16 = 1
	msgData   uint16 = 2
	msgSilent uint16 = 3
)

// protocolVersion is echoed back by the client on successful negotiation;
// bumped if the wire shape of Init ever changes.
const protocolVersion uint16 = 1

// NegotiateServer offers formats to the client and returns whichever one
// it picked (spec §4.7's init handshake, server side).
func NegotiateServer(ctx context.Context, ch *channel.Channel, offered []AudioFormat) (AudioFormat, error) {
	buf := make([]byte, 0, 8+len(offered)*10)
	buf = binary.LittleEndian.AppendUint16(buf, msgInit)
	buf = binary.LittleEndian.AppendUint16(buf, protocolVersion)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(offered)))
	for _, f := range offered {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(f.Encoding))
		buf = binary.LittleEndian.AppendUint16(buf, f.Channels)
		buf = binary.LittleEndian.AppendUint32(buf, f.SamplesPerSec)
		buf = binary.LittleEndian.AppendUint16(buf, f.BitsPerSample)
	}
	if err := ch.Push(ctx, buf); err != nil {
		return AudioFormat{}, err
	}

	reply, err := ch.Pull(ctx)
	if err != nil {
		return AudioFormat{}, err
	}
	if len(reply) < 4 {
		return AudioFormat{}, ltsmerr.NewProtocolError("audio: init reply underflow")
	}
	tag := binary.LittleEndian.Uint16(reply)
	if tag != msgInit {
		return AudioFormat{}, ltsmerr.NewProtocolError("audio: expected init reply, got tag %d", tag)
	}
	// The success shape is a fixed 6 bytes (Init, protoVer, chosenType);
	// any other length is the error shape (Init, errLen, errBytes).
	if len(reply) != 6 {
		errLen := binary.LittleEndian.Uint16(reply[2:4])
		if int(errLen) != len(reply)-4 {
			return AudioFormat{}, ltsmerr.NewProtocolError("audio: malformed init reply")
		}
		reason := string(reply[4:])
		return AudioFormat{}, ltsmerr.NewProtocolError("audio: client rejected offer: %s", reason)
	}
	chosenType := binary.LittleEndian.Uint16(reply[4:6])
	for _, f := range offered {
		if uint16(f.Encoding) == chosenType {
			return f, nil
		}
	}
	return AudioFormat{}, ltsmerr.NewProtocolError("audio: client chose unoffered encoding %d", chosenType)
}

// NegotiateClient receives the server's offer, picks per
// clientPreference, and replies (spec §4.7, client side).
func NegotiateClient(ctx context.Context, ch *channel.Channel) (AudioFormat, error) {
	msg, err := ch.Pull(ctx)
	if err != nil {
		return AudioFormat{}, err
	}
	if len(msg) < 6 {
		return AudioFormat{}, ltsmerr.NewProtocolError("audio: init offer underflow")
	}
	tag := binary.LittleEndian.Uint16(msg)
	if tag != msgInit {
		return AudioFormat{}, ltsmerr.NewProtocolError("audio: expected init offer, got tag %d", tag)
	}
	count := binary.LittleEndian.Uint16(msg[4:6])
	offered := make([]AudioFormat, count)
	pos := 6
	for i := range offered {
		if pos+10 > len(msg) {
			return AudioFormat{}, ltsmerr.NewProtocolError("audio: init offer truncated")
		}
		offered[i] = AudioFormat{
			Encoding:      Encoding(binary.LittleEndian.Uint16(msg[pos:])),
			Channels:      binary.LittleEndian.Uint16(msg[pos+2:]),
			SamplesPerSec: binary.LittleEndian.Uint32(msg[pos+4:]),
			BitsPerSample: binary.LittleEndian.Uint16(msg[pos+8:]),
		}
		pos += 10
	}

	chosen, ok := choose(offered)
	reply := make([]byte, 0, 6)
	reply = binary.LittleEndian.AppendUint16(reply, msgInit)
	if !ok {
		reason := []byte("no acceptable encoding offered")
		reply = binary.LittleEndian.AppendUint16(reply, uint16(len(reason)))
		reply = append(reply, reason...)
		_ = ch.Push(ctx, reply)
		return AudioFormat{}, ltsmerr.NewProtocolError("audio: %s", reason)
	}
	reply = binary.LittleEndian.AppendUint16(reply, protocolVersion)
	reply = binary.LittleEndian.AppendUint16(reply, uint16(chosen.Encoding))
	if err := ch.Push(ctx, reply); err != nil {
		return AudioFormat{}, err
	}
	return chosen, nil
}
