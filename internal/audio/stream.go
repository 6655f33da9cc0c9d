package audio

import (
	"context"
	"encoding/binary"

	"github.com/ltsm-go/ltsm/internal/channel"
	"github.com/ltsm-go/ltsm/internal/ltsmerr"
)

// isSilent reports whether a captured frame is pure digital silence (spec
// §4.7: "scans each frame for non-silence (any byte != 0)").
func isSilent(frame []byte) bool {
	for _, b := range frame {
		if b != 0 {
			return false
		}
	}
	return true
}

// encodeData frames a Data message: payload bytes carried as-is (raw PCM
// or already-encoded codec bytes).
func encodeData(payload []byte) []byte {
	buf := make([]byte, 0, 6+len(payload))
	buf = binary.LittleEndian.AppendUint16(buf, msgData)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	return append(buf, payload...)
}

// encodeSilent frames a Silent message: the receiver synthesizes n bytes
// of zero locally rather than carrying them on the wire (spec §4.7).
func encodeSilent(n int) []byte {
	buf := make([]byte, 0, 6)
	buf = binary.LittleEndian.AppendUint16(buf, msgSilent)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(n))
	return buf
}

// decodeFrame splits a pulled channel frame into its tag and payload (for
// Silent, payload is empty and the zero-run length is returned via n).
func decodeFrame(msg []byte) (tag uint16, payload []byte, n int, err error) {
	if len(msg) < 6 {
		return 0, nil, 0, ltsmerr.NewProtocolError("audio: stream frame underflow")
	}
	tag = binary.LittleEndian.Uint16(msg)
	length := binary.LittleEndian.Uint32(msg[2:6])
	switch tag {
	case msgData:
		if int(length) != len(msg)-6 {
			return 0, nil, 0, ltsmerr.NewProtocolError("audio: data frame length mismatch")
		}
		return tag, msg[6:], 0, nil
	case msgSilent:
		return tag, nil, int(length), nil
	default:
		return 0, nil, 0, ltsmerr.NewProtocolError("audio: unknown stream tag %d", tag)
	}
}

// CaptureLoop is the server-side capture thread: it samples frames from
// source, classifies each as silent or not, and pushes the corresponding
// wire message, optionally routing non-silent frames through a Codec
// first (spec §4.7).
func CaptureLoop(ctx context.Context, ch *channel.Channel, source Source, format AudioFormat, codec Codec, frameBytes int) error {
	raw := make([]byte, frameBytes)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := source.Read(raw)
		if err != nil {
			return err
		}
		frame := raw[:n]

		if isSilent(frame) {
			if err := ch.Push(ctx, encodeSilent(len(frame))); err != nil {
				return err
			}
			continue
		}

		payload := frame
		if codec != nil {
			encoded, err := codec.Encode(frame)
			if err != nil {
				// Spec §7 AudioError: drop the frame, keep the channel alive.
				continue
			}
			payload = encoded
		}
		if err := ch.Push(ctx, encodeData(payload)); err != nil {
			return err
		}
	}
}

// PlaybackLoop is the client-side receive thread: it pulls Data/Silent
// frames and writes PCM to sink, decoding through codec when the
// negotiated format isn't raw PCM.
func PlaybackLoop(ctx context.Context, ch *channel.Channel, sink Sink, codec Codec, silenceFrameBytes int) error {
	for {
		msg, err := ch.Pull(ctx)
		if err != nil {
			return err
		}
		tag, payload, n, err := decodeFrame(msg)
		if err != nil {
			continue // spec §7: drop malformed frame, keep channel alive
		}

		switch tag {
		case msgSilent:
			if err := sink.Write(make([]byte, n)); err != nil {
				return err
			}
		case msgData:
			pcm := payload
			if codec != nil {
				decoded, err := codec.Decode(payload)
				if err != nil {
					continue
				}
				pcm = decoded
			}
			if err := sink.Write(pcm); err != nil {
				return err
			}
		}
	}
}
