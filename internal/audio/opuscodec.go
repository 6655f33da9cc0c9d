package audio

import (
	"gopkg.in/hraban/opus.v2"

	"github.com/ltsm-go/ltsm/internal/ltsmerr"
)

// Codec turns PCM frames into wire payloads and back. A nil Codec means
// the negotiated format is raw PCM and frames pass through unmodified.
type Codec interface {
	Encode(pcm []byte) ([]byte, error)
	Decode(payload []byte) ([]byte, error)
}

// bytesPerSample is fixed at 16-bit PCM; spec §4.7 only offers 16-bit
// formats to the OPUS path.
const bytesPerSample = 2

// opusCodec wraps gopkg.in/hraban/opus.v2, realigning arbitrary capture
// chunk lengths onto the fixed frame sizes libopus requires (spec §4.7:
// "OPUS requires frame sizes among {120, 240, 480, 960}").
//
// Capture devices hand back whatever chunk size their buffer happens to
// fill with, so encode-side input rarely lines up with a legal frame
// size. residue carries the leftover samples from one Encode call into
// the next rather than padding or dropping them.
type opusCodec struct {
	channels   int
	sampleRate int
	frameSize  int // samples per channel, one of opusFrameSizes

	enc *opus.Encoder
	dec *opus.Decoder

	residue []byte // undispatched PCM bytes carried across Encode calls
}

// NewOpusCodec builds a Codec for the negotiated format, choosing the
// legal OPUS frame size closest to a 20ms frame at the format's sample
// rate (libopus's own recommended default).
func NewOpusCodec(format AudioFormat) (Codec, error) {
	channels := int(format.Channels)
	rate := int(format.SamplesPerSec)

	enc, err := opus.NewEncoder(rate, channels, opus.AppAudio)
	if err != nil {
		return nil, ltsmerr.NewProtocolError("audio: opus encoder init: %v", err)
	}
	dec, err := opus.NewDecoder(rate, channels)
	if err != nil {
		return nil, ltsmerr.NewProtocolError("audio: opus decoder init: %v", err)
	}

	frameSize := pickFrameSize(rate)
	return &opusCodec{
		channels:   channels,
		sampleRate: rate,
		frameSize:  frameSize,
		enc:        enc,
		dec:        dec,
	}, nil
}

// pickFrameSize picks the opusFrameSizes entry closest to 20ms of audio
// at rate, libopus's conventional default frame duration.
func pickFrameSize(rate int) int {
	target := rate / 50 // 20ms
	best := opusFrameSizes[0]
	bestDelta := abs(best - target)
	for _, fs := range opusFrameSizes[1:] {
		if d := abs(fs - target); d < bestDelta {
			best, bestDelta = fs, d
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (c *opusCodec) frameBytes() int {
	return c.frameSize * c.channels * bytesPerSample
}

// Encode accepts arbitrarily-sized PCM chunks, buffers any remainder that
// doesn't fill a whole frame, and returns the concatenation of all
// complete-frame OPUS packets it could produce this call (each prefixed
// with its own length so Decode can split them back apart).
func (c *opusCodec) Encode(pcm []byte) ([]byte, error) {
	c.residue = append(c.residue, pcm...)

	frameBytes := c.frameBytes()
	pcmInt16 := make([]int16, c.frameSize*c.channels)
	packetBuf := make([]byte, 4000) // generous upper bound for one OPUS packet

	var out []byte
	for len(c.residue) >= frameBytes {
		frame := c.residue[:frameBytes]
		c.residue = c.residue[frameBytes:]

		for i := range pcmInt16 {
			pcmInt16[i] = int16(frame[2*i]) | int16(frame[2*i+1])<<8
		}
		n, err := c.enc.Encode(pcmInt16, packetBuf)
		if err != nil {
			return nil, ltsmerr.NewProtocolError("audio: opus encode: %v", err)
		}
		out = appendLenPrefixed(out, packetBuf[:n])
	}
	return out, nil
}

// Decode unpacks the length-prefixed OPUS packets Encode produced and
// decodes each back to 16-bit PCM, concatenating the results.
func (c *opusCodec) Decode(payload []byte) ([]byte, error) {
	pcmInt16 := make([]int16, c.frameSize*c.channels)
	var out []byte
	pos := 0
	for pos < len(payload) {
		packet, next, err := readLenPrefixed(payload, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		n, err := c.dec.Decode(packet, pcmInt16)
		if err != nil {
			return nil, ltsmerr.NewProtocolError("audio: opus decode: %v", err)
		}
		frame := make([]byte, n*c.channels*bytesPerSample)
		for i := 0; i < n*c.channels; i++ {
			frame[2*i] = byte(pcmInt16[i])
			frame[2*i+1] = byte(pcmInt16[i] >> 8)
		}
		out = append(out, frame...)
	}
	return out, nil
}

func appendLenPrefixed(dst []byte, packet []byte) []byte {
	dst = append(dst, byte(len(packet)), byte(len(packet)>>8))
	return append(dst, packet...)
}

func readLenPrefixed(buf []byte, pos int) (packet []byte, next int, err error) {
	if pos+2 > len(buf) {
		return nil, 0, ltsmerr.NewProtocolError("audio: opus packet length underflow")
	}
	n := int(buf[pos]) | int(buf[pos+1])<<8
	pos += 2
	if pos+n > len(buf) {
		return nil, 0, ltsmerr.NewProtocolError("audio: opus packet truncated")
	}
	return buf[pos : pos+n], pos + n, nil
}
