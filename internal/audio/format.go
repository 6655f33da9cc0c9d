// Package audio implements the audio-redirection LTSM channel: codec
// negotiation, silence-frame optimization, and the OPUS wrapper used for
// lossy capture streaming (spec §4.7).
package audio

import "fmt"

// Encoding identifies the wire codec carried by a negotiated AudioFormat.
type Encoding uint16

const (
	EncodingPCM Encoding = iota
	EncodingOpus
	EncodingAAC
)

func (e Encoding) String() string {
	switch e {
	case EncodingPCM:
		return "PCM"
	case EncodingOpus:
		return "OPUS"
	case EncodingAAC:
		return "AAC"
	default:
		return fmt.Sprintf("Encoding(%d)", uint16(e))
	}
}

// AudioFormat is one entry in the server's offered-encodings list, and
// the format both peers settle on after negotiation (spec §3, §4.7).
type AudioFormat struct {
	Encoding      Encoding
	Channels      uint16
	SamplesPerSec uint32
	BitsPerSample uint16
}

// clientPreference ranks formats the way the client picks among the
// server's offer: OPUS beats PCM beats AAC (spec §4.7: "Client prefers
// OPUS over PCM over AAC").
func clientPreference(e Encoding) int {
	switch e {
	case EncodingOpus:
		return 0
	case EncodingPCM:
		return 1
	case EncodingAAC:
		return 2
	default:
		return 3
	}
}

// choose picks the most-preferred format from the server's offer.
func choose(offered []AudioFormat) (AudioFormat, bool) {
	if len(offered) == 0 {
		return AudioFormat{}, false
	}
	best := offered[0]
	for _, f := range offered[1:] {
		if clientPreference(f.Encoding) < clientPreference(best.Encoding) {
			best = f
		}
	}
	return best, true
}

// opusFrameSizes are the only frame lengths, in samples per channel,
// libopus accepts at 48kHz-derived rates (spec §4.7: "OPUS requires frame
// sizes among {120, 240, 480, 960}").
var opusFrameSizes = [...]int{120, 240, 480, 960}
