package encoding

import "github.com/ltsm-go/ltsm/internal/rfbproto"

// Registry holds one Encoder per negotiated encoding for a session,
// including the persistent deflate streams the Zlib family needs (spec
// §4.4: "per-session deflate stream").
type Registry struct {
	zlibStream    *DeflateStream
	zlibHexStream *DeflateStream
	zrleStream    *DeflateStream
}

// NewRegistry creates a Registry with fresh per-session deflate streams.
func NewRegistry() *Registry {
	return &Registry{
		zlibStream:    NewDeflateStream(),
		zlibHexStream: NewDeflateStream(),
		zrleStream:    NewDeflateStream(),
	}
}

// Encoder returns the Encoder implementing id, or nil if this build has no
// native codec for it (video codecs and the LTSM proprietary codecs).
func (r *Registry) Encoder(id int32) Encoder {
	switch id {
	case rfbproto.EncodingRaw:
		return RawEncoder{}
	case rfbproto.EncodingRRE:
		return RREEncoder{CoRRE: false}
	case rfbproto.EncodingCoRRE:
		return RREEncoder{CoRRE: true}
	case rfbproto.EncodingHextile:
		return HextileEncoder{}
	case rfbproto.EncodingZlib:
		return ZlibEncoder{Stream: r.zlibStream}
	case rfbproto.EncodingZlibHex:
		return ZlibHexEncoder{Stream: r.zlibHexStream}
	case rfbproto.EncodingTRLE:
		return TRLEEncoder{}
	case rfbproto.EncodingZRLE:
		return ZRLEEncoder{Stream: r.zrleStream}
	case rfbproto.EncodingLTSMQOI:
		return UnsupportedEncoder{Encoding: id, Name: "LTSM_QOI"}
	case rfbproto.EncodingLTSMLZ4:
		return UnsupportedEncoder{Encoding: id, Name: "LTSM_LZ4"}
	case rfbproto.EncodingLTSMTJPG:
		return UnsupportedEncoder{Encoding: id, Name: "LTSM_TJPG"}
	case rfbproto.EncodingFFMPEGH264:
		return UnsupportedEncoder{Encoding: id, Name: "FFMPEG_H264", IsVideo: true}
	case rfbproto.EncodingFFMPEGAV1:
		return UnsupportedEncoder{Encoding: id, Name: "FFMPEG_AV1", IsVideo: true}
	case rfbproto.EncodingFFMPEGVP8:
		return UnsupportedEncoder{Encoding: id, Name: "FFMPEG_VP8", IsVideo: true}
	default:
		return nil
	}
}
