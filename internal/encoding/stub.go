package encoding

import (
	"io"

	"github.com/ltsm-go/ltsm/internal/ltsmerr"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

// UnsupportedEncoder stands in for encodings this build doesn't implement
// a native codec for (LTSM_QOI, LTSM_LZ4, LTSM_TJPG, and the FFMPEG video
// encodings, none of which have a pack-grounded pure-Go implementation).
// Encode always fails with ltsmerr.Unsupported, which Pool.Encode catches
// to fall back to Raw, per spec §7.
type UnsupportedEncoder struct {
	Encoding int32
	Name     string
	IsVideo  bool
}

func (e UnsupportedEncoder) ID() int32   { return e.Encoding }
func (e UnsupportedEncoder) Video() bool { return e.IsVideo }

func (e UnsupportedEncoder) Encode(FramebufferView, rfbproto.PixelFormat, io.Writer) error {
	return &ltsmerr.Unsupported{What: e.Name}
}
