package encoding

import (
	"io"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

// RawEncoder copies pixels row-major, converted to the destination
// PixelFormat (spec §4.4).
type RawEncoder struct{}

func (RawEncoder) ID() int32  { return rfbproto.EncodingRaw }
func (RawEncoder) Video() bool { return false }

func (RawEncoder) Encode(view FramebufferView, dstFormat rfbproto.PixelFormat, w io.Writer) error {
	for y := 0; y < int(view.Region.Height); y++ {
		row := view.Row(y)
		converted := rfbproto.ConvertBuffer(row, view.Format, dstFormat)
		if _, err := w.Write(converted); err != nil {
			return err
		}
	}
	return nil
}
