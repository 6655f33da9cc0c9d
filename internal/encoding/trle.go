package encoding

import (
	"bytes"
	"io"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

// TRLE subencoding byte values (spec §4.4). This implementation emits only
// Raw (0) and Solid (1) tiles: both are always protocol-legal for any tile
// content, so correctness never depends on the richer palette/RLE modes
// also named by the format.
const (
	trleSubencodingRaw   byte = 0
	trleSubencodingSolid byte = 1
)

// TRLEEncoder tiles the view into 16x16 blocks, each a solid fill or a raw
// dump of true-colour pixels (spec §4.4).
type TRLEEncoder struct{}

func (TRLEEncoder) ID() int32  { return rfbproto.EncodingTRLE }
func (TRLEEncoder) Video() bool { return false }

func (TRLEEncoder) Encode(view FramebufferView, dstFormat rfbproto.PixelFormat, w io.Writer) error {
	return encodeTRLETiles(view, dstFormat, w)
}

func encodeTRLETiles(view FramebufferView, dstFormat rfbproto.PixelFormat, w io.Writer) error {
	srcBpp := view.Format.BytesPerPixel()
	bpp := dstFormat.BytesPerPixel()
	width := int(view.Region.Width)
	height := int(view.Region.Height)

	for ty := 0; ty < height; ty += hextileTile {
		th := minInt(hextileTile, height-ty)
		for tx := 0; tx < width; tx += hextileTile {
			tw := minInt(hextileTile, width-tx)

			rows := make([][]byte, th)
			for y := 0; y < th; y++ {
				srcRow := view.Row(ty + y)
				rows[y] = rfbproto.ConvertBuffer(srcRow[tx*srcBpp:tx*srcBpp+tw*srcBpp], view.Format, dstFormat)
			}

			solid, color := tileSolidColor(rows, bpp)
			if solid {
				if err := writeByte(w, trleSubencodingSolid); err != nil {
					return err
				}
				if _, err := w.Write(color); err != nil {
					return err
				}
				continue
			}
			if err := writeByte(w, trleSubencodingRaw); err != nil {
				return err
			}
			for y := 0; y < th; y++ {
				if _, err := w.Write(rows[y]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ZRLEEncoder wraps the TRLE tile stream in a per-session deflate stream
// with a u32 BE length prefix, as ZRLE requires (spec §4.4).
type ZRLEEncoder struct {
	Stream *DeflateStream
}

func (ZRLEEncoder) ID() int32  { return rfbproto.EncodingZRLE }
func (ZRLEEncoder) Video() bool { return false }

func (e ZRLEEncoder) Encode(view FramebufferView, dstFormat rfbproto.PixelFormat, w io.Writer) error {
	raw := new(bytes.Buffer)
	if err := encodeTRLETiles(view, dstFormat, raw); err != nil {
		return err
	}
	compressed, err := e.Stream.compress(raw.Bytes())
	if err != nil {
		return err
	}
	return writeLengthPrefixed(w, compressed)
}
