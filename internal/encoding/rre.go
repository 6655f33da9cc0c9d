package encoding

import (
	"encoding/binary"
	"io"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

// RREEncoder sends a background colour plus uniform-colour sub-rectangles
// (spec §4.4). corre selects the CoRRE variant, which packs sub-rectangle
// coordinates into single bytes instead of u16s and is only legal for tiles
// no larger than 255x255.
type RREEncoder struct {
	CoRRE bool
}

func (e RREEncoder) ID() int32 {
	if e.CoRRE {
		return rfbproto.EncodingCoRRE
	}
	return rfbproto.EncodingRRE
}

func (RREEncoder) Video() bool { return false }

type rreSubrect struct {
	x, y, w, h int
	color      []byte
}

func (e RREEncoder) Encode(view FramebufferView, dstFormat rfbproto.PixelFormat, w io.Writer) error {
	bpp := dstFormat.BytesPerPixel()
	width := int(view.Region.Width)
	height := int(view.Region.Height)

	converted := make([][]byte, height)
	for y := 0; y < height; y++ {
		converted[y] = rfbproto.ConvertBuffer(view.Row(y), view.Format, dstFormat)
	}

	background := pixelAt(converted, 0, 0, bpp)
	var subrects []rreSubrect
	for y := 0; y < height; y++ {
		x := 0
		for x < width {
			px := pixelAt(converted, x, y, bpp)
			if bytesEqual(px, background) {
				x++
				continue
			}
			runStart := x
			for x < width && bytesEqual(pixelAt(converted, x, y, bpp), px) {
				x++
			}
			subrects = append(subrects, rreSubrect{x: runStart, y: y, w: x - runStart, h: 1, color: px})
		}
	}

	if _, err := w.Write(background); err != nil {
		return err
	}
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(subrects)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	for _, sr := range subrects {
		if _, err := w.Write(sr.color); err != nil {
			return err
		}
		if err := e.writeCoords(w, sr); err != nil {
			return err
		}
	}
	return nil
}

func (e RREEncoder) writeCoords(w io.Writer, sr rreSubrect) error {
	if e.CoRRE {
		_, err := w.Write([]byte{byte(sr.x), byte(sr.y), byte(sr.w), byte(sr.h)})
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(sr.x))
	binary.BigEndian.PutUint16(buf[2:4], uint16(sr.y))
	binary.BigEndian.PutUint16(buf[4:6], uint16(sr.w))
	binary.BigEndian.PutUint16(buf[6:8], uint16(sr.h))
	_, err := w.Write(buf[:])
	return err
}

func pixelAt(rows [][]byte, x, y, bpp int) []byte {
	return rows[y][x*bpp : x*bpp+bpp]
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
