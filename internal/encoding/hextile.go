package encoding

import (
	"io"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

const hextileTile = 16

// Hextile subencoding mask bits (spec §4.4).
const (
	hextileRaw                 byte = 1 << 0
	hextileBackgroundSpecified byte = 1 << 1
	hextileForegroundSpecified byte = 1 << 2
	hextileAnySubrects         byte = 1 << 3
	hextileSubrectsColoured    byte = 1 << 4
)

// maxHextileSubrects is the wire limit: the subrect count is a single byte.
const maxHextileSubrects = 255

// HextileEncoder splits the view into 16x16 tiles. A solid tile is sent as
// a background fill; a tile with a dominant background colour and a
// handful of foreground runs is sent as background+subrects (monochrome
// foreground uses plain subrects, multi-colour runs use SubrectsColoured);
// anything else falls back to a raw dump. Background and foreground
// colours are only repeated on the wire when they change from the
// previous tile (spec §4.4).
type HextileEncoder struct{}

func (HextileEncoder) ID() int32   { return rfbproto.EncodingHextile }
func (HextileEncoder) Video() bool { return false }

type hextileSubrect struct {
	x, y, w, h int
	color      []byte
}

func (HextileEncoder) Encode(view FramebufferView, dstFormat rfbproto.PixelFormat, w io.Writer) error {
	srcBpp := view.Format.BytesPerPixel()
	bpp := dstFormat.BytesPerPixel()
	width := int(view.Region.Width)
	height := int(view.Region.Height)

	var prevBackground, prevForeground []byte

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
				if err := writeHextileBackground(w, color, &prevBackground); err != nil {
					return err
				}
				prevForeground = nil
				continue
			}

			background := pixelAt(rows, 0, 0, bpp)
			subrects := hextileSubrects(rows, tw, th, bpp, background)
			monoColor, monochrome := hextileMonochrome(subrects)

			if len(subrects) == 0 || len(subrects) > maxHextileSubrects {
				if err := writeByte(w, hextileRaw); err != nil {
					return err
				}
				for y := 0; y < th; y++ {
					if _, err := w.Write(rows[y]); err != nil {
						return err
					}
				}
				prevBackground, prevForeground = nil, nil
				continue
			}

			subencoding := hextileAnySubrects
			if !bytesEqual(prevBackground, background) {
				subencoding |= hextileBackgroundSpecified
			}
			if monochrome {
				if !bytesEqual(prevForeground, monoColor) {
					subencoding |= hextileForegroundSpecified
				}
			} else {
				subencoding |= hextileSubrectsColoured
			}

			if err := writeByte(w, subencoding); err != nil {
				return err
			}
			if subencoding&hextileBackgroundSpecified != 0 {
				if _, err := w.Write(background); err != nil {
					return err
				}
			}
			if monochrome && subencoding&hextileForegroundSpecified != 0 {
				if _, err := w.Write(monoColor); err != nil {
					return err
				}
			}
			if err := writeByte(w, byte(len(subrects))); err != nil {
				return err
			}
			for _, sr := range subrects {
				if !monochrome {
					if _, err := w.Write(sr.color); err != nil {
						return err
					}
				}
				if err := writeByte(w, byte(sr.x<<4|sr.y)); err != nil {
					return err
				}
				if err := writeByte(w, byte((sr.w-1)<<4|(sr.h-1))); err != nil {
					return err
				}
			}

			prevBackground = background
			if monochrome {
				prevForeground = monoColor
			} else {
				prevForeground = nil
			}
		}
	}
	return nil
}

func writeHextileBackground(w io.Writer, color []byte, prevBackground *[]byte) error {
	if *prevBackground != nil && bytesEqual(*prevBackground, color) {
		if err := writeByte(w, 0); err != nil {
			return err
		}
	} else {
		if err := writeByte(w, hextileBackgroundSpecified); err != nil {
			return err
		}
		if _, err := w.Write(color); err != nil {
			return err
		}
	}
	*prevBackground = color
	return nil
}

// hextileSubrects finds contiguous same-colour runs that differ from
// background, one run per scanline (mirroring RREEncoder's approach).
func hextileSubrects(rows [][]byte, w, h, bpp int, background []byte) []hextileSubrect {
	var subrects []hextileSubrect
	for y := 0; y < h; y++ {
		x := 0
		for x < w {
			px := pixelAt(rows, x, y, bpp)
			if bytesEqual(px, background) {
				x++
				continue
			}
			runStart := x
			for x < w && bytesEqual(pixelAt(rows, x, y, bpp), px) {
				x++
			}
			subrects = append(subrects, hextileSubrect{x: runStart, y: y, w: x - runStart, h: 1, color: px})
		}
	}
	return subrects
}

// hextileMonochrome reports whether every subrect shares one colour, which
// lets the caller omit per-subrect colours (plain AnySubrects instead of
// SubrectsColoured).
func hextileMonochrome(subrects []hextileSubrect) ([]byte, bool) {
	if len(subrects) == 0 {
		return nil, false
	}
	color := subrects[0].color
	for _, sr := range subrects[1:] {
		if !bytesEqual(sr.color, color) {
			return nil, false
		}
	}
	return color, true
}

func tileSolidColor(rows [][]byte, bpp int) (bool, []byte) {
	if len(rows) == 0 || len(rows[0]) < bpp {
		return false, nil
	}
	first := rows[0][0:bpp]
	for _, row := range rows {
		for i := 0; i+bpp <= len(row); i += bpp {
			if !bytesEqual(row[i:i+bpp], first) {
				return false, nil
			}
		}
	}
	return true, first
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
