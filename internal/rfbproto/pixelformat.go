// Package rfbproto holds RFB wire constants and the pixel/geometry data
// model shared by the engine, the encoding pipeline, and the channel
// multiplexer (spec §3, §4.3).
package rfbproto

import "fmt"

// PixelFormat describes how a client or server packs colour channels into
// a pixel. The zero value is invalid; use NewTrueColorFormat or decode one
// off the wire.
type PixelFormat struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    bool
	TrueColor    bool

	RedMax, GreenMax, BlueMax       uint16
	RedShift, GreenShift, BlueShift uint8
}

// NewTrueColorFormat builds a true-colour PixelFormat, validating the
// power-of-two-max / shift-fits-in-bpp invariant from spec §3.
func NewTrueColorFormat(bpp, depth uint8, bigEndian bool, redMax, greenMax, blueMax uint16, redShift, greenShift, blueShift uint8) (PixelFormat, error) {
	pf := PixelFormat{
		BitsPerPixel: bpp,
		Depth:        depth,
		BigEndian:    bigEndian,
		TrueColor:    true,
		RedMax:       redMax,
		GreenMax:     greenMax,
		BlueMax:      blueMax,
		RedShift:     redShift,
		GreenShift:   greenShift,
		BlueShift:    blueShift,
	}
	if err := pf.Validate(); err != nil {
		return PixelFormat{}, err
	}
	return pf, nil
}

// Validate checks the invariants from spec §3: bpp is one of {8,16,32},
// each (max+1) is a power of two, and shift+log2(max+1) <= bpp.
func (pf PixelFormat) Validate() error {
	switch pf.BitsPerPixel {
	case 8, 16, 32:
	default:
		return fmt.Errorf("rfbproto: invalid bits-per-pixel %d", pf.BitsPerPixel)
	}
	for name, pair := range map[string][2]uint16{
		"red":   {pf.RedMax, uint16(pf.RedShift)},
		"green": {pf.GreenMax, uint16(pf.GreenShift)},
		"blue":  {pf.BlueMax, uint16(pf.BlueShift)},
	} {
		max, shift := pair[0], pair[1]
		if !pf.TrueColor {
			continue
		}
		bits := bitsFor(max)
		if (uint32(max) + 1) != (1 << bits) {
			return fmt.Errorf("rfbproto: %s max %d+1 is not a power of two", name, max)
		}
		if uint32(shift)+uint32(bits) > uint32(pf.BitsPerPixel) {
			return fmt.Errorf("rfbproto: %s shift %d overflows %d bpp", name, shift, pf.BitsPerPixel)
		}
	}
	return nil
}

// bitsFor returns log2(max+1) for a power-of-two-minus-one max value.
func bitsFor(max uint16) uint {
	bits := uint(0)
	for v := uint32(max) + 1; v > 1; v >>= 1 {
		bits++
	}
	return bits
}

// BytesPerPixel returns BitsPerPixel/8.
func (pf PixelFormat) BytesPerPixel() int { return int(pf.BitsPerPixel) / 8 }

// Equal reports whether two formats are bit-for-bit identical, the
// condition under which pixel conversion must be the identity (spec §8).
func (pf PixelFormat) Equal(other PixelFormat) bool {
	return pf == other
}
