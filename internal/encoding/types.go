// Package encoding implements the RFB rectangle encoders and the worker
// pool that fans a damaged region out across them (spec §4.4).
package encoding

import (
	"io"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

// FramebufferView is a read-only window onto a region of the server's
// framebuffer, in the server's PixelFormat. Pitch lets a view address a
// sub-rectangle of a larger backing buffer without copying.
type FramebufferView struct {
	Region rfbproto.Region
	Pixels []byte
	Pitch  int
	Format rfbproto.PixelFormat
}

// Row returns the bytes for scanline y (0-based, relative to the view),
// spanning exactly Region.Width pixels.
func (v FramebufferView) Row(y int) []byte {
	start := y * v.Pitch
	bpp := v.Format.BytesPerPixel()
	end := start + int(v.Region.Width)*bpp
	return v.Pixels[start:end]
}

// Encoder turns one FramebufferView into an RFB rectangle payload (the
// bytes following the x/y/w/h/encoding-type rectangle header).
type Encoder interface {
	// ID is the RFB encoding number this encoder implements.
	ID() int32
	// Encode writes view, converted to dstFormat, to w.
	Encode(view FramebufferView, dstFormat rfbproto.PixelFormat, w io.Writer) error
	// Video reports whether this encoder is a video-tagged encoder that
	// needs a trueColor source and emits periodic keyframes (spec §4.4).
	Video() bool
}

// Rectangle is one encoded output: the header fields plus the already
// serialized payload, ready to be written to the wire in order.
type Rectangle struct {
	Region   rfbproto.Region
	Encoding int32
	Payload  []byte
}
