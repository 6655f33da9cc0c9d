package encoding

import (
	"bytes"
	"compress/flate"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

func rgbaFormat(t *testing.T) rfbproto.PixelFormat {
	t.Helper()
	pf, err := rfbproto.NewTrueColorFormat(32, 24, false, 255, 255, 255, 0, 8, 16)
	require.NoError(t, err)
	return pf
}

func randomTile(t *testing.T, w, h int, pf rfbproto.PixelFormat, seed int64) FramebufferView {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	bpp := pf.BytesPerPixel()
	pixels := make([]byte, w*h*bpp)
	r.Read(pixels)
	return FramebufferView{
		Region: rfbproto.Region{X: 0, Y: 0, Width: uint16(w), Height: uint16(h)},
		Pixels: pixels,
		Pitch:  w * bpp,
		Format: pf,
	}
}

func decodeRaw(t *testing.T, payload []byte, w, h int, pf rfbproto.PixelFormat) [][]byte {
	t.Helper()
	bpp := pf.BytesPerPixel()
	rows := make([][]byte, h)
	for y := 0; y < h; y++ {
		rows[y] = payload[y*w*bpp : (y+1)*w*bpp]
	}
	return rows
}

func TestRawEncoderIdentityRoundTrip(t *testing.T) {
	pf := rgbaFormat(t)
	view := randomTile(t, 16, 16, pf, 1)

	buf := new(bytes.Buffer)
	require.NoError(t, (RawEncoder{}).Encode(view, pf, buf))

	got := decodeRaw(t, buf.Bytes(), 16, 16, pf)
	for y := 0; y < 16; y++ {
		require.Equal(t, view.Row(y), got[y])
	}
}

func TestHextileSolidTileRoundTrip(t *testing.T) {
	pf := rgbaFormat(t)
	bpp := pf.BytesPerPixel()
	pixels := make([]byte, 16*16*bpp)
	color := []byte{0x10, 0x20, 0x30, 0x00}
	for i := 0; i < len(pixels); i += bpp {
		copy(pixels[i:i+bpp], color)
	}
	view := FramebufferView{
		Region: rfbproto.Region{Width: 16, Height: 16},
		Pixels: pixels,
		Pitch:  16 * bpp,
		Format: pf,
	}

	buf := new(bytes.Buffer)
	require.NoError(t, (HextileEncoder{}).Encode(view, pf, buf))

	subencoding := buf.Bytes()[0]
	require.Equal(t, hextileBackgroundSpecified, subencoding)
	require.Equal(t, color, buf.Bytes()[1:1+bpp])
}

func TestHextileEncoderBackgroundAndMonochromeSubrects(t *testing.T) {
	pf := rgbaFormat(t)
	bpp := pf.BytesPerPixel()
	w, h := 16, 16
	pixels := make([]byte, w*h*bpp)
	background := []byte{0x01, 0x02, 0x03, 0x00}
	for i := 0; i < len(pixels); i += bpp {
		copy(pixels[i:i+bpp], background)
	}
	fg := []byte{0xAA, 0xBB, 0xCC, 0x00}
	copy(pixels[(2*w+3)*bpp:], fg)
	copy(pixels[(2*w+4)*bpp:], fg)

	view := FramebufferView{
		Region: rfbproto.Region{Width: uint16(w), Height: uint16(h)},
		Pixels: pixels,
		Pitch:  w * bpp,
		Format: pf,
	}

	buf := new(bytes.Buffer)
	require.NoError(t, (HextileEncoder{}).Encode(view, pf, buf))

	data := buf.Bytes()
	subencoding := data[0]
	require.Equal(t, hextileBackgroundSpecified|hextileForegroundSpecified|hextileAnySubrects, subencoding)
	require.Equal(t, background, data[1:1+bpp])
	require.Equal(t, fg, data[1+bpp:1+2*bpp])

	count := data[1+2*bpp]
	require.Equal(t, byte(1), count, "the two adjacent foreground pixels should merge into one run")
}

func TestHextileEncoderSubrectsColoured(t *testing.T) {
	pf := rgbaFormat(t)
	bpp := pf.BytesPerPixel()
	w, h := 16, 16
	pixels := make([]byte, w*h*bpp)
	background := []byte{0x01, 0x02, 0x03, 0x00}
	for i := 0; i < len(pixels); i += bpp {
		copy(pixels[i:i+bpp], background)
	}
	red := []byte{0xFF, 0x00, 0x00, 0x00}
	blue := []byte{0x00, 0x00, 0xFF, 0x00}
	copy(pixels[(1*w+1)*bpp:], red)
	copy(pixels[(5*w+5)*bpp:], blue)

	view := FramebufferView{
		Region: rfbproto.Region{Width: uint16(w), Height: uint16(h)},
		Pixels: pixels,
		Pitch:  w * bpp,
		Format: pf,
	}

	buf := new(bytes.Buffer)
	require.NoError(t, (HextileEncoder{}).Encode(view, pf, buf))

	subencoding := buf.Bytes()[0]
	require.Equal(t, hextileBackgroundSpecified|hextileSubrectsColoured|hextileAnySubrects, subencoding)
}

func TestRREEncoderBackgroundAndSubrects(t *testing.T) {
	pf := rgbaFormat(t)
	bpp := pf.BytesPerPixel()
	w, h := 8, 4
	pixels := make([]byte, w*h*bpp)
	background := []byte{0x01, 0x02, 0x03, 0x00}
	for i := 0; i < len(pixels); i += bpp {
		copy(pixels[i:i+bpp], background)
	}
	fg := []byte{0xAA, 0xBB, 0xCC, 0x00}
	copy(pixels[(1*w+2)*bpp:], fg)
	copy(pixels[(1*w+3)*bpp:], fg)

	view := FramebufferView{
		Region: rfbproto.Region{Width: uint16(w), Height: uint16(h)},
		Pixels: pixels,
		Pitch:  w * bpp,
		Format: pf,
	}

	buf := new(bytes.Buffer)
	require.NoError(t, (RREEncoder{}).Encode(view, pf, buf))

	require.Equal(t, background, buf.Bytes()[:bpp])
}

func TestZlibEncoderDecompressesToRaw(t *testing.T) {
	pf := rgbaFormat(t)
	view := randomTile(t, 16, 16, pf, 2)
	stream := NewDeflateStream()
	enc := ZlibEncoder{Stream: stream}

	buf := new(bytes.Buffer)
	require.NoError(t, enc.Encode(view, pf, buf))

	length := uint32(buf.Bytes()[0])<<24 | uint32(buf.Bytes()[1])<<16 | uint32(buf.Bytes()[2])<<8 | uint32(buf.Bytes()[3])
	compressed := buf.Bytes()[4 : 4+int(length)]

	rawBuf := new(bytes.Buffer)
	require.NoError(t, (RawEncoder{}).Encode(view, pf, rawBuf))

	// The rectangle ends on a sync flush, not a final block, so read
	// exactly the raw length rather than waiting for end of stream.
	fr := flate.NewReader(bytes.NewReader(compressed))
	decompressed := make([]byte, rawBuf.Len())
	_, err := io.ReadFull(fr, decompressed)
	require.NoError(t, err)
	require.Equal(t, rawBuf.Bytes(), decompressed)
}

func TestTRLESolidTile(t *testing.T) {
	pf := rgbaFormat(t)
	bpp := pf.BytesPerPixel()
	pixels := make([]byte, 16*16*bpp)
	color := []byte{0x40, 0x50, 0x60, 0x00}
	for i := 0; i < len(pixels); i += bpp {
		copy(pixels[i:i+bpp], color)
	}
	view := FramebufferView{
		Region: rfbproto.Region{Width: 16, Height: 16},
		Pixels: pixels,
		Pitch:  16 * bpp,
		Format: pf,
	}

	buf := new(bytes.Buffer)
	require.NoError(t, (TRLEEncoder{}).Encode(view, pf, buf))
	require.Equal(t, trleSubencodingSolid, buf.Bytes()[0])
	require.Equal(t, color, buf.Bytes()[1:1+bpp])
}

func TestUnsupportedEncoderTriggersFallback(t *testing.T) {
	pf := rgbaFormat(t)
	view := randomTile(t, 16, 16, pf, 3)
	registry := NewRegistry()
	p := NewPool(registry, 2)

	rects, err := p.Encode([]Task{{View: view, Encoding: rfbproto.EncodingLTSMQOI}}, pf)
	require.NoError(t, err)
	require.Len(t, rects, 1)
	require.Equal(t, rfbproto.EncodingRaw, rects[0].Encoding)
}

func TestPoolPreservesOrder(t *testing.T) {
	pf := rgbaFormat(t)
	registry := NewRegistry()
	p := NewPool(registry, 4)

	var tasks []Task
	for i := 0; i < 10; i++ {
		view := randomTile(t, 16, 16, pf, int64(i))
		view.Region.X = uint16(i * 16)
		tasks = append(tasks, Task{View: view, Encoding: rfbproto.EncodingRaw})
	}

	rects, err := p.Encode(tasks, pf)
	require.NoError(t, err)
	require.Len(t, rects, 10)
	for i, rect := range rects {
		require.Equal(t, uint16(i*16), rect.Region.X)
	}
}
