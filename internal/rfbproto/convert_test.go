package rfbproto

import "testing"

import "github.com/stretchr/testify/require"

func rgb888() PixelFormat {
	pf, err := NewTrueColorFormat(32, 24, false, 255, 255, 255, 0, 8, 16)
	if err != nil {
		panic(err)
	}
	return pf
}

func rgb565() PixelFormat {
	pf, err := NewTrueColorFormat(16, 16, false, 31, 63, 31, 11, 5, 0)
	if err != nil {
		panic(err)
	}
	return pf
}

func TestConvertPixelIdentity(t *testing.T) {
	pf := rgb888()
	raw := uint32(0x00ABCDEF)
	require.Equal(t, raw&0x00FFFFFF, ConvertPixel(raw, pf, pf)&0x00FFFFFF)
}

func TestConvertPixelPureRedToRGB565(t *testing.T) {
	src := rgb888()
	// red occupies shift 0 per spec example 2.
	src.RedShift, src.GreenShift, src.BlueShift = 0, 8, 16
	dst := rgb565()

	raw := uint32(0x000000FF) // pure red
	got := ConvertPixel(raw, src, dst)
	require.Equal(t, uint32(0xF800), got)
}

func TestReadWritePixelRoundTrip16LE(t *testing.T) {
	pf := rgb565()
	buf := make([]byte, 2)
	WritePixel(buf, pf, 0xF800)
	require.Equal(t, []byte{0x00, 0xF8}, buf)
	require.Equal(t, uint32(0xF800), ReadPixel(buf, pf))
}

func TestConvertBufferIdentityCopiesExactly(t *testing.T) {
	pf := rgb888()
	src := []byte{1, 2, 3, 0, 4, 5, 6, 0}
	out := ConvertBuffer(src, pf, pf)
	require.Equal(t, src, out)
}

func TestPixelFormatValidateRejectsBadShift(t *testing.T) {
	_, err := NewTrueColorFormat(16, 16, false, 31, 31, 31, 12, 6, 0)
	require.Error(t, err)
}
