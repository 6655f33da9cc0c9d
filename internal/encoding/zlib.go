package encoding

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"io"
	"sync"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

// DeflateStream is a persistent per-session compressor; the Registry keeps
// one each for Zlib, ZlibHex and ZRLE rectangles. RFB requires a single
// deflate stream spanning the whole session with an explicit sync-flush
// after each rectangle, not one stream per rectangle (spec §4.4).
// compress/flate is the stdlib encoder used here because none of the
// pack's examples wire in a third-party zlib binding (see design notes).
type DeflateStream struct {
	mu  sync.Mutex
	buf *bytes.Buffer
	fw  *flate.Writer
}

// NewDeflateStream creates a stream writing compressed bytes into buf.
func NewDeflateStream() *DeflateStream {
	buf := new(bytes.Buffer)
	fw, _ := flate.NewWriter(buf, flate.DefaultCompression)
	return &DeflateStream{buf: buf, fw: fw}
}

// compress deflates data and returns the bytes produced by a sync flush,
// i.e. exactly this call's contribution to the shared stream.
func (d *DeflateStream) compress(data []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf.Reset()
	if _, err := d.fw.Write(data); err != nil {
		return nil, err
	}
	if err := d.fw.Flush(); err != nil {
		return nil, err
	}
	return append([]byte(nil), d.buf.Bytes()...), nil
}

// ZlibEncoder is Raw pixel data deflated through a per-session stream, with
// a u32 BE length prefix ahead of the compressed bytes (spec §4.4).
type ZlibEncoder struct {
	Stream *DeflateStream
}

func (ZlibEncoder) ID() int32  { return rfbproto.EncodingZlib }
func (ZlibEncoder) Video() bool { return false }

func (e ZlibEncoder) Encode(view FramebufferView, dstFormat rfbproto.PixelFormat, w io.Writer) error {
	raw := new(bytes.Buffer)
	if err := (RawEncoder{}).Encode(view, dstFormat, raw); err != nil {
		return err
	}
	compressed, err := e.Stream.compress(raw.Bytes())
	if err != nil {
		return err
	}
	return writeLengthPrefixed(w, compressed)
}

// ZlibHexEncoder is Hextile tile data deflated through a per-session
// stream (spec §4.4).
type ZlibHexEncoder struct {
	Stream *DeflateStream
}

func (ZlibHexEncoder) ID() int32  { return rfbproto.EncodingZlibHex }
func (ZlibHexEncoder) Video() bool { return false }

func (e ZlibHexEncoder) Encode(view FramebufferView, dstFormat rfbproto.PixelFormat, w io.Writer) error {
	raw := new(bytes.Buffer)
	if err := (HextileEncoder{}).Encode(view, dstFormat, raw); err != nil {
		return err
	}
	compressed, err := e.Stream.compress(raw.Bytes())
	if err != nil {
		return err
	}
	return writeLengthPrefixed(w, compressed)
}

func writeLengthPrefixed(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
