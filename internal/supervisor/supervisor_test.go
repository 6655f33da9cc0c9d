package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ltsm-go/ltsm/internal/rfbengine"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/tlslayer"
	"github.com/ltsm-go/ltsm/internal/xauth"
)

// fakeDisplay is a minimal DisplayAdapter good enough to complete a
// handshake and sit idle.
type fakeDisplay struct {
	width, height uint16
	format        rfbproto.PixelFormat
}

func (d *fakeDisplay) Size() (uint16, uint16)            { return d.width, d.height }
func (d *fakeDisplay) PixelFormat() rfbproto.PixelFormat { return d.format }
func (d *fakeDisplay) Region() rfbproto.Region {
	return rfbproto.Region{Width: d.width, Height: d.height}
}
func (d *fakeDisplay) PollDamage() (rfbproto.Region, bool)                      { return rfbproto.Region{}, false }
func (d *fakeDisplay) PollResize() (uint16, uint16, bool)                       { return 0, 0, false }
func (d *fakeDisplay) RequestResize(width, height uint16) error                 { return nil }
func (d *fakeDisplay) CopyRegion(r rfbproto.Region, out []byte, pitch int) error { return nil }
func (d *fakeDisplay) InjectKey(keysym uint32, pressed bool)                    {}
func (d *fakeDisplay) InjectButton(n int, x, y uint16, press bool)              {}
func (d *fakeDisplay) InjectMotion(x, y uint16)                                 {}
func (d *fakeDisplay) SetClipboard(data []byte)                                 {}
func (d *fakeDisplay) GetClipboard() ([]byte, bool)                             { return nil, false }
func (d *fakeDisplay) Ring()                                                    {}

type fakeSurface struct{}

func (fakeSurface) CreateWindow(width, height uint16, flags uint32) error { return nil }
func (fakeSurface) Resize(width, height uint16) error                    { return nil }
func (fakeSurface) UploadRegion(r rfbproto.Region, pixels []byte, pf rfbproto.PixelFormat) error {
	return nil
}
func (fakeSurface) Present() error                               { return nil }
func (fakeSurface) SetCursor(cursor rfbengine.ColorCursor) error { return nil }
func (fakeSurface) SetClipboard(data []byte)                     {}
func (fakeSurface) GetClipboard() ([]byte, bool)                 { return nil, false }

func TestSupervisorAcceptsAndTracksSession(t *testing.T) {
	format, err := rfbproto.NewTrueColorFormat(32, 24, false, 255, 255, 255, 16, 8, 0)
	require.NoError(t, err)

	sv := New(Config{
		ListenAddr:   "127.0.0.1:0",
		Security:     rfbengine.SecurityConfig{Types: []uint8{rfbproto.SecurityNone}},
		SharedFormat: format,
		DesktopName:  "test-desktop",
		DisplayFactory: func(sessionID string, xa *xauth.Entry) (rfbengine.DisplayAdapter, error) {
			return &fakeDisplay{width: 800, height: 600, format: format}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		// Resolve the ephemeral port only after Serve has bound it.
		errCh <- sv.Serve(ctx)
	}()

	var addr string
	require.Eventually(t, func() bool {
		sv.mu.Lock()
		ln := sv.listener
		sv.mu.Unlock()
		if ln == nil {
			return false
		}
		addr = ln.Addr().String()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	client := rfbengine.NewClientSession(conn, fakeSurface{})
	clientErrCh := make(chan error, 1)
	go func() { clientErrCh <- client.RunClient(ctx, "", tlslayer.Config{}, "") }()

	require.Eventually(t, func() bool {
		return sv.SessionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		return sv.SessionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
