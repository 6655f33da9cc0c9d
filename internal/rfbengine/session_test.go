package rfbengine

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/tlslayer"
)

// fakeDisplay is a minimal DisplayAdapter for end-to-end ready-loop tests.
type fakeDisplay struct {
	mu        sync.Mutex
	width     uint16
	height    uint16
	pixels    []byte
	damage    *rfbproto.Region
	resizeErr error
	clipboard []byte
	haveClip  bool
	keys      []uint32
}

func newFakeDisplay(w, h uint16) *fakeDisplay {
	return &fakeDisplay{width: w, height: h, pixels: make([]byte, int(w)*int(h)*4)}
}

func (d *fakeDisplay) Size() (uint16, uint16) { return d.width, d.height }
func (d *fakeDisplay) PixelFormat() rfbproto.PixelFormat {
	pf, _ := rfbproto.NewTrueColorFormat(32, 24, false, 255, 255, 255, 16, 8, 0)
	return pf
}
func (d *fakeDisplay) Region() rfbproto.Region {
	return rfbproto.Region{X: 0, Y: 0, Width: d.width, Height: d.height}
}
func (d *fakeDisplay) PollDamage() (rfbproto.Region, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.damage == nil {
		return rfbproto.Region{}, false
	}
	r := *d.damage
	d.damage = nil
	return r, true
}
func (d *fakeDisplay) PollResize() (uint16, uint16, bool) { return 0, 0, false }
func (d *fakeDisplay) RequestResize(width, height uint16) error {
	if d.resizeErr != nil {
		return d.resizeErr
	}
	d.mu.Lock()
	d.width, d.height = width, height
	d.pixels = make([]byte, int(width)*int(height)*4)
	d.mu.Unlock()
	return nil
}
func (d *fakeDisplay) CopyRegion(r rfbproto.Region, out []byte, pitch int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(out, d.pixels)
	return nil
}
func (d *fakeDisplay) InjectKey(keysym uint32, pressed bool) {
	if pressed {
		d.keys = append(d.keys, keysym)
	}
}
func (d *fakeDisplay) InjectButton(button int, x, y uint16, pressed bool) {}
func (d *fakeDisplay) InjectMotion(x, y uint16)                           {}
func (d *fakeDisplay) SetClipboard(data []byte) {
	d.mu.Lock()
	d.clipboard, d.haveClip = append([]byte(nil), data...), true
	d.mu.Unlock()
}
func (d *fakeDisplay) GetClipboard() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clipboard, d.haveClip
}
func (d *fakeDisplay) Ring() {}

func (d *fakeDisplay) setDamage(r rfbproto.Region) {
	d.mu.Lock()
	d.damage = &r
	d.mu.Unlock()
}

// fakeSurface is a minimal ClientSurface.
type fakeSurface struct {
	mu        sync.Mutex
	width     uint16
	height    uint16
	updates   int
	presents  int
	clipboard []byte
	haveClip  bool
}

func (s *fakeSurface) CreateWindow(width, height uint16, flags uint32) error {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
	return nil
}
func (s *fakeSurface) Resize(width, height uint16) error {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
	return nil
}
func (s *fakeSurface) UploadRegion(r rfbproto.Region, pixels []byte, pf rfbproto.PixelFormat) error {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	return nil
}
func (s *fakeSurface) Present() error {
	s.mu.Lock()
	s.presents++
	s.mu.Unlock()
	return nil
}
func (s *fakeSurface) SetCursor(cursor ColorCursor) error { return nil }
func (s *fakeSurface) SetClipboard(data []byte) {
	s.mu.Lock()
	s.clipboard, s.haveClip = append([]byte(nil), data...), true
	s.mu.Unlock()
}
func (s *fakeSurface) GetClipboard() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clipboard, s.haveClip
}
func (s *fakeSurface) snapshot() (uint16, uint16, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height, s.updates, s.presents
}

type harness struct {
	server  *Session
	client  *Session
	display *fakeDisplay
	surface *fakeSurface
	errCh   chan error
	cancel  context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	display := newFakeDisplay(64, 48)
	surface := &fakeSurface{}

	server := NewServerSession(serverConn, display, EncodingPolicy{Blacklist: map[int32]bool{}})
	client := NewClientSession(clientConn, surface)

	secCfg := SecurityConfig{Types: []uint8{rfbproto.SecurityNone}}
	format, err := rfbproto.NewTrueColorFormat(32, 24, false, 255, 255, 255, 16, 8, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 2)
	go func() { errCh <- server.RunServer(ctx, secCfg, format, "test-desktop") }()
	go func() { errCh <- client.RunClient(ctx, "", tlslayer.Config{}, "") }()

	// Handshake completes quickly on an in-process pipe; give it a moment
	// to settle into both ready loops before the test drives messages.
	time.Sleep(50 * time.Millisecond)

	return &harness{server: server, client: client, display: display, surface: surface, errCh: errCh, cancel: cancel}
}

func TestHandshakeEstablishesSharedGeometry(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, uint16(64), h.server.width)
	require.Equal(t, uint16(48), h.server.height)

	w, hgt, _, _ := h.surface.snapshot()
	require.Equal(t, uint16(64), w)
	require.Equal(t, uint16(48), hgt)
}

func TestFramebufferUpdateFirstRequestIsFullEvenIfIncremental(t *testing.T) {
	h := newHarness(t)

	req := FramebufferUpdateRequest{Incremental: true, Region: rfbproto.Region{X: 0, Y: 0, Width: 64, Height: 48}}
	require.NoError(t, h.server.handleUpdateRequest(req))

	require.Eventually(t, func() bool {
		_, _, updates, presents := h.surface.snapshot()
		return updates > 0 && presents > 0
	}, time.Second, 5*time.Millisecond)
}

func TestFramebufferUpdateAtMostOneInFlight(t *testing.T) {
	h := newHarness(t)
	// Let the client's automatic handshake request land first so it doesn't
	// get mistaken for the one this test is trying to suppress.
	require.Eventually(t, func() bool {
		_, _, _, presents := h.surface.snapshot()
		return presents > 0
	}, time.Second, 5*time.Millisecond)

	h.display.setDamage(rfbproto.Region{X: 0, Y: 0, Width: 64, Height: 48})
	_, _, before, _ := h.surface.snapshot()

	h.server.inFlight.Store(true)
	req := FramebufferUpdateRequest{Incremental: true, Region: rfbproto.Region{X: 0, Y: 0, Width: 64, Height: 48}}
	require.NoError(t, h.server.handleUpdateRequest(req))

	// The client keeps polling in the background; none of those requests
	// (nor the manual one above) should get through while inFlight is held.
	require.Never(t, func() bool {
		_, _, after, _ := h.surface.snapshot()
		return after != before
	}, 100*time.Millisecond, 10*time.Millisecond, "a request arriving while one is in flight must be dropped, not queued")
	require.True(t, h.server.inFlight.Load())
}

func TestSetEncodingsPreferenceOrder(t *testing.T) {
	cases := []struct {
		name      string
		offered   []int32
		preferred []int32
		blacklist map[int32]bool
		want      int32
	}{
		{"empty offer falls back to raw", nil, []int32{5}, nil, rfbproto.EncodingRaw},
		{"operator preference wins when offered", []int32{5, 2}, []int32{2}, nil, 2},
		{"blacklisted preference is skipped", []int32{5, 2}, []int32{2}, map[int32]bool{2: true}, 5},
		{"first non-raw client offer when no preference matches", []int32{rfbproto.EncodingRaw, 7}, nil, nil, 7},
		{"raw survives when nothing else is acceptable", []int32{rfbproto.EncodingRaw}, nil, nil, rfbproto.EncodingRaw},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := pickEncoding(tc.offered, tc.preferred, tc.blacklist)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSetDesktopSizeZeroIsRejected(t *testing.T) {
	h := newHarness(t)

	stream := h.client.stream
	// The client also has a background poll loop writing to this same
	// stream (spec §4.3's ready loop is single-writer per connection), so
	// this raw send has to take the same lock Session's own senders do.
	h.client.writeMu.Lock()
	require.NoError(t, stream.SendByte(rfbproto.MsgSetDesktopSize))
	require.NoError(t, stream.SendBytes([]byte{0})) // padding
	require.NoError(t, stream.SendU16BE(0))          // width
	require.NoError(t, stream.SendU16BE(0))          // height
	require.NoError(t, stream.SendByte(0))           // numScreens
	require.NoError(t, stream.SendBytes([]byte{0}))  // padding
	require.NoError(t, stream.Flush())
	h.client.writeMu.Unlock()

	require.Eventually(t, func() bool {
		return h.server.width == 64 && h.server.height == 48
	}, time.Second, 5*time.Millisecond)
}

func TestClipboardShortFormRoundTrip(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.server.PushClipboard([]byte("hello from server")))

	require.Eventually(t, func() bool {
		data, ok := h.surface.GetClipboard()
		return ok && string(data) == "hello from server"
	}, time.Second, 5*time.Millisecond)
}
