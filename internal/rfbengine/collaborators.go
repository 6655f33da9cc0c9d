package rfbengine

import "github.com/ltsm-go/ltsm/internal/rfbproto"

// DisplayAdapter is the server-side collaborator that owns the real
// framebuffer (spec §6.5). It is implemented by whatever talks to the
// on-host X-compatible display server; the engine only calls through this
// interface.
type DisplayAdapter interface {
	Size() (width, height uint16)
	PixelFormat() rfbproto.PixelFormat
	Region() rfbproto.Region

	// PollDamage returns the next pending damage region, if any, without
	// blocking.
	PollDamage() (rfbproto.Region, bool)
	// PollResize returns a pending local resolution change, if any.
	PollResize() (width, height uint16, ok bool)
	// RequestResize asks the real display to change resolution, in
	// response to the client's SetDesktopSize (spec §4.3). It returns an
	// error if the requested geometry is invalid or unsupported.
	RequestResize(width, height uint16) error

	CopyRegion(r rfbproto.Region, out []byte, pitch int) error

	InjectKey(keysym uint32, pressed bool)
	InjectButton(button int, x, y uint16, pressed bool)
	InjectMotion(x, y uint16)

	SetClipboard(data []byte)
	GetClipboard() ([]byte, bool)

	// Ring requests attention (e.g. bell forwarding prerequisite).
	Ring()
}

// ClientSurface is the client-side collaborator that owns the viewer
// window (spec §6.5).
type ClientSurface interface {
	CreateWindow(width, height uint16, flags uint32) error
	Resize(width, height uint16) error
	UploadRegion(r rfbproto.Region, pixels []byte, pf rfbproto.PixelFormat) error
	Present() error
	SetCursor(cursor ColorCursor) error

	SetClipboard(data []byte)
	GetClipboard() ([]byte, bool)
}

// ColorCursor is the client-rendered pointer shape (spec §3).
type ColorCursor struct {
	HotspotX, HotspotY uint16
	Width, Height      uint16
	Pixels             []byte // in client PixelFormat
	Mask               []byte // optional bitmask, nil if absent
}
