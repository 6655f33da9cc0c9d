package rfbengine

import (
	"github.com/ltsm-go/ltsm/internal/ltsmerr"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/wire"
)

// negotiateVersionServer sends the server's banner and parses whatever the
// client replies with, recognizing 003.003/003.007/003.008 (spec §4.3).
func negotiateVersionServer(s *wire.Stream) (string, error) {
	if err := s.SendBytes([]byte(rfbproto.Version003008)); err != nil {
		return "", err
	}
	if err := s.Flush(); err != nil {
		return "", err
	}
	banner, err := s.RecvBytes(12)
	if err != nil {
		return "", err
	}
	return parseVersionBanner(banner)
}

// negotiateVersionClient reads the server's banner and echoes back the
// highest version it understands that doesn't exceed the server's.
func negotiateVersionClient(s *wire.Stream) (string, error) {
	banner, err := s.RecvBytes(12)
	if err != nil {
		return "", err
	}
	version, err := parseVersionBanner(banner)
	if err != nil {
		return "", err
	}
	if err := s.SendBytes(banner); err != nil {
		return "", err
	}
	return version, s.Flush()
}

func parseVersionBanner(b []byte) (string, error) {
	s := string(b)
	switch s {
	case rfbproto.Version003003, rfbproto.Version003007, rfbproto.Version003008:
		return s, nil
	default:
		return "", ltsmerr.NewProtocolError("unrecognized RFB version banner %q", s)
	}
}

// serverInit is the server's framebuffer geometry/format/name, sent once
// security negotiation completes (spec §4.3).
type serverInit struct {
	Width, Height uint16
	Format        rfbproto.PixelFormat
	Name          string
}

func sendServerInit(s *wire.Stream, init serverInit) error {
	if err := s.SendU16BE(init.Width); err != nil {
		return err
	}
	if err := s.SendU16BE(init.Height); err != nil {
		return err
	}
	if err := writePixelFormat(s, init.Format); err != nil {
		return err
	}
	if err := s.SendU32BE(uint32(len(init.Name))); err != nil {
		return err
	}
	if err := s.SendBytes([]byte(init.Name)); err != nil {
		return err
	}
	return s.Flush()
}

func recvServerInit(s *wire.Stream) (serverInit, error) {
	var init serverInit
	var err error
	if init.Width, err = s.RecvU16BE(); err != nil {
		return init, err
	}
	if init.Height, err = s.RecvU16BE(); err != nil {
		return init, err
	}
	if init.Format, err = readPixelFormat(s); err != nil {
		return init, err
	}
	nameLen, err := s.RecvU32BE()
	if err != nil {
		return init, err
	}
	nameBytes, err := s.RecvBytes(int(nameLen))
	if err != nil {
		return init, err
	}
	init.Name = string(nameBytes)
	return init, nil
}

func writePixelFormat(s *wire.Stream, pf rfbproto.PixelFormat) error {
	if err := s.SendByte(pf.BitsPerPixel); err != nil {
		return err
	}
	if err := s.SendByte(pf.Depth); err != nil {
		return err
	}
	if err := s.SendByte(boolByte(pf.BigEndian)); err != nil {
		return err
	}
	if err := s.SendByte(boolByte(pf.TrueColor)); err != nil {
		return err
	}
	if err := s.SendU16BE(pf.RedMax); err != nil {
		return err
	}
	if err := s.SendU16BE(pf.GreenMax); err != nil {
		return err
	}
	if err := s.SendU16BE(pf.BlueMax); err != nil {
		return err
	}
	if err := s.SendByte(pf.RedShift); err != nil {
		return err
	}
	if err := s.SendByte(pf.GreenShift); err != nil {
		return err
	}
	if err := s.SendByte(pf.BlueShift); err != nil {
		return err
	}
	return s.SendBytes(make([]byte, 3)) // padding
}

func readPixelFormat(s *wire.Stream) (rfbproto.PixelFormat, error) {
	var pf rfbproto.PixelFormat
	var err error
	if pf.BitsPerPixel, err = s.RecvByte(); err != nil {
		return pf, err
	}
	if pf.Depth, err = s.RecvByte(); err != nil {
		return pf, err
	}
	be, err := s.RecvByte()
	if err != nil {
		return pf, err
	}
	pf.BigEndian = be != 0
	tc, err := s.RecvByte()
	if err != nil {
		return pf, err
	}
	pf.TrueColor = tc != 0
	if pf.RedMax, err = s.RecvU16BE(); err != nil {
		return pf, err
	}
	if pf.GreenMax, err = s.RecvU16BE(); err != nil {
		return pf, err
	}
	if pf.BlueMax, err = s.RecvU16BE(); err != nil {
		return pf, err
	}
	if pf.RedShift, err = s.RecvByte(); err != nil {
		return pf, err
	}
	if pf.GreenShift, err = s.RecvByte(); err != nil {
		return pf, err
	}
	if pf.BlueShift, err = s.RecvByte(); err != nil {
		return pf, err
	}
	if _, err = s.RecvBytes(3); err != nil {
		return pf, err
	}
	return pf, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
