package main

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ltsm-go/ltsm/internal/rfbengine"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

// headlessSurface is the ClientSurface this binary ships with when no
// real windowing backend is linked in (spec §E Non-goals: "Client
// Surface ... remain external collaborator interfaces only"). It accepts
// every server update and logs what would otherwise be drawn, which is
// enough to drive the protocol end to end for headless/scripted use and
// as a seam a real GUI front-end plugs into.
type headlessSurface struct {
	mu            sync.Mutex
	width, height uint16
	clipboard     []byte
	hasClipboard  bool
}

func newHeadlessSurface() *headlessSurface {
	return &headlessSurface{}
}

func (s *headlessSurface) CreateWindow(width, height uint16, flags uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
	log.Info().Uint16("width", width).Uint16("height", height).Msg("remote desktop window created")
	return nil
}

func (s *headlessSurface) Resize(width, height uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
	log.Info().Uint16("width", width).Uint16("height", height).Msg("remote desktop resized")
	return nil
}

func (s *headlessSurface) UploadRegion(r rfbproto.Region, pixels []byte, pf rfbproto.PixelFormat) error {
	return nil
}

func (s *headlessSurface) Present() error { return nil }

func (s *headlessSurface) SetCursor(cursor rfbengine.ColorCursor) error { return nil }

func (s *headlessSurface) SetClipboard(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clipboard = append([]byte(nil), data...)
	s.hasClipboard = true
}

func (s *headlessSurface) GetClipboard() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clipboard, s.hasClipboard
}
