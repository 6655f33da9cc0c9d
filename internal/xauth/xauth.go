// Package xauth provisions per-session X11 Xauthority magic-cookie files
// (SPEC_FULL §D.1, grounded on original_source's ltsm_service.cpp session
// bootstrap).
package xauth

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// cookieSize is the standard X11 MIT-MAGIC-COOKIE-1 length in bytes.
const cookieSize = 16

// familyLocal is the Xauthority "family" tag for a Unix-domain display
// (Xlib's FamilyLocal).
const familyLocal = 256

// Entry is one provisioned Xauthority record: the display it authorizes,
// the path of the file it was written to, and its cookie.
type Entry struct {
	Display  string
	FilePath string
	Cookie   []byte
}

// Provisioner generates Xauthority files for freshly accepted sessions,
// one file per session directory, mode 0440 owned by the invoking process
// with group `auth` (spec §6.4).
type Provisioner struct {
	baseDir string
	group   string
	log     zerolog.Logger
}

// NewProvisioner builds a Provisioner that writes session Xauthority
// files under baseDir (e.g. /run/ltsm/sessions/<id>/Xauthority). group is
// the Unix group name the file's gid is set to ("auth" per spec).
func NewProvisioner(baseDir, group string) *Provisioner {
	return &Provisioner{
		baseDir: baseDir,
		group:   group,
		log:     log.Logger.With().Str("component", "xauth").Logger(),
	}
}

// Provision generates a fresh magic cookie for display (e.g. ":10") and
// writes it as an Xauthority file under sessionID's directory, returning
// the Entry the supervisor exports as XAUTHORITY/DISPLAY.
func (p *Provisioner) Provision(sessionID, display string) (*Entry, error) {
	cookie := make([]byte, cookieSize)
	if _, err := rand.Read(cookie); err != nil {
		return nil, fmt.Errorf("xauth: generating cookie: %w", err)
	}

	dir := filepath.Join(p.baseDir, sessionID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("xauth: creating session dir: %w", err)
	}
	path := filepath.Join(dir, "Xauthority")

	record := encodeRecord(display, cookie)
	if err := os.WriteFile(path, record, 0440); err != nil {
		return nil, fmt.Errorf("xauth: writing %s: %w", path, err)
	}
	if err := chownGroup(path, p.group); err != nil {
		// Non-fatal: the file still protects the cookie via 0440 for the
		// owning user; group-readability for the X server is best-effort
		// when the host has no matching group.
		p.log.Warn().Err(err).Str("group", p.group).Msg("could not set xauthority group ownership")
	}

	return &Entry{Display: display, FilePath: path, Cookie: cookie}, nil
}

// encodeRecord writes a single-entry Xauthority file: the standard binary
// format is a sequence of records of
//
//	u16 family, u16 addrLen, addr, u16 displayLen, display,
//	u16 nameLen, name, u16 dataLen, data
//
// all big-endian, with name fixed to "MIT-MAGIC-COOKIE-1".
func encodeRecord(display string, cookie []byte) []byte {
	const authName = "MIT-MAGIC-COOKIE-1"
	addr := []byte("localhost")

	buf := make([]byte, 0, 64+len(cookie))
	buf = appendU16(buf, familyLocal)
	buf = appendU16(buf, len(addr))
	buf = append(buf, addr...)
	buf = appendU16(buf, len(display))
	buf = append(buf, display...)
	buf = appendU16(buf, len(authName))
	buf = append(buf, authName...)
	buf = appendU16(buf, len(cookie))
	buf = append(buf, cookie...)
	return buf
}

func appendU16(buf []byte, n int) []byte {
	return append(buf, byte(n>>8), byte(n))
}
