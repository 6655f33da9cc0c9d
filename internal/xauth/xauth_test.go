package xauth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProvisionWritesModeAndCookie(t *testing.T) {
	dir := t.TempDir()
	p := NewProvisioner(dir, "auth")

	entry, err := p.Provision("session-1", ":10")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "session-1", "Xauthority"), entry.FilePath)
	require.Len(t, entry.Cookie, cookieSize)

	info, err := os.Stat(entry.FilePath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0440), info.Mode().Perm())

	data, err := os.ReadFile(entry.FilePath)
	require.NoError(t, err)
	require.Contains(t, string(data), "MIT-MAGIC-COOKIE-1")
	require.Contains(t, string(data), ":10")
}

func TestProvisionGeneratesDistinctCookiesPerCall(t *testing.T) {
	dir := t.TempDir()
	p := NewProvisioner(dir, "auth")

	a, err := p.Provision("session-a", ":10")
	require.NoError(t, err)
	b, err := p.Provision("session-b", ":11")
	require.NoError(t, err)

	require.NotEqual(t, a.Cookie, b.Cookie)
}
