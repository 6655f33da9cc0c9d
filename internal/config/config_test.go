package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadViewerConfigMergesFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	systemCfg := filepath.Join(dir, "system.cfg")
	userCfg := filepath.Join(dir, "user.cfg")

	require.NoError(t, os.WriteFile(systemCfg, []byte("--host system-host\n--port 5900\n"), 0644))
	require.NoError(t, os.WriteFile(userCfg, []byte("# comment\n--host user-host\n--fullscreen\n"), 0644))

	v, err := LoadViewerConfig([]string{systemCfg, userCfg})
	require.NoError(t, err)
	require.Equal(t, "user-host", v.Host, "later file in the search path overrides the earlier one")
	require.Equal(t, 5900, v.Port)
	require.True(t, v.Fullscreen)
}

func TestLoadViewerConfigSkipsMissingFiles(t *testing.T) {
	v, err := LoadViewerConfig([]string{"/nonexistent/path/client.cfg"})
	require.NoError(t, err)
	require.Equal(t, "", v.Host)
}

func TestApplyOverrideWinsOverConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "client.cfg")
	require.NoError(t, os.WriteFile(cfgPath, []byte("--host file-host\n"), 0644))

	v, err := LoadViewerConfig([]string{cfgPath})
	require.NoError(t, err)
	require.True(t, v.ApplyOverride("--host", "cli-host"))
	require.Equal(t, "cli-host", v.Host)
}

func TestApplyOverrideUnknownFlagReturnsFalse(t *testing.T) {
	v := &Viewer{}
	require.False(t, v.ApplyOverride("--not-a-real-flag", "x"))
}

func TestLoadServerConfigAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 5901\nencoding:\n  workers: 4\n"), 0644))

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	require.Equal(t, 5901, cfg.Port)
	require.Equal(t, 4, cfg.Encoding.Workers)
	require.Equal(t, "/etc/ltsm/passwd", cfg.PasswdFile, "unset fields keep their default")
}
