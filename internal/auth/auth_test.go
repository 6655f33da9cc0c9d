package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPasswordFileBackendAuthenticatesAnyLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "passwd")
	require.NoError(t, os.WriteFile(path, []byte("secret1\nsecret2\n"), 0600))

	b, err := NewPasswordFileBackend(path)
	require.NoError(t, err)
	defer b.Close()

	require.True(t, b.Authenticate("secret1"))
	require.True(t, b.Authenticate("secret2"))
	require.False(t, b.Authenticate("wrong"))
	require.ElementsMatch(t, []string{"secret1", "secret2"}, b.Candidates())
}

func TestPasswordFileBackendReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "passwd")
	require.NoError(t, os.WriteFile(path, []byte("original\n"), 0600))

	b, err := NewPasswordFileBackend(path)
	require.NoError(t, err)
	defer b.Close()
	require.True(t, b.Authenticate("original"))

	require.NoError(t, os.WriteFile(path, []byte("rotated\n"), 0600))
	require.Eventually(t, func() bool {
		return b.Authenticate("rotated")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLDAPBackendDeniesEverything(t *testing.T) {
	b := &LDAPBackend{ServerURL: "ldaps://example.invalid"}
	require.False(t, b.Authenticate("anything"))
	require.Empty(t, b.Candidates())
}
