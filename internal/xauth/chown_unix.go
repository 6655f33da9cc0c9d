//go:build unix

package xauth

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// chownGroup sets path's group ownership to the named Unix group,
// leaving the owning user untouched.
func chownGroup(path, group string) error {
	g, err := user.LookupGroup(group)
	if err != nil {
		return fmt.Errorf("looking up group %q: %w", group, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return fmt.Errorf("parsing gid %q: %w", g.Gid, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform stat type")
	}
	return os.Chown(path, int(stat.Uid), gid)
}
