//go:build !unix

package xauth

import "fmt"

// chownGroup always fails on non-Unix platforms, which Provision logs as
// a warning; Xauthority group permissions only matter where a Unix X
// server reads the file.
func chownGroup(path, group string) error {
	return fmt.Errorf("xauth: group ownership unsupported on this platform")
}
