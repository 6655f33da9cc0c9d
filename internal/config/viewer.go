// Package config implements the two configuration surfaces from spec
// §6.2/§6.4: the viewer's hand-rolled `--long-arg value` file format
// layered under CLI overrides, and the server's viper-backed YAML file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Viewer holds every flag the viewer binary accepts (spec §6.2), after
// merging config files and CLI overrides.
type Viewer struct {
	Host         string
	Port         int
	Username     string
	Password     string
	PasswordFile string
	Fullscreen   bool
	Geometry     string
	Fixed        bool
	Encoding     string
	NoTLS        bool
	TLSPriority  string
	TLSCAFile    string
	TLSCertFile  string
	TLSKeyFile   string
	NoLTSM       bool
	Loop         bool
	Seamless     string
	ShareFolder  string
	Printer      string
	Sane         string
	Smartcard    bool
	Audio        string
	PKCS11Auth   string
	Debug        string
	Trace        bool
	Syslog       string
}

// viewerFieldSetters maps each `--long-arg` name (as found in a config
// file line or passed to ApplyOverride) to a setter closure over a
// *Viewer. The viewer binary's own CLI flags are declared separately with
// pflag and do not go through this table.
func viewerFieldSetters(v *Viewer) map[string]func(value string) {
	return map[string]func(value string){
		"host":          func(s string) { v.Host = s },
		"port":          func(s string) { fmt.Sscanf(s, "%d", &v.Port) },
		"username":      func(s string) { v.Username = s },
		"password":      func(s string) { v.Password = s },
		"password-file": func(s string) { v.PasswordFile = s },
		"fullscreen":    func(s string) { v.Fullscreen = true },
		"geometry":      func(s string) { v.Geometry = s },
		"fixed":         func(s string) { v.Fixed = true },
		"encoding":      func(s string) { v.Encoding = s },
		"notls":         func(s string) { v.NoTLS = true },
		"tls-priority":  func(s string) { v.TLSPriority = s },
		"tls-ca-file":   func(s string) { v.TLSCAFile = s },
		"tls-cert-file": func(s string) { v.TLSCertFile = s },
		"tls-key-file":  func(s string) { v.TLSKeyFile = s },
		"noltsm":        func(s string) { v.NoLTSM = true },
		"loop":          func(s string) { v.Loop = true },
		"seamless":      func(s string) { v.Seamless = s },
		"share-folder":  func(s string) { v.ShareFolder = s },
		"printer":       func(s string) { v.Printer = s },
		"sane":          func(s string) { v.Sane = s },
		"smartcard":     func(s string) { v.Smartcard = true },
		"audio":         func(s string) { v.Audio = s },
		"pkcs11-auth":   func(s string) { v.PKCS11Auth = s },
		"debug":         func(s string) { v.Debug = s },
		"trace":         func(s string) { v.Trace = true },
		"syslog":        func(s string) { v.Syslog = s },
	}
}

// DefaultConfigPaths returns the viewer config file search path in the
// order spec §6.4 requires them read: system-wide first, then per-user,
// each later file's values overriding the earlier.
func DefaultConfigPaths() []string {
	paths := []string{"/etc/ltsm/client.cfg"}
	if runtime.GOOS == "windows" {
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			paths = append(paths, filepath.Join(v, "ltsm", "client.cfg"))
		}
		return paths
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ltsm", "client.cfg"))
	}
	return paths
}

// LoadViewerConfig reads every existing file in paths, in order, applying
// each `--long-arg [value]` line found. Missing files are skipped, not an
// error, since neither config file is required to exist.
func LoadViewerConfig(paths []string) (*Viewer, error) {
	v := &Viewer{}
	setters := viewerFieldSetters(v)
	for _, path := range paths {
		if err := applyConfigFile(path, setters); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// ApplyOverride applies a single `--long-arg value` pair through the same
// table config files use, so a file line and an override are
// indistinguishable once applied (spec §6.4: "command-line overrides").
// It reports false for a name the table does not know.
func (v *Viewer) ApplyOverride(name, value string) bool {
	setters := viewerFieldSetters(v)
	setter, ok := setters[strings.TrimPrefix(name, "--")]
	if !ok {
		return false
	}
	setter(value)
	return true
}

// applyConfigFile scans one `--long-arg [value]` per line config file.
// Blank lines and lines starting with `#` are ignored. Unrecognized
// arguments are ignored rather than rejected: older config files must
// keep working against newer binaries that dropped a flag.
func applyConfigFile(path string, setters map[string]func(string)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, _ := strings.Cut(line, " ")
		name = strings.TrimPrefix(strings.TrimSpace(name), "--")
		value = strings.TrimSpace(value)
		if setter, ok := setters[name]; ok {
			setter(value)
		}
	}
	return scanner.Err()
}
