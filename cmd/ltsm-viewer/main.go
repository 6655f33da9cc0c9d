// Command ltsm-viewer is the LTSM remote-desktop viewer binary (spec
// §6.2): resolves `--long-arg` config files then CLI overrides, prompts
// for a password when none was supplied, and drives the client-side RFB
// session against a pluggable ClientSurface (the real windowing backend
// is an external collaborator per spec §E Non-goals).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ltsm-go/ltsm/internal/config"
	"github.com/ltsm-go/ltsm/internal/rfbengine"
	"github.com/ltsm-go/ltsm/internal/tlslayer"
)

func main() {
	v, err := config.LoadViewerConfig(config.DefaultConfigPaths())
	if err != nil {
		log.Fatal().Err(err).Msg("loading viewer config files")
	}

	root := &cobra.Command{
		Use:   "ltsm-viewer HOST",
		Short: "LTSM remote-desktop viewer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Host = args[0]
			}
			return run(v)
		},
	}
	bindViewerFlags(root, v)

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("ltsm-viewer exited with error")
		os.Exit(-1)
	}
}

// bindViewerFlags declares the viewer's flags and, on parse, overwrites
// whatever the config files set. The per-encoding shortcut flags
// (--qoi, --lz4, --tjpg, --h264, --av1, --vp8), --load and --save are not
// declared. cobra/pflag apply in
// Execute() after RunE's closures capture v by pointer, so flags that
// weren't explicitly passed leave the config-file value untouched.
func bindViewerFlags(root *cobra.Command, v *config.Viewer) {
	f := root.Flags()
	f.StringVar(&v.Host, "host", v.Host, "server hostname or address")
	f.IntVar(&v.Port, "port", firstNonZero(v.Port, 5900), "server port")
	f.StringVar(&v.Username, "username", v.Username, "username (unused by VNC-Auth, carried for future PAM/LDAP auth)")
	f.StringVar(&v.Password, "password", v.Password, "password (prefer --password-file or LTSM_PASSWORD)")
	f.StringVar(&v.PasswordFile, "password-file", v.PasswordFile, "file containing the password")
	f.BoolVar(&v.Fullscreen, "fullscreen", v.Fullscreen, "start in fullscreen")
	f.StringVar(&v.Geometry, "geometry", v.Geometry, "WxH requested geometry")
	f.BoolVar(&v.Fixed, "fixed", v.Fixed, "disallow server-initiated resize")
	f.StringVar(&v.Encoding, "encoding", v.Encoding, "preferred encoding name[,opts]")
	f.BoolVar(&v.NoTLS, "notls", v.NoTLS, "disable VeNCrypt/TLS negotiation")
	f.StringVar(&v.TLSPriority, "tls-priority", v.TLSPriority, "GnuTLS-style cipher priority string")
	f.StringVar(&v.TLSCAFile, "tls-ca-file", v.TLSCAFile, "CA bundle for server certificate verification")
	f.StringVar(&v.TLSCertFile, "tls-cert-file", v.TLSCertFile, "client certificate for mutual TLS")
	f.StringVar(&v.TLSKeyFile, "tls-key-file", v.TLSKeyFile, "client private key for mutual TLS")
	f.BoolVar(&v.NoLTSM, "noltsm", v.NoLTSM, "disable LTSM channel extensions")
	f.BoolVar(&v.Loop, "loop", v.Loop, "reconnect in a loop on disconnect")
	f.StringVar(&v.Seamless, "seamless", v.Seamless, "seamless window integration path")
	f.StringVar(&v.ShareFolder, "share-folder", v.ShareFolder, "directory to share over the file channel")
	f.StringVar(&v.Printer, "printer", v.Printer, "enable printer redirection [url]")
	f.StringVar(&v.Sane, "sane", v.Sane, "enable SANE scanner redirection [url]")
	f.BoolVar(&v.Smartcard, "smartcard", v.Smartcard, "enable PC/SC smart-card redirection")
	f.StringVar(&v.Audio, "audio", v.Audio, "enable audio redirection (pcm|opus)")
	f.StringVar(&v.PKCS11Auth, "pkcs11-auth", v.PKCS11Auth, "use a PKCS#11 token for authentication [lib]")
	f.StringVar(&v.Debug, "debug", v.Debug, "enable debug logging for the named subsystems")
	f.BoolVar(&v.Trace, "trace", v.Trace, "enable trace-level logging")
	f.StringVar(&v.Syslog, "syslog", v.Syslog, "log to syslog or the given file")
}

func firstNonZero(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func run(v *config.Viewer) error {
	if v.Trace {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	password, err := resolvePassword(v)
	if err != nil {
		return err
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", v.Host, v.Port))
	if err != nil {
		return fmt.Errorf("connecting to %s:%d: %w", v.Host, v.Port, err)
	}
	defer conn.Close()

	surface := newHeadlessSurface()
	sess := rfbengine.NewClientSession(conn, surface)
	// RunClient sends SetPixelFormat, SetEncodings and periodic
	// FramebufferUpdateRequests on its own. A
	// GUI front end wires its native keyboard/pointer/clipboard events to
	// sess.SendKeyEvent/SendPointerEvent/SendClipboard instead of leaving
	// them idle the way this headless surface does.

	tlsCfg := tlslayer.Config{Priority: v.TLSPriority, CAFile: v.TLSCAFile, CertFile: v.TLSCertFile, KeyFile: v.TLSKeyFile}
	if v.TLSCertFile != "" {
		tlsCfg.Mode = tlslayer.ModeX509
	}
	if v.NoTLS {
		log.Warn().Msg("--notls requested; the client still accepts whichever security type the server offers (VeNCrypt preferred) since RFB security negotiation is server-driven")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return sess.RunClient(ctx, password, tlsCfg, v.Host)
}

// resolvePassword follows spec §6.2/§6.3's precedence: --password, then
// --password-file, then LTSM_PASSWORD, then an interactive no-echo
// prompt via golang.org/x/term.
func resolvePassword(v *config.Viewer) (string, error) {
	if v.Password != "" {
		return v.Password, nil
	}
	if v.PasswordFile != "" {
		data, err := os.ReadFile(v.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("reading password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	if envPass := os.Getenv("LTSM_PASSWORD"); envPass != "" {
		return envPass, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password interactively: %w", err)
	}
	return string(raw), nil
}
