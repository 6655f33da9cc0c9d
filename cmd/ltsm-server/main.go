// Command ltsm-server is the LTSM remote-desktop server binary (spec
// §6.2): accepts `--config`, `--background`, `--inetd`, `--port`,
// `--passwdfile`, `--authfile`, wiring the supervisor, Xauthority
// provisioning, metrics and the VNC-Auth password backend from the
// resolved config. The config's encoding and TLS sections are not
// applied: sessions run with an empty encoding policy and are offered
// only the None and VNC-Auth security types.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"net/http"

	"github.com/ltsm-go/ltsm/internal/auth"
	"github.com/ltsm-go/ltsm/internal/config"
	"github.com/ltsm-go/ltsm/internal/metrics"
	"github.com/ltsm-go/ltsm/internal/rfbengine"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/supervisor"
	"github.com/ltsm-go/ltsm/internal/xauth"
)

func main() {
	var (
		configPath string
		background bool
		inetd      bool
		port       int
		passwdFile string
		authFile   string
	)

	root := &cobra.Command{
		Use:   "ltsm-server",
		Short: "LTSM remote-desktop channel server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, background, inetd, port, passwdFile, authFile)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "YAML config file")
	root.Flags().BoolVar(&background, "background", false, "detach and run as a daemon")
	root.Flags().BoolVar(&inetd, "inetd", false, "run as an inetd-style single-connection service on stdin/stdout")
	root.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	root.Flags().StringVar(&passwdFile, "passwdfile", "", "VNC-Auth password file (overrides config)")
	root.Flags().StringVar(&authFile, "authfile", "", "Xauthority file (overrides config)")

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("ltsm-server exited with error")
	}
}

func run(configPath string, background, inetd bool, port int, passwdFile, authFile string) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := config.DefaultServerConfig()
	if configPath != "" {
		loaded, err := config.LoadServerConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = *loaded
	}
	if port != 0 {
		cfg.Port = port
	}
	if passwdFile != "" {
		cfg.PasswdFile = passwdFile
	}
	if authFile != "" {
		cfg.AuthFile = authFile
	}
	if background {
		log.Warn().Msg("--background requested; daemonizing is left to the process supervisor (systemd/init), not forked in-process")
	}
	if inetd {
		log.Warn().Msg("--inetd mode requested but not yet wired to stdin/stdout framing")
	}

	authBackend, err := auth.NewPasswordFileBackend(cfg.PasswdFile)
	if err != nil {
		return fmt.Errorf("loading password file: %w", err)
	}
	defer authBackend.Close()

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)
	go serveMetrics(cfg.Metrics.Listen)

	provisioner := xauth.NewProvisioner(cfg.Xauthority.BaseDir, cfg.Xauthority.Group)

	format, err := rfbproto.NewTrueColorFormat(32, 24, false, 255, 255, 255, 16, 8, 0)
	if err != nil {
		return err
	}

	sv := supervisor.New(supervisor.Config{
		ListenAddr:   fmt.Sprintf(":%d", cfg.Port),
		Security:     rfbengine.SecurityConfig{Types: []uint8{rfbproto.SecurityNone, rfbproto.SecurityVNC}, Auth: authBackend},
		SharedFormat: format,
		DesktopName:  "LTSM",
		Xauth:        provisioner,
		Metrics:      reg,
		DisplayFactory: func(sessionID string, xa *xauth.Entry) (rfbengine.DisplayAdapter, error) {
			return nil, fmt.Errorf("no display adapter wired for session %s: this binary needs a real X-compatible display backend plugged in (spec §E Non-goals)", sessionID)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return sv.Serve(ctx)
}

func serveMetrics(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Warn().Err(err).Msg("metrics listener stopped")
	}
}
