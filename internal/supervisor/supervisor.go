// Package supervisor owns the listening socket and session table (spec
// §4.8): accept loop, per-connection RFB bootstrap, Xauthority
// provisioning, metrics, and signal-driven graceful drain.
package supervisor

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ltsm-go/ltsm/internal/metrics"
	"github.com/ltsm-go/ltsm/internal/rfbengine"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/xauth"
)

// DisplayFactory builds the server-side collaborator for one freshly
// accepted session. The supervisor doesn't know how to talk to a real X
// server (spec §E Non-goals); this is the seam a real deployment plugs
// into.
type DisplayFactory func(sessionID string, xa *xauth.Entry) (rfbengine.DisplayAdapter, error)

// Config bundles everything a Supervisor needs to accept and bootstrap
// sessions.
type Config struct {
	ListenAddr     string
	Security       rfbengine.SecurityConfig
	SharedFormat   rfbproto.PixelFormat
	DesktopName    string
	EncodingPolicy rfbengine.EncodingPolicy
	DisplayFactory DisplayFactory
	Xauth          *xauth.Provisioner // nil disables Xauthority provisioning
	Metrics        *metrics.Registry
}

// Supervisor is the top-level accept loop and session table (spec §4.8).
// One process; one session goroutine per accepted connection isolates
// sessions from each other without the cost of a process per connection.
type Supervisor struct {
	cfg      Config
	log      zerolog.Logger
	listener net.Listener

	mu       sync.Mutex
	sessions map[string]*rfbengine.Session
	wg       sync.WaitGroup
}

// New builds a Supervisor bound to cfg. Call Serve to start accepting.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		log:      log.Logger.With().Str("component", "supervisor").Logger(),
		sessions: make(map[string]*rfbengine.Session),
	}
}

// Serve listens on cfg.ListenAddr and accepts connections until ctx is
// cancelled, at which point it stops accepting and waits for every
// in-flight session to drain (spec §4.8: "orderly shutdown ... each
// session drains its in-flight update and releases its PC/SC transaction
// lock").
func (sv *Supervisor) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", sv.cfg.ListenAddr)
	if err != nil {
		return err
	}
	sv.listener = ln
	sv.log.Info().Str("addr", sv.cfg.ListenAddr).Msg("listening")

	go func() {
		<-ctx.Done()
		sv.log.Info().Msg("shutdown signal received, closing listener")
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				sv.wg.Wait()
				return nil
			default:
				return err
			}
		}
		sv.wg.Add(1)
		go sv.handleConn(ctx, conn)
	}
}

// SessionCount returns the number of sessions currently in the table,
// for health/metrics endpoints.
func (sv *Supervisor) SessionCount() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return len(sv.sessions)
}

func (sv *Supervisor) handleConn(ctx context.Context, conn net.Conn) {
	defer sv.wg.Done()
	defer conn.Close()

	sessionID := uuid.NewString()
	sessionLog := sv.log.With().Str("session", sessionID).Str("remote", conn.RemoteAddr().String()).Logger()

	var xa *xauth.Entry
	if sv.cfg.Xauth != nil {
		entry, err := sv.cfg.Xauth.Provision(sessionID, ":0")
		if err != nil {
			sessionLog.Error().Err(err).Msg("xauthority provisioning failed")
			return
		}
		xa = entry
	}

	display, err := sv.cfg.DisplayFactory(sessionID, xa)
	if err != nil {
		sessionLog.Error().Err(err).Msg("building display adapter failed")
		return
	}

	sess := rfbengine.NewServerSession(conn, display, sv.cfg.EncodingPolicy)
	sess.ID = sessionID

	sv.mu.Lock()
	sv.sessions[sessionID] = sess
	sv.mu.Unlock()
	if sv.cfg.Metrics != nil {
		sv.cfg.Metrics.SessionStarted()
	}

	defer func() {
		sv.mu.Lock()
		delete(sv.sessions, sessionID)
		sv.mu.Unlock()
		if sv.cfg.Metrics != nil {
			sv.cfg.Metrics.SessionEnded()
		}
	}()

	if err := sess.RunServer(ctx, sv.cfg.Security, sv.cfg.SharedFormat, sv.cfg.DesktopName); err != nil {
		sessionLog.Info().Err(err).Msg("session ended")
	}
}
