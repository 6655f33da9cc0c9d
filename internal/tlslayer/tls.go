// Package tlslayer wraps a raw net.Conn with TLS for the RFB VeNCrypt
// sub-handshake (spec §4.2). It supports two modes: anonymous (no
// certificate pinning expected by the client) and x509 (server, and
// optionally client, certificate verification).
//
// Go's crypto/tls deliberately dropped anonymous (certificate-less)
// cipher suites that GnuTLS still offers via its ANON-ECDH/ANON-DH
// priority strings. The idiomatic Go substitute — and what this package
// does — is to hand the server an ephemeral self-signed certificate and
// have the client skip verification, which preserves "no prior trust
// required" while still getting an encrypted, forward-secret channel.
package tlslayer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mode selects how certificates are handled in the VeNCrypt TLS handshake
// (spec §4.3); the VeNCrypt sub-types offered are the same in either mode.
type Mode int

const (
	// ModeAnonymous emulates GnuTLS ANON-ECDH/ANON-DH: the server proves
	// nothing about its identity, the client accepts any certificate.
	ModeAnonymous Mode = iota
	// ModeX509 requires a real server certificate, and optionally a
	// client certificate, validated against a CA bundle.
	ModeX509
)

// Config configures either handshake side.
type Config struct {
	Mode Mode

	// Priority is carried through for logging/diagnostics only; Go's
	// crypto/tls does not take a GnuTLS-style priority string, so it is
	// not parsed into cipher suite selection.
	Priority string

	CAFile   string
	CertFile string
	KeyFile  string

	// RequireClientCert, when set with ModeX509, requests and verifies a
	// client certificate against CAFile.
RequireClientCert bool
}

var errMissingCertPair = errors.New("tlslayer: x509 mode requires both CertFile and KeyFile")

// ServerHandshake upgrades conn to TLS acting as the server side, per
// spec §4.2/§4.3 ("the layer may be switched in mid-session exactly once
// during VeNCrypt").
func ServerHandshake(conn net.Conn, cfg Config) (*tls.Conn, error) {
	logger := log.Logger.With().Str("component", "tlslayer").Str("side", "server").Logger()

	tlsCfg, err := serverConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("tlslayer: server config: %w", err)
	}

	tc := tls.Server(conn, tlsCfg)
	if err := tc.Handshake(); err != nil {
		return nil, fmt.Errorf("tlslayer: server handshake: %w", err)
	}
	logger.Debug().Str("cipher", tls.CipherSuiteName(tc.ConnectionState().CipherSuite)).Msg("tls handshake complete")
	return tc, nil
}

// ClientHandshake upgrades conn to TLS acting as the client side.
func ClientHandshake(conn net.Conn, cfg Config, serverName string) (*tls.Conn, error) {
	logger := log.Logger.With().Str("component", "tlslayer").Str("side", "client").Logger()

	tlsCfg, err := clientConfig(cfg, serverName)
	if err != nil {
		return nil, fmt.Errorf("tlslayer: client config: %w", err)
	}

	tc := tls.Client(conn, tlsCfg)
	if err := tc.Handshake(); err != nil {
		return nil, fmt.Errorf("tlslayer: client handshake: %w", err)
	}
	logger.Debug().Str("cipher", tls.CipherSuiteName(tc.ConnectionState().CipherSuite)).Msg("tls handshake complete")
	return tc, nil
}

func serverConfig(cfg Config, logger zerolog.Logger) (*tls.Config, error) {
	switch cfg.Mode {
	case ModeAnonymous:
		cert, err := ephemeralCert()
		if err != nil {
			return nil, err
		}
		logger.Debug().Msg("using ephemeral self-signed certificate for anonymous TLS")
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}, nil
	case ModeX509:
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, errMissingCertPair
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load x509 key pair: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		if cfg.RequireClientCert {
			pool, err := loadCAPool(cfg.CAFile)
			if err != nil {
				return nil, err
			}
			tlsCfg.ClientCAs = pool
			tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
		}
		return tlsCfg, nil
	default:
		return nil, fmt.Errorf("tlslayer: unknown mode %d", cfg.Mode)
	}
}

func clientConfig(cfg Config, serverName string) (*tls.Config, error) {
	switch cfg.Mode {
	case ModeAnonymous:
		return &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // intentional: emulates GnuTLS anonymous auth
			MinVersion:         tls.VersionTLS12,
		}, nil
	case ModeX509:
		tlsCfg := &tls.Config{
			ServerName: serverName,
			MinVersion: tls.VersionTLS12,
		}
		if cfg.CAFile != "" {
			pool, err := loadCAPool(cfg.CAFile)
			if err != nil {
				return nil, err
			}
			tlsCfg.RootCAs = pool
		}
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("load client x509 key pair: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
		return tlsCfg, nil
	default:
		return nil, fmt.Errorf("tlslayer: unknown mode %d", cfg.Mode)
	}
}

func loadCAPool(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, errors.New("tlslayer: CA file required")
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("tlslayer: no certificates parsed from %s", path)
	}
	return pool, nil
}

func ephemeralCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "ltsm-ephemeral"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}, nil
}
