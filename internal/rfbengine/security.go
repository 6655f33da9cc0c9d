package rfbengine

import (
	"bytes"
	"crypto/des"
	"crypto/rand"

	"github.com/ltsm-go/ltsm/internal/auth"
	"github.com/ltsm-go/ltsm/internal/ltsmerr"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/tlslayer"
	"github.com/ltsm-go/ltsm/internal/wire"
)

// SecurityConfig controls which security types a server offers and what
// they need to succeed (spec §4.3).
type SecurityConfig struct {
	Types []uint8
	// Auth backs VNC-Auth (SecurityVNC and VeNCrypt's VeNCryptTLSVnc);
	// nil is only valid when Types omits both.
	Auth auth.SecurityBackend
	TLS  tlslayer.Config
}

// negotiateSecurityServer runs the security phase from the server side,
// returning the stream to use afterwards (unchanged, or the TLS-wrapped
// stream once VeNCrypt has spliced TLS in).
func negotiateSecurityServer(s *wire.Stream, cfg SecurityConfig) (*wire.Stream, error) {
	if err := s.SendByte(byte(len(cfg.Types))); err != nil {
		return nil, err
	}
	for _, t := range cfg.Types {
		if err := s.SendByte(t); err != nil {
			return nil, err
		}
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}

	chosen, err := s.RecvByte()
	if err != nil {
		return nil, err
	}

	switch chosen {
	case rfbproto.SecurityNone:
		return s, sendSecurityResult(s, true, "")
	case rfbproto.SecurityVNC:
		ok, err := serverVNCAuth(s, cfg.Auth)
		if err != nil {
			return nil, err
		}
		if !ok {
			_ = sendSecurityResult(s, false, "authentication failed")
			return nil, &ltsmerr.AuthFailed{Reason: "vnc password mismatch"}
		}
		return s, sendSecurityResult(s, true, "")
	case rfbproto.SecurityVeNCrypt:
		return negotiateVeNCryptServer(s, cfg)
	default:
		return nil, ltsmerr.NewProtocolError("client chose unsupported security type %d", chosen)
	}
}

// negotiateSecurityClient runs the security phase from the client side.
func negotiateSecurityClient(s *wire.Stream, password string, tlsCfg tlslayer.Config, serverName string) (*wire.Stream, error) {
	count, err := s.RecvByte()
	if err != nil {
		return nil, err
	}
	offered, err := s.RecvBytes(int(count))
	if err != nil {
		return nil, err
	}

	chosen := pickSecurityType(offered)
	if chosen == rfbproto.SecurityInvalid {
		return nil, ltsmerr.NewProtocolError("no acceptable security type offered: %v", offered)
	}
	if err := s.SendByte(chosen); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}

	switch chosen {
	case rfbproto.SecurityNone:
		return s, recvSecurityResult(s)
	case rfbproto.SecurityVNC:
		if err := clientVNCAuth(s, password); err != nil {
			return nil, err
		}
		return s, recvSecurityResult(s)
	case rfbproto.SecurityVeNCrypt:
		return negotiateVeNCryptClient(s, password, tlsCfg, serverName)
	default:
		return nil, ltsmerr.NewProtocolError("unreachable security type %d", chosen)
	}
}

func pickSecurityType(offered []byte) uint8 {
	for _, preferred := range []uint8{rfbproto.SecurityVeNCrypt, rfbproto.SecurityVNC, rfbproto.SecurityNone} {
		for _, o := range offered {
			if o == preferred {
				return preferred
			}
		}
	}
	return rfbproto.SecurityInvalid
}

func sendSecurityResult(s *wire.Stream, ok bool, message string) error {
	result := rfbproto.SecurityResultOK
	if !ok {
		result = rfbproto.SecurityResultFailed
	}
	if err := s.SendU32BE(result); err != nil {
		return err
	}
	if !ok {
		if err := s.SendU32BE(uint32(len(message))); err != nil {
			return err
		}
		if err := s.SendBytes([]byte(message)); err != nil {
			return err
		}
	}
	return s.Flush()
}

func recvSecurityResult(s *wire.Stream) error {
	result, err := s.RecvU32BE()
	if err != nil {
		return err
	}
	if result == rfbproto.SecurityResultOK {
		return nil
	}
	msgLen, err := s.RecvU32BE()
	if err != nil {
		return err
	}
	msg, err := s.RecvBytes(int(msgLen))
	if err != nil {
		return err
	}
	return &ltsmerr.AuthFailed{Reason: string(msg)}
}

// serverVNCAuth runs the DES challenge-response and hands the candidate
// plaintext to backend, brute-forcing the 16-byte response against every
// password the backend is willing to name (spec §4.3). The DES challenge
// is keyed per-candidate since VNC-Auth has no way to ask the backend
// "is this the right password" without first knowing a plaintext to hash.
func serverVNCAuth(s *wire.Stream, backend auth.SecurityBackend) (bool, error) {
	challenge := make([]byte, 16)
	if _, err := rand.Read(challenge); err != nil {
		return false, err
	}
	if err := s.SendBytes(challenge); err != nil {
		return false, err
	}
	if err := s.Flush(); err != nil {
		return false, err
	}
	response, err := s.RecvBytes(16)
	if err != nil {
		return false, err
	}

	for _, password := range backend.Candidates() {
		expected, err := desEncryptChallenge(challenge, password)
		if err != nil {
			continue
		}
		if bytes.Equal(expected, response) {
			return backend.Authenticate(password), nil
		}
	}
	return false, nil
}

func clientVNCAuth(s *wire.Stream, password string) error {
	challenge, err := s.RecvBytes(16)
	if err != nil {
		return err
	}
	response, err := desEncryptChallenge(challenge, password)
	if err != nil {
		return err
	}
	if err := s.SendBytes(response); err != nil {
		return err
	}
	return s.Flush()
}

// desEncryptChallenge implements RFB's VNC authentication key schedule: the
// first 8 ASCII bytes of password, each bit-reversed, used as a DES key to
// encrypt the 16-byte challenge as two independent ECB blocks.
func desEncryptChallenge(challenge []byte, password string) ([]byte, error) {
	key := make([]byte, 8)
	copy(key, password)
	for i, b := range key {
		key[i] = reverseBits(b)
	}
	block, err := des.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 16)
	block.Encrypt(out[0:8], challenge[0:8])
	block.Encrypt(out[8:16], challenge[8:16])
	return out, nil
}

func reverseBits(b byte) byte {
	var r byte
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}
