package rfbengine

import (
	"github.com/ltsm-go/ltsm/internal/ltsmerr"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/tlslayer"
	"github.com/ltsm-go/ltsm/internal/wire"
)

// negotiateVeNCryptServer runs the VeNCrypt sub-handshake (spec §4.3),
// splices TLS in on success, and hands back a Stream wrapping the TLS
// conn. The underlying "None"/"Vnc" auth then proceeds in cleartext over
// that encrypted channel.
func negotiateVeNCryptServer(s *wire.Stream, cfg SecurityConfig) (*wire.Stream, error) {
	if err := s.SendByte(0); err != nil {
		return nil, err
	}
	if err := s.SendByte(2); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}

	major, err := s.RecvByte()
	if err != nil {
		return nil, err
	}
	minor, err := s.RecvByte()
	if err != nil {
		return nil, err
	}
	if major != 0 || (minor != 1 && minor != 2) {
		_ = s.SendByte(1) // unsupported
		_ = s.Flush()
		return nil, ltsmerr.NewProtocolError("unsupported VeNCrypt version %d.%d", major, minor)
	}
	if err := s.SendByte(0); err != nil { // ack: version accepted
		return nil, err
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}

	subtypes := []uint32{rfbproto.VeNCryptTLSNone, rfbproto.VeNCryptTLSVnc}
	if err := s.SendByte(byte(len(subtypes))); err != nil {
		return nil, err
	}
	for _, t := range subtypes {
		if err := s.SendU32BE(t); err != nil {
			return nil, err
		}
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}

	chosen, err := recvVeNCryptSubtype(s, minor)
	if err != nil {
		return nil, err
	}
	if err := s.SendByte(1); err != nil { // ack: subtype accepted
		return nil, err
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}

	tc, err := tlslayer.ServerHandshake(s.Conn(), cfg.TLS)
	if err != nil {
		return nil, &ltsmerr.TLSError{Err: err}
	}
	s.Swap(tc)

	switch chosen {
	case rfbproto.VeNCryptTLSNone:
		return s, sendSecurityResult(s, true, "")
	case rfbproto.VeNCryptTLSVnc:
		ok, err := serverVNCAuth(s, cfg.Auth)
		if err != nil {
			return nil, err
		}
		if !ok {
			_ = sendSecurityResult(s, false, "authentication failed")
			return nil, &ltsmerr.AuthFailed{Reason: "vnc password mismatch over tls"}
		}
		return s, sendSecurityResult(s, true, "")
	default:
		return nil, ltsmerr.NewProtocolError("unreachable VeNCrypt subtype %d", chosen)
	}
}

func recvVeNCryptSubtype(s *wire.Stream, minor byte) (uint32, error) {
	if minor == 1 {
		b, err := s.RecvByte()
		return uint32(b), err
	}
	return s.RecvU32BE()
}

// negotiateVeNCryptClient mirrors negotiateVeNCryptServer from the client
// side.
func negotiateVeNCryptClient(s *wire.Stream, password string, tlsCfg tlslayer.Config, serverName string) (*wire.Stream, error) {
	if _, err := s.RecvByte(); err != nil { // server major, informational only
		return nil, err
	}
	if _, err := s.RecvByte(); err != nil { // server minor, informational only
		return nil, err
	}

	if err := s.SendByte(0); err != nil {
		return nil, err
	}
	if err := s.SendByte(2); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}

	ack, err := s.RecvByte()
	if err != nil {
		return nil, err
	}
	if ack != 0 {
		return nil, ltsmerr.NewProtocolError("server rejected VeNCrypt version 0.2")
	}

	count, err := s.RecvByte()
	if err != nil {
		return nil, err
	}
	subtypes := make([]uint32, count)
	for i := range subtypes {
		v, err := s.RecvU32BE()
		if err != nil {
			return nil, err
		}
		subtypes[i] = v
	}

	chosen := pickVeNCryptSubtype(subtypes)
	if chosen == 0 {
		return nil, ltsmerr.NewProtocolError("no acceptable VeNCrypt subtype offered: %v", subtypes)
	}
	if err := s.SendU32BE(chosen); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}

	subAck, err := s.RecvByte()
	if err != nil {
		return nil, err
	}
	if subAck != 1 {
		return nil, ltsmerr.NewProtocolError("server rejected VeNCrypt subtype %d", chosen)
	}

	tc, err := tlslayer.ClientHandshake(s.Conn(), tlsCfg, serverName)
	if err != nil {
		return nil, &ltsmerr.TLSError{Err: err}
	}
	s.Swap(tc)

	switch chosen {
	case rfbproto.VeNCryptTLSNone:
		return s, recvSecurityResult(s)
	case rfbproto.VeNCryptTLSVnc:
		if err := clientVNCAuth(s, password); err != nil {
			return nil, err
		}
		return s, recvSecurityResult(s)
	default:
		return nil, ltsmerr.NewProtocolError("unreachable VeNCrypt subtype %d", chosen)
	}
}

func pickVeNCryptSubtype(offered []uint32) uint32 {
	for _, preferred := range []uint32{rfbproto.VeNCryptTLSVnc, rfbproto.VeNCryptTLSNone} {
		for _, o := range offered {
			if o == preferred {
				return preferred
			}
		}
	}
	return 0
}
