package wire

import (
	"bufio"
	"encoding/binary"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultBufSize    = 32 * 1024
	defaultRecvDelay  = 5000 * time.Millisecond
	hasInputPollDelay = time.Millisecond
)

// Stream is a bidirectional, buffered byte stream with blocking,
// timeout-bounded reads and explicitly flushed writes. It is the single
// point through which the RFB engine, the LTSM channel multiplexer and the
// PC/SC/audio RPC framing touch the network.
//
// A Stream owns its underlying net.Conn but the conn can be swapped out from
// under it exactly once, to splice in a TLS session mid-handshake (§4.2).
type Stream struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	log  zerolog.Logger

	recvTimeout time.Duration
}

// New wraps conn in a Stream with default buffer sizes and a 5s recv
// timeout, matching the session-bootstrap default in spec §5.
func New(conn net.Conn) *Stream {
	return &Stream{
		conn:        conn,
		r:           bufio.NewReaderSize(conn, defaultBufSize),
		w:           bufio.NewWriterSize(conn, defaultBufSize),
		log:         log.Logger.With().Str("component", "wire").Logger(),
		recvTimeout: defaultRecvDelay,
	}
}

// SetRecvTimeout changes the deadline applied to blocking reads.
func (s *Stream) SetRecvTimeout(d time.Duration) { s.recvTimeout = d }

// Conn returns the underlying connection, e.g. for RemoteAddr().
func (s *Stream) Conn() net.Conn { return s.conn }

// Swap replaces the underlying connection and re-wraps the buffered
// reader/writer around it; bytes still buffered in the old reader are
// discarded. VeNCrypt uses this to splice a *tls.Conn in place of the raw
// socket mid-handshake.
func (s *Stream) Swap(conn net.Conn) {
	s.conn = conn
	s.r = bufio.NewReaderSize(conn, defaultBufSize)
	s.w = bufio.NewWriterSize(conn, defaultBufSize)
}

// Close closes the underlying connection.
func (s *Stream) Close() error { return s.conn.Close() }

func (s *Stream) deadline() {
	if s.recvTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.recvTimeout))
	}
}

func (s *Stream) clearDeadline() {
	_ = s.conn.SetReadDeadline(time.Time{})
}

// RecvByte reads a single byte, blocking up to the configured recv timeout.
func (s *Stream) RecvByte() (byte, error) {
	s.deadline()
	b, err := s.r.ReadByte()
	s.clearDeadline()
	if err != nil {
		return 0, NewIOError("recv byte", err)
	}
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (s *Stream) PeekByte() (byte, error) {
	s.deadline()
	bs, err := s.r.Peek(1)
	s.clearDeadline()
	if err != nil {
		return 0, NewIOError("peek byte", err)
	}
	return bs[0], nil
}

// HasInput reports whether at least one byte is available without blocking.
// Already-buffered bytes satisfy it immediately; otherwise it polls the
// socket with a near-zero deadline, per spec §4.1 ("non-blocking").
func (s *Stream) HasInput() bool {
	if s.r.Buffered() > 0 {
		return true
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(hasInputPollDelay))
	_, err := s.r.Peek(1)
	s.clearDeadline()
	return err == nil
}

// RecvBytes reads exactly n bytes.
func (s *Stream) RecvBytes(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	s.deadline()
	_, err := readFull(s.r, buf)
	s.clearDeadline()
	if err != nil {
		return nil, NewIOError("recv bytes", err)
	}
	return buf, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// RecvU16BE reads a big-endian uint16.
func (s *Stream) RecvU16BE() (uint16, error) {
	b, err := s.RecvBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// RecvU16LE reads a little-endian uint16.
func (s *Stream) RecvU16LE() (uint16, error) {
	b, err := s.RecvBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// RecvU32BE reads a big-endian uint32.
func (s *Stream) RecvU32BE() (uint32, error) {
	b, err := s.RecvBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// RecvU32LE reads a little-endian uint32.
func (s *Stream) RecvU32LE() (uint32, error) {
	b, err := s.RecvBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// RecvU64LE reads a little-endian uint64, used by PC/SC remote context and
// handle identifiers (§3, §4.6).
func (s *Stream) RecvU64LE() (uint64, error) {
	b, err := s.RecvBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// SendByte queues a single byte for the next Flush.
func (s *Stream) SendByte(b byte) error {
	return s.werr(s.w.WriteByte(b))
}

// SendBytes queues raw bytes for the next Flush.
func (s *Stream) SendBytes(b []byte) error {
	_, err := s.w.Write(b)
	return s.werr(err)
}

// SendU16BE queues a big-endian uint16.
func (s *Stream) SendU16BE(v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return s.SendBytes(b[:])
}

// SendU16LE queues a little-endian uint16.
func (s *Stream) SendU16LE(v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return s.SendBytes(b[:])
}

// SendU32BE queues a big-endian uint32.
func (s *Stream) SendU32BE(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return s.SendBytes(b[:])
}

// SendU32LE queues a little-endian uint32.
func (s *Stream) SendU32LE(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return s.SendBytes(b[:])
}

// SendU64LE queues a little-endian uint64.
func (s *Stream) SendU64LE(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return s.SendBytes(b[:])
}

// Flush flushes all queued writes to the underlying connection.
func (s *Stream) Flush() error {
	return s.werr(s.w.Flush())
}

func (s *Stream) werr(err error) error {
	if err != nil {
		return NewIOError("send", err)
	}
	return nil
}
