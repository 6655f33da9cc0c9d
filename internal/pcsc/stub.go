package pcsc

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// readerResyncInterval is how often WaitReaderStateChangeStart polls the
// remote peer while blocking in pre-4.3 mode (spec §4.6: "polled against
// the remote peer every 1 s").
const readerResyncInterval = time.Second

// protocolVersion43 is the PC/SC-Lite wire protocol version at which
// WaitReaderStateChange stopped blocking on the wire and started
// returning the locally-cached table synchronously (spec §4.6: "GetVersion
// ... controls wire-shape of WaitReaderStateChange*").
var protocolVersion43 = [2]uint32{4, 3}

// Stub is the local PC/SC-Lite-compatible Unix socket server. Applications
// linked against a PC/SC client library connect to it exactly as they
// would to pcscd; every state-mutating call is proxied to a RemoteClient
// over the LTSM channel (spec §4.6).
type Stub struct {
	socketPath string
	client     *RemoteClient
	ids        *idMap
	readers    readerTable
	log        zerolog.Logger

	mu           sync.Mutex
	nextClientID uint64
	waiters      map[uint64]context.CancelFunc
	versions     map[uint64][2]uint32
}

// NewStub builds a Stub listening at socketPath (normally the value of
// PCSCLITE_CSOCK_NAME) and proxying through client.
func NewStub(socketPath string, client *RemoteClient) *Stub {
	return &Stub{
		socketPath: socketPath,
		client:     client,
		ids:        newIDMap(),
		log:        log.Logger.With().Str("component", "pcsc-stub").Logger(),
		waiters:    make(map[uint64]context.CancelFunc),
		versions:   make(map[uint64][2]uint32),
	}
}

// ListenAndServe accepts application connections until ctx is cancelled.
func (s *Stub) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}
		clientID := s.allocClientID()
		go s.handleConn(ctx, clientID, conn)
	}
}

func (s *Stub) allocClientID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextClientID++
	return s.nextClientID
}

func (s *Stub) handleConn(ctx context.Context, clientID uint64, conn net.Conn) {
	defer conn.Close()
	log := s.log.With().Uint64("client", clientID).Logger()

	for {
		header := make([]byte, 8)
		if _, err := readFull(conn, header); err != nil {
			log.Debug().Err(err).Msg("pcsc local connection closed")
			s.forgetClient(clientID)
			return
		}
		cmdLen := binary.LittleEndian.Uint32(header[0:4])
		cmd := Command(binary.LittleEndian.Uint32(header[4:8]))
		args := make([]byte, 0)
		if cmdLen > 4 {
			args = make([]byte, cmdLen-4)
			if _, err := readFull(conn, args); err != nil {
				log.Debug().Err(err).Msg("pcsc local read failed")
				s.forgetClient(clientID)
				return
			}
		}

		body, err := s.dispatch(ctx, clientID, cmd, args)
		if err != nil {
			log.Warn().Err(err).Uint16("cmd", uint16(cmd)).Msg("pcsc local command failed")
			return
		}
		frame := make([]byte, 8+len(body))
		binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)+4))
		binary.LittleEndian.PutUint32(frame[4:8], uint32(cmd))
		copy(frame[8:], body)
		if _, err := conn.Write(frame); err != nil {
			log.Debug().Err(err).Msg("pcsc local write failed")
			return
		}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Stub) forgetClient(clientID uint64) {
	s.mu.Lock()
	cancel, waiting := s.waiters[clientID]
	delete(s.waiters, clientID)
	delete(s.versions, clientID)
	s.mu.Unlock()
	if waiting {
		cancel()
	}
}

func (s *Stub) dispatch(ctx context.Context, clientID uint64, cmd Command, body []byte) ([]byte, error) {
	args, err := newArgsReader(body)
	if err != nil {
		return nil, err
	}

	switch cmd {
	case CmdGetVersion:
		return s.handleGetVersion(clientID, args)
	case CmdEstablishContext:
		return s.handleEstablishContext(ctx)
	case CmdReleaseContext:
		return s.handleReleaseContext(ctx, args)
	case CmdListReaders:
		return s.handleListReaders(ctx, args)
	case CmdGetReaderState:
		return s.handleGetReaderState()
	case CmdConnect:
		return s.handleConnect(ctx, args)
	case CmdDisconnect:
		return s.handleDisconnect(ctx, args)
	case CmdBeginTransaction:
		return s.handleBeginTransaction(ctx, args)
	case CmdEndTransaction:
		return s.handleEndTransaction(ctx, args)
	case CmdTransmit:
		return s.handleTransmit(ctx, args)
	case CmdStatus:
		return s.handleStatus(ctx, args)
	case CmdGetStatusChange:
		return s.handleGetStatusChange(ctx, args)
	case CmdControl:
		return s.handleControl(ctx, args)
	case CmdGetAttrib:
		return s.handleGetAttrib(ctx, args)
	case CmdSetAttrib:
		return s.handleSetAttrib(ctx, args)
	case CmdCancel:
		return s.handleCancel(ctx, args)
	case CmdWaitReaderStateChangeStart:
		return s.handleWaitStart(ctx, clientID, args)
	case CmdWaitReaderStateChangeStop:
		return s.handleWaitStop(clientID)
	default:
		w := newLocalReplyWriter(cmd)
		w.u32(uint32(SCardEUnsupportedFeature))
		return w.Bytes(), nil
	}
}

// newArgsReader treats the command body as a plain little-endian field
// stream, with no Init marker (unlike the remote RPC framing).
func newArgsReader(body []byte) (*rpcReader, error) {
	return &rpcReader{buf: body}, nil
}

// newLocalReplyWriter starts a reply body without the remote Init marker,
// matching the local header's {cmdLen, cmd} framing.
func newLocalReplyWriter(cmd Command) *rpcWriter {
	return &rpcWriter{}
}

func (s *Stub) handleGetVersion(clientID uint64, args *rpcReader) ([]byte, error) {
	major, _ := args.u32()
	minor, _ := args.u32()
	s.mu.Lock()
	s.versions[clientID] = [2]uint32{major, minor}
	s.mu.Unlock()
	w := newLocalReplyWriter(CmdGetVersion)
	w.u32(protocolVersion43[0])
	w.u32(protocolVersion43[1])
	return w.Bytes(), nil
}

func (s *Stub) handleEstablishContext(ctx context.Context) ([]byte, error) {
	remoteCtx, status, err := s.client.EstablishContext(ctx)
	if err != nil {
		return nil, err
	}
	local := s.ids.Bind(remoteCtx)
	if status == SCardSSuccess {
		go s.resyncReaders(ctx, remoteCtx)
	}
	w := newLocalReplyWriter(CmdEstablishContext)
	w.u32(local)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (s *Stub) handleReleaseContext(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	remoteCtx, _ := s.ids.Remote(local)
	status, err := s.client.ReleaseContext(ctx, remoteCtx)
	if err != nil {
		return nil, err
	}
	s.ids.Release(local)
	w := newLocalReplyWriter(CmdReleaseContext)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

// resyncReaders primes the reader table right after a successful
// EstablishContext (spec §4.6: "issues a silent ListReaders + per-reader
// GetStatusChange(timeout=0) to populate the table").
func (s *Stub) resyncReaders(ctx context.Context, remoteCtx uint64) {
	names, err := s.client.ListReaders(ctx, remoteCtx)
	if err != nil {
		return
	}
	initial := make([]ReaderState, len(names))
	for i, n := range names {
		initial[i] = ReaderState{Name: n}
	}
	updated, _, err := s.client.GetStatusChange(ctx, remoteCtx, 0, initial)
	if err != nil {
		return
	}
	s.readers.Replace(updated)
}

func (s *Stub) handleListReaders(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	remoteCtx, _ := s.ids.Remote(local)
	names, err := s.client.ListReaders(ctx, remoteCtx)
	if err != nil {
		return nil, err
	}
	w := newLocalReplyWriter(CmdListReaders)
	w.u32(uint32(len(names)))
	for _, n := range names {
		w.bytes([]byte(n))
	}
	return w.Bytes(), nil
}

func (s *Stub) handleGetReaderState() ([]byte, error) {
	snapshot := s.readers.Snapshot()
	w := newLocalReplyWriter(CmdGetReaderState)
	w.u32(uint32(len(snapshot)))
	for _, rs := range snapshot {
		w.u32(rs.CurrentState)
		w.u32(rs.EventState)
		w.bytes([]byte(rs.Name))
		w.bytes(rs.ATR)
	}
	return w.Bytes(), nil
}

func (s *Stub) handleConnect(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	reader, err := args.lenBytes()
	if err != nil {
		return nil, err
	}
	mode, err := args.u32()
	if err != nil {
		return nil, err
	}
	preferred, err := args.u32()
	if err != nil {
		return nil, err
	}
	remoteCtx, _ := s.ids.Remote(local)
	remoteHandle, active, status, err := s.client.Connect(ctx, remoteCtx, string(reader), ShareMode(mode), Protocol(preferred))
	if err != nil {
		return nil, err
	}
	localHandle := s.ids.Bind(remoteHandle)
	w := newLocalReplyWriter(CmdConnect)
	w.u32(localHandle)
	w.u32(uint32(active))
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (s *Stub) handleDisconnect(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	disposition, err := args.u32()
	if err != nil {
		return nil, err
	}
	remoteHandle, _ := s.ids.Remote(local)
	status, err := s.client.Disconnect(ctx, remoteHandle, Disposition(disposition))
	if err != nil {
		return nil, err
	}
	s.ids.Release(local)
	w := newLocalReplyWriter(CmdDisconnect)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (s *Stub) handleBeginTransaction(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	remoteHandle, _ := s.ids.Remote(local)
	status, err := s.client.BeginTransaction(ctx, remoteHandle)
	if err != nil {
		return nil, err
	}
	w := newLocalReplyWriter(CmdBeginTransaction)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (s *Stub) handleEndTransaction(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	disposition, err := args.u32()
	if err != nil {
		return nil, err
	}
	remoteHandle, _ := s.ids.Remote(local)
	status, err := s.client.EndTransaction(ctx, remoteHandle, Disposition(disposition))
	if err != nil {
		return nil, err
	}
	w := newLocalReplyWriter(CmdEndTransaction)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (s *Stub) handleTransmit(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	sendPCI, err := args.u32()
	if err != nil {
		return nil, err
	}
	data, err := args.lenBytes()
	if err != nil {
		return nil, err
	}
	remoteHandle, _ := s.ids.Remote(local)
	recvProtocol, resp, status, err := s.client.Transmit(ctx, remoteHandle, Protocol(sendPCI), data)
	if err != nil {
		return nil, err
	}
	w := newLocalReplyWriter(CmdTransmit)
	w.u32(uint32(recvProtocol))
	w.u32(0) // recvPciLen: this proxy carries no protocol control info beyond the data payload
	w.u32(uint32(len(resp)))
	w.u32(uint32(status))
	w.raw(resp)
	return w.Bytes(), nil
}

func (s *Stub) handleStatus(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	remoteHandle, _ := s.ids.Remote(local)
	name, state, protocol, atr, status, err := s.client.Status(ctx, remoteHandle)
	if err != nil {
		return nil, err
	}
	w := newLocalReplyWriter(CmdStatus)
	w.bytes([]byte(name))
	w.u32(state)
	w.u32(uint32(protocol))
	w.bytes(atr)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (s *Stub) handleGetStatusChange(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	timeoutMs, err := args.u32()
	if err != nil {
		return nil, err
	}
	count, err := args.u32()
	if err != nil {
		return nil, err
	}
	readers := make([]ReaderState, count)
	for i := range readers {
		name, err := args.lenBytes()
		if err != nil {
			return nil, err
		}
		cur, err := args.u32()
		if err != nil {
			return nil, err
		}
		readers[i] = ReaderState{Name: string(name), CurrentState: cur}
	}
	remoteCtx, _ := s.ids.Remote(local)
	updated, status, err := s.client.GetStatusChange(ctx, remoteCtx, time.Duration(timeoutMs)*time.Millisecond, readers)
	if err != nil {
		return nil, err
	}
	s.readers.Replace(updated)

	w := newLocalReplyWriter(CmdGetStatusChange)
	w.u32(uint32(len(updated)))
	w.u32(uint32(status))
	for _, rs := range updated {
		w.u32(rs.CurrentState)
		w.u32(rs.EventState)
		w.bytes([]byte(rs.Name))
		w.bytes(rs.ATR)
	}
	return w.Bytes(), nil
}

func (s *Stub) handleControl(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	controlCode, err := args.u32()
	if err != nil {
		return nil, err
	}
	in, err := args.lenBytes()
	if err != nil {
		return nil, err
	}
	remoteHandle, _ := s.ids.Remote(local)
	out, status, err := s.client.Control(ctx, remoteHandle, controlCode, in)
	if err != nil {
		return nil, err
	}
	w := newLocalReplyWriter(CmdControl)
	w.u32(uint32(len(out)))
	w.u32(uint32(status))
	w.raw(out)
	return w.Bytes(), nil
}

func (s *Stub) handleGetAttrib(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	attribID, err := args.u32()
	if err != nil {
		return nil, err
	}
	remoteHandle, _ := s.ids.Remote(local)
	value, status, err := s.client.GetAttrib(ctx, remoteHandle, attribID)
	if err != nil {
		return nil, err
	}
	w := newLocalReplyWriter(CmdGetAttrib)
	w.u32(uint32(len(value)))
	w.u32(uint32(status))
	w.raw(value)
	return w.Bytes(), nil
}

func (s *Stub) handleSetAttrib(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	attribID, err := args.u32()
	if err != nil {
		return nil, err
	}
	value, err := args.lenBytes()
	if err != nil {
		return nil, err
	}
	remoteHandle, _ := s.ids.Remote(local)
	status, err := s.client.SetAttrib(ctx, remoteHandle, attribID, value)
	if err != nil {
		return nil, err
	}
	w := newLocalReplyWriter(CmdSetAttrib)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (s *Stub) handleCancel(ctx context.Context, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	remoteCtx, _ := s.ids.Remote(local)
	status, err := s.client.Cancel(ctx, remoteCtx)
	if err != nil {
		return nil, err
	}
	w := newLocalReplyWriter(CmdCancel)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

// handleWaitStart implements both wire shapes spec §4.6 describes:
// protocol >= 4.3 returns the cached table synchronously; older clients
// block until a reader-state diff appears or timeout elapses, polling the
// remote peer once a second.
func (s *Stub) handleWaitStart(ctx context.Context, clientID uint64, args *rpcReader) ([]byte, error) {
	local, err := args.u32()
	if err != nil {
		return nil, err
	}
	timeoutMs, err := args.u32()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	version := s.versions[clientID]
	s.mu.Unlock()

	if version[0] > protocolVersion43[0] || (version[0] == protocolVersion43[0] && version[1] >= protocolVersion43[1]) {
		return s.writeWaitReply(s.readers.Snapshot(), SCardSSuccess), nil
	}

	waitCtx, cancel := context.WithCancel(ctx)
	if timeoutMs > 0 {
		var timeoutCancel context.CancelFunc
		waitCtx, timeoutCancel = context.WithTimeout(waitCtx, time.Duration(timeoutMs)*time.Millisecond)
		defer timeoutCancel()
	}
	s.mu.Lock()
	s.waiters[clientID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.waiters, clientID)
		s.mu.Unlock()
	}()

	before := s.readers.Snapshot()
	remoteCtx, _ := s.ids.Remote(local)
	ticker := time.NewTicker(readerResyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-waitCtx.Done():
			return s.writeWaitReply(s.readers.Snapshot(), SCardSSuccess), nil
		case <-ticker.C:
			names := make([]ReaderState, len(before))
			copy(names, before)
			updated, _, err := s.client.GetStatusChange(ctx, remoteCtx, 0, names)
			if err != nil {
				continue
			}
			if changed := s.readers.Replace(updated); len(changed) > 0 {
				return s.writeWaitReply(s.readers.Snapshot(), SCardSSuccess), nil
			}
		}
	}
}

func (s *Stub) handleWaitStop(clientID uint64) ([]byte, error) {
	s.mu.Lock()
	cancel, ok := s.waiters[clientID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return s.writeWaitReply(s.readers.Snapshot(), SCardSSuccess), nil
}

func (s *Stub) writeWaitReply(table []ReaderState, status Status) []byte {
	w := newLocalReplyWriter(CmdWaitReaderStateChangeStart)
	w.u32(uint32(status))
	w.u32(uint32(len(table)))
	for _, rs := range table {
		w.u32(rs.CurrentState)
		w.u32(rs.EventState)
		w.bytes([]byte(rs.Name))
		w.bytes(rs.ATR)
	}
	return w.Bytes()
}
