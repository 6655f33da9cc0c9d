package pcsc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ltsm-go/ltsm/internal/channel"
	"github.com/ltsm-go/ltsm/internal/ltsmerr"
)

// RemotePeer runs on the host where the real smart card reader lives. It
// pulls RPC requests off a dedicated LTSM channel, drives Backend, and
// pushes back the reply shapes from spec §4.6's table.
type RemotePeer struct {
	ch      *channel.Channel
	backend Backend
	trans   transactionLock
	readers readerTable
	log     zerolog.Logger
}

// NewRemotePeer wires a Backend to the given channel.
func NewRemotePeer(ch *channel.Channel, backend Backend) *RemotePeer {
	return &RemotePeer{
		ch:      ch,
		backend: backend,
		log:     log.Logger.With().Str("component", "pcsc-remote").Uint8("channel", ch.ID()).Logger(),
	}
}

// Serve pulls and dispatches requests until ctx is cancelled or the
// channel closes. Run it in its own goroutine per smart-card session.
func (p *RemotePeer) Serve(ctx context.Context) error {
	for {
		req, err := p.ch.Pull(ctx)
		if err != nil {
			return err
		}
		reply, err := p.handle(req)
		if err != nil {
			p.log.Warn().Err(err).Msg("malformed pcsc rpc request")
			continue
		}
		if err := p.ch.Push(ctx, reply); err != nil {
			return err
		}
	}
}

// Close releases any transaction this peer's session still holds, per
// spec §4.6: "a channel close ... releases it" and §8's no-leak invariant.
func (p *RemotePeer) Close(ownerID uint64) {
	p.trans.Release(ownerID)
}

func (p *RemotePeer) handle(body []byte) ([]byte, error) {
	r, cmd, err := newRPCReader(body)
	if err != nil {
		return nil, err
	}

	switch cmd {
	case CmdEstablishContext:
		return p.handleEstablishContext()
	case CmdReleaseContext:
		return p.handleReleaseContext(r)
	case CmdListReaders:
		return p.handleListReaders(r)
	case CmdConnect:
		return p.handleConnect(r)
	case CmdReconnect:
		return p.handleReconnect(r)
	case CmdDisconnect:
		return p.handleDisconnect(r)
	case CmdBeginTransaction:
		return p.handleBeginTransaction(r)
	case CmdEndTransaction:
		return p.handleEndTransaction(r)
	case CmdTransmit:
		return p.handleTransmit(r)
	case CmdStatus:
		return p.handleStatus(r)
	case CmdGetStatusChange:
		return p.handleGetStatusChange(r)
	case CmdControl:
		return p.handleControl(r)
	case CmdGetAttrib:
		return p.handleGetAttrib(r)
	case CmdSetAttrib:
		return p.handleSetAttrib(r)
	case CmdCancel:
		return p.handleCancel(r)
	default:
		return nil, ltsmerr.NewProtocolError("pcsc: unknown rpc command %d", cmd)
	}
}

func (p *RemotePeer) handleEstablishContext() ([]byte, error) {
	ctx, status := p.backend.EstablishContext()
	w := newRPCWriter(CmdEstablishContext)
	w.u64(ctx)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (p *RemotePeer) handleReleaseContext(r *rpcReader) ([]byte, error) {
	ctx, err := r.u64()
	if err != nil {
		return nil, err
	}
	status := p.backend.ReleaseContext(ctx)
	p.trans.Release(ctx)
	w := newRPCWriter(CmdReleaseContext)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (p *RemotePeer) handleListReaders(r *rpcReader) ([]byte, error) {
	ctx, err := r.u64()
	if err != nil {
		return nil, err
	}
	names, _ := p.backend.ListReaders(ctx)
	w := newRPCWriter(CmdListReaders)
	w.u32(uint32(len(names)))
	for _, n := range names {
		w.bytes([]byte(n))
	}
	return w.Bytes(), nil
}

func (p *RemotePeer) handleConnect(r *rpcReader) ([]byte, error) {
	ctx, err := r.u64()
	if err != nil {
		return nil, err
	}
	reader, err := r.lenBytes()
	if err != nil {
		return nil, err
	}
	mode, err := r.u32()
	if err != nil {
		return nil, err
	}
	preferred, err := r.u32()
	if err != nil {
		return nil, err
	}
	handle, active, status := p.backend.Connect(ctx, string(reader), ShareMode(mode), Protocol(preferred))
	w := newRPCWriter(CmdConnect)
	w.u64(handle)
	w.u32(uint32(active))
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (p *RemotePeer) handleReconnect(r *rpcReader) ([]byte, error) {
	handle, err := r.u64()
	if err != nil {
		return nil, err
	}
	mode, err := r.u32()
	if err != nil {
		return nil, err
	}
	preferred, err := r.u32()
	if err != nil {
		return nil, err
	}
	disposition, err := r.u32()
	if err != nil {
		return nil, err
	}
	active, status := p.backend.Reconnect(handle, ShareMode(mode), Protocol(preferred), Disposition(disposition))
	w := newRPCWriter(CmdReconnect)
	w.u32(uint32(active))
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (p *RemotePeer) handleDisconnect(r *rpcReader) ([]byte, error) {
	handle, err := r.u64()
	if err != nil {
		return nil, err
	}
	disposition, err := r.u32()
	if err != nil {
		return nil, err
	}
	status := p.backend.Disconnect(handle, Disposition(disposition))
	p.trans.Release(handle)
	w := newRPCWriter(CmdDisconnect)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (p *RemotePeer) handleBeginTransaction(r *rpcReader) ([]byte, error) {
	handle, err := r.u64()
	if err != nil {
		return nil, err
	}
	status := SCardSSuccess
	if !p.trans.Begin(handle) {
		status = SCardESharingViolation
	} else if s := p.backend.BeginTransaction(handle); s != SCardSSuccess {
		p.trans.Release(handle)
		status = s
	}
	w := newRPCWriter(CmdBeginTransaction)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (p *RemotePeer) handleEndTransaction(r *rpcReader) ([]byte, error) {
	handle, err := r.u64()
	if err != nil {
		return nil, err
	}
	disposition, err := r.u32()
	if err != nil {
		return nil, err
	}
	status := SCardSSuccess
	if !p.trans.End(handle) {
		status = SCardENotTransacted
	} else {
		status = p.backend.EndTransaction(handle, Disposition(disposition))
	}
	w := newRPCWriter(CmdEndTransaction)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (p *RemotePeer) handleTransmit(r *rpcReader) ([]byte, error) {
	handle, err := r.u64()
	if err != nil {
		return nil, err
	}
	sendPCI, err := r.u32()
	if err != nil {
		return nil, err
	}
	data, err := r.lenBytes()
	if err != nil {
		return nil, err
	}
	recvProtocol, recvPCILen, resp, status := p.backend.Transmit(handle, Protocol(sendPCI), data)
	w := newRPCWriter(CmdTransmit)
	w.u32(uint32(recvProtocol))
	w.u32(recvPCILen)
	w.u32(uint32(status))
	w.bytes(resp)
	return w.Bytes(), nil
}

func (p *RemotePeer) handleStatus(r *rpcReader) ([]byte, error) {
	handle, err := r.u64()
	if err != nil {
		return nil, err
	}
	name, state, protocol, atr, status := p.backend.Status(handle)
	w := newRPCWriter(CmdStatus)
	w.bytes([]byte(name))
	w.u32(state)
	w.u32(uint32(protocol))
	w.bytes(atr)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (p *RemotePeer) handleGetStatusChange(r *rpcReader) ([]byte, error) {
	ctx, err := r.u64()
	if err != nil {
		return nil, err
	}
	timeoutMs, err := r.u32()
	if err != nil {
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	readers := make([]ReaderState, count)
	for i := range readers {
		name, err := r.lenBytes()
		if err != nil {
			return nil, err
		}
		curState, err := r.u32()
		if err != nil {
			return nil, err
		}
		readers[i] = ReaderState{Name: string(name), CurrentState: curState}
	}

	updated, status := p.backend.GetStatusChange(ctx, time.Duration(timeoutMs)*time.Millisecond, readers)
	p.readers.Replace(updated)

	w := newRPCWriter(CmdGetStatusChange)
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

func (p *RemotePeer) handleControl(r *rpcReader) ([]byte, error) {
	handle, err := r.u64()
	if err != nil {
		return nil, err
	}
	controlCode, err := r.u32()
	if err != nil {
		return nil, err
	}
	in, err := r.lenBytes()
	if err != nil {
		return nil, err
	}
	out, status := p.backend.Control(handle, controlCode, in)
	w := newRPCWriter(CmdControl)
	w.u32(uint32(len(out)))
	w.u32(uint32(status))
	w.raw(out)
	return w.Bytes(), nil
}

func (p *RemotePeer) handleGetAttrib(r *rpcReader) ([]byte, error) {
	handle, err := r.u64()
	if err != nil {
		return nil, err
	}
	attribID, err := r.u32()
	if err != nil {
		return nil, err
	}
	value, status := p.backend.GetAttrib(handle, attribID)
	w := newRPCWriter(CmdGetAttrib)
	w.u32(uint32(len(value)))
	w.u32(uint32(status))
	w.raw(value)
	return w.Bytes(), nil
}

func (p *RemotePeer) handleSetAttrib(r *rpcReader) ([]byte, error) {
	handle, err := r.u64()
	if err != nil {
		return nil, err
	}
	attribID, err := r.u32()
	if err != nil {
		return nil, err
	}
	value, err := r.lenBytes()
	if err != nil {
		return nil, err
	}
	status := p.backend.SetAttrib(handle, attribID, value)
	w := newRPCWriter(CmdSetAttrib)
	w.u32(uint32(status))
	return w.Bytes(), nil
}

func (p *RemotePeer) handleCancel(r *rpcReader) ([]byte, error) {
	ctx, err := r.u64()
	if err != nil {
		return nil, err
	}
	status := p.backend.Cancel(ctx)
	w := newRPCWriter(CmdCancel)
	w.u32(uint32(status))
	return w.Bytes(), nil
}
