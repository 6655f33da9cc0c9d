package pcsc

import (
	"context"
	"sync"
	"time"

	"github.com/ltsm-go/ltsm/internal/channel"
)

// RemoteClient drives one PC/SC RPC round trip at a time over a channel
// (spec §4.6: the stub "blocks on its thread for the reply"). callMu
// serializes concurrent application handlers onto the single channel so
// replies are never misattributed to the wrong caller.
type RemoteClient struct {
	ch     *channel.Channel
	callMu sync.Mutex
}

// NewRemoteClient wraps an already-open channel to the remote PC/SC peer.
func NewRemoteClient(ch *channel.Channel) *RemoteClient {
	return &RemoteClient{ch: ch}
}

func (c *RemoteClient) call(ctx context.Context, req []byte) (*rpcReader, Command, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()
	if err := c.ch.Push(ctx, req); err != nil {
		return nil, 0, err
	}
	reply, err := c.ch.Pull(ctx)
	if err != nil {
		return nil, 0, err
	}
	return newRPCReader(reply)
}

func (c *RemoteClient) EstablishContext(ctx context.Context) (uint64, Status, error) {
	r, _, err := c.call(ctx, newRPCWriter(CmdEstablishContext).Bytes())
	if err != nil {
		return 0, 0, err
	}
	remoteCtx, err := r.u64()
	if err != nil {
		return 0, 0, err
	}
	status, err := r.u32()
	return remoteCtx, Status(status), err
}

func (c *RemoteClient) ReleaseContext(ctx context.Context, remoteCtx uint64) (Status, error) {
	w := newRPCWriter(CmdReleaseContext)
	w.u64(remoteCtx)
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return 0, err
	}
	status, err := r.u32()
	return Status(status), err
}

func (c *RemoteClient) ListReaders(ctx context.Context, remoteCtx uint64) ([]string, error) {
	w := newRPCWriter(CmdListReaders)
	w.u64(remoteCtx)
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	names := make([]string, count)
	for i := range names {
		name, err := r.lenBytes()
		if err != nil {
			return nil, err
		}
		names[i] = string(name)
	}
	return names, nil
}

func (c *RemoteClient) Connect(ctx context.Context, remoteCtx uint64, reader string, mode ShareMode, preferred Protocol) (handle uint64, active Protocol, status Status, err error) {
	w := newRPCWriter(CmdConnect)
	w.u64(remoteCtx)
	w.bytes([]byte(reader))
	w.u32(uint32(mode))
	w.u32(uint32(preferred))
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return 0, 0, 0, err
	}
	if handle, err = r.u64(); err != nil {
		return 0, 0, 0, err
	}
	activeRaw, err := r.u32()
	if err != nil {
		return 0, 0, 0, err
	}
	statusRaw, err := r.u32()
	return handle, Protocol(activeRaw), Status(statusRaw), err
}

func (c *RemoteClient) Disconnect(ctx context.Context, handle uint64, disposition Disposition) (Status, error) {
	w := newRPCWriter(CmdDisconnect)
	w.u64(handle)
	w.u32(uint32(disposition))
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return 0, err
	}
	status, err := r.u32()
	return Status(status), err
}

func (c *RemoteClient) BeginTransaction(ctx context.Context, handle uint64) (Status, error) {
	w := newRPCWriter(CmdBeginTransaction)
	w.u64(handle)
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return 0, err
	}
	status, err := r.u32()
	return Status(status), err
}

func (c *RemoteClient) EndTransaction(ctx context.Context, handle uint64, disposition Disposition) (Status, error) {
	w := newRPCWriter(CmdEndTransaction)
	w.u64(handle)
	w.u32(uint32(disposition))
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return 0, err
	}
	status, err := r.u32()
	return Status(status), err
}

func (c *RemoteClient) Transmit(ctx context.Context, handle uint64, sendPCI Protocol, data []byte) (recvProtocol Protocol, resp []byte, status Status, err error) {
	w := newRPCWriter(CmdTransmit)
	w.u64(handle)
	w.u32(uint32(sendPCI))
	w.bytes(data)
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return 0, nil, 0, err
	}
	recvProtoRaw, err := r.u32()
	if err != nil {
		return 0, nil, 0, err
	}
	if _, err = r.u32(); err != nil { // recvPciLen, not otherwise surfaced
		return 0, nil, 0, err
	}
	statusRaw, err := r.u32()
	if err != nil {
		return 0, nil, 0, err
	}
	resp, err = r.lenBytes()
	return Protocol(recvProtoRaw), resp, Status(statusRaw), err
}

func (c *RemoteClient) Status(ctx context.Context, handle uint64) (name string, state uint32, protocol Protocol, atr []byte, status Status, err error) {
	w := newRPCWriter(CmdStatus)
	w.u64(handle)
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return "", 0, 0, nil, 0, err
	}
	nameBytes, err := r.lenBytes()
	if err != nil {
		return "", 0, 0, nil, 0, err
	}
	if state, err = r.u32(); err != nil {
		return "", 0, 0, nil, 0, err
	}
	protoRaw, err := r.u32()
	if err != nil {
		return "", 0, 0, nil, 0, err
	}
	if atr, err = r.lenBytes(); err != nil {
		return "", 0, 0, nil, 0, err
	}
	statusRaw, err := r.u32()
	return string(nameBytes), state, Protocol(protoRaw), atr, Status(statusRaw), err
}

// GetStatusChange forwards a poll to the remote peer. timeout=0 must
// return immediately with the current table (spec §8).
func (c *RemoteClient) GetStatusChange(ctx context.Context, remoteCtx uint64, timeout time.Duration, readers []ReaderState) ([]ReaderState, Status, error) {
	w := newRPCWriter(CmdGetStatusChange)
	w.u64(remoteCtx)
	w.u32(uint32(timeout.Milliseconds()))
	w.u32(uint32(len(readers)))
	for _, rs := range readers {
		w.bytes([]byte(rs.Name))
		w.u32(rs.CurrentState)
	}
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return nil, 0, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	statusRaw, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	out := make([]ReaderState, count)
	for i := range out {
		cur, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		evt, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		name, err := r.lenBytes()
		if err != nil {
			return nil, 0, err
		}
		atr, err := r.lenBytes()
		if err != nil {
			return nil, 0, err
		}
		out[i] = ReaderState{Name: string(name), CurrentState: cur, EventState: evt, ATR: atr}
	}
	return out, Status(statusRaw), nil
}

func (c *RemoteClient) Control(ctx context.Context, handle uint64, controlCode uint32, in []byte) ([]byte, Status, error) {
	w := newRPCWriter(CmdControl)
	w.u64(handle)
	w.u32(controlCode)
	w.bytes(in)
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return nil, 0, err
	}
	n, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	statusRaw, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	out, err := r.bytes(int(n))
	return out, Status(statusRaw), err
}

func (c *RemoteClient) GetAttrib(ctx context.Context, handle uint64, attribID uint32) ([]byte, Status, error) {
	w := newRPCWriter(CmdGetAttrib)
	w.u64(handle)
	w.u32(attribID)
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return nil, 0, err
	}
	n, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	statusRaw, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	out, err := r.bytes(int(n))
	return out, Status(statusRaw), err
}

func (c *RemoteClient) SetAttrib(ctx context.Context, handle uint64, attribID uint32, value []byte) (Status, error) {
	w := newRPCWriter(CmdSetAttrib)
	w.u64(handle)
	w.u32(attribID)
	w.bytes(value)
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return 0, err
	}
	status, err := r.u32()
	return Status(status), err
}

func (c *RemoteClient) Cancel(ctx context.Context, remoteCtx uint64) (Status, error) {
	w := newRPCWriter(CmdCancel)
	w.u64(remoteCtx)
	r, _, err := c.call(ctx, w.Bytes())
	if err != nil {
		return 0, err
	}
	status, err := r.u32()
	return Status(status), err
}
