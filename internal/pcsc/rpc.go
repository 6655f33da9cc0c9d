package pcsc

import (
	"encoding/binary"
	"fmt"

	"github.com/ltsm-go/ltsm/internal/ltsmerr"
)

// rpcInit tags every remote RPC request (spec §4.6, §6.1: "every request is
// {u16 Init=0xFD01, u16 cmd, args}"). PC/SC channel payloads are
// little-endian even though the surrounding RFB wire is big-endian.
const rpcInit uint16 = 0xFD01

// Command identifies one PC/SC API call proxied across the LTSM channel.
type Command uint16

const (
	CmdEstablishContext Command = iota + 1
	CmdReleaseContext
	CmdConnect
	CmdReconnect
	CmdDisconnect
	CmdBeginTransaction
	CmdEndTransaction
	CmdTransmit
	CmdStatus
	CmdControl
	CmdGetAttrib
	CmdSetAttrib
	CmdCancel
	CmdListReaders
	CmdGetStatusChange
	CmdGetVersion
	CmdGetReaderState
	CmdWaitReaderStateChangeStart
	CmdWaitReaderStateChangeStop
)

// rpcWriter accumulates a little-endian RPC frame body.
type rpcWriter struct {
	buf []byte
}

func newRPCWriter(cmd Command) *rpcWriter {
	w := &rpcWriter{buf: make([]byte, 0, 32)}
	w.u16(rpcInit)
	w.u16(uint16(cmd))
	return w
}

func (w *rpcWriter) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *rpcWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *rpcWriter) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *rpcWriter) raw(b []byte) { w.buf = append(w.buf, b...) }

// bytes writes a {u32 len, bytes} pair, the shape used throughout the
// reply table for reader names and ATRs.
func (w *rpcWriter) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *rpcWriter) Bytes() []byte { return w.buf }

// rpcReader consumes a little-endian RPC frame body.
type rpcReader struct {
	buf []byte
	pos int
}

func newRPCReader(body []byte) (*rpcReader, Command, error) {
	r := &rpcReader{buf: body}
	init, err := r.u16()
	if err != nil {
		return nil, 0, err
	}
	if init != rpcInit {
		return nil, 0, ltsmerr.NewProtocolError("pcsc: bad rpc init marker 0x%04X", init)
	}
	cmdVal, err := r.u16()
	if err != nil {
		return nil, 0, err
	}
	return r, Command(cmdVal), nil
}

func (r *rpcReader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("pcsc: rpc frame underflow: need %d bytes, have %d", n, len(r.buf)-r.pos)
	}
	return nil
}

func (r *rpcReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *rpcReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *rpcReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *rpcReader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// lenBytes reads a {u32 len, bytes} pair, the shape used throughout the
// reply table for reader names and ATRs.
func (r *rpcReader) lenBytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	return r.bytes(int(n))
}
