package wire

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (*Stream, *Stream) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return New(a), New(b)
}

func TestStreamRoundTripIntegers(t *testing.T) {
	client, server := pipe(t)

	go func() {
		_ = client.SendU16BE(0x1234)
		_ = client.SendU16LE(0x1234)
		_ = client.SendU32BE(0xdeadbeef)
		_ = client.SendU32LE(0xdeadbeef)
		_ = client.SendU64LE(0x0102030405060708)
		_ = client.Flush()
	}()

	v16be, err := server.RecvU16BE()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), v16be)

	v16le, err := server.RecvU16LE()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), v16le)

	v32be, err := server.RecvU32BE()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v32be)

	v32le, err := server.RecvU32LE()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v32le)

	v64, err := server.RecvU64LE()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), v64)
}

func TestStreamRecvBytesExact(t *testing.T) {
	client, server := pipe(t)

	payload := []byte("hello ltsm")
	go func() {
		_ = client.SendBytes(payload)
		_ = client.Flush()
	}()

	got, err := server.RecvBytes(len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestStreamHasInputFalseWhenIdle(t *testing.T) {
	_, server := pipe(t)
	require.False(t, server.HasInput())
}

func TestStreamHasInputTrueAfterWrite(t *testing.T) {
	client, server := pipe(t)
	go func() {
		_ = client.SendByte(0x42)
		_ = client.Flush()
	}()
	require.Eventually(t, server.HasInput, time.Second, 5*time.Millisecond)
	b, err := server.RecvByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x42), b)
}

func TestStreamClosedReportsErrClosed(t *testing.T) {
	client, server := pipe(t)
	_ = client.Close()

	_, err := server.RecvByte()
	require.ErrorIs(t, err, ErrClosed)
}
