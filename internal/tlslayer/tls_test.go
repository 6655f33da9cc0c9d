package tlslayer

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnonymousHandshakeRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		tc, err := ServerHandshake(conn, Config{Mode: ModeAnonymous})
		if err != nil {
			serverDone <- err
			return
		}
		defer tc.Close()
		_, err = tc.Write([]byte("hello"))
		serverDone <- err
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	tc, err := ClientHandshake(conn, Config{Mode: ModeAnonymous}, "")
	require.NoError(t, err)
	defer tc.Close()

	buf := make([]byte, 5)
	_, err = io.ReadFull(tc, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
	require.NoError(t, <-serverDone)
}
