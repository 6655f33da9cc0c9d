package rfbengine

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ltsm-go/ltsm/internal/ltsmerr"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
	"github.com/ltsm-go/ltsm/internal/wire"
)

// TestClientDrivesReadyLoopWithoutExternalInput proves the viewer can get
// a frame with nothing but its own handshake: no test code ever calls
// handleUpdateRequest here, only the client's own sendClientReadyHandshake
// and background poll loop inside RunClient.
func TestClientDrivesReadyLoopWithoutExternalInput(t *testing.T) {
	h := newHarness(t)

	require.Eventually(t, func() bool {
		_, _, updates, presents := h.surface.snapshot()
		return updates > 0 && presents > 0
	}, time.Second, 5*time.Millisecond, "client should request and receive a frame on its own")

	require.Equal(t, rfbproto.EncodingRaw, h.server.chosen, "client only ever offers Raw-decodable encodings")
	require.Equal(t, clientDecodableEncodings, h.server.clientEnc)
}

func TestSendKeyEventReachesDisplay(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.SendKeyEvent(0x61, true))

	require.Eventually(t, func() bool {
		h.display.mu.Lock()
		defer h.display.mu.Unlock()
		for _, k := range h.display.keys {
			if k == 0x61 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestSendClipboardReachesDisplay(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.SendClipboard([]byte("from the viewer")))

	require.Eventually(t, func() bool {
		data, ok := h.display.GetClipboard()
		return ok && string(data) == "from the viewer"
	}, time.Second, 5*time.Millisecond)
}

func TestRecvOneRectangleRejectsUndecodableEncoding(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	client := NewClientSession(clientConn, &fakeSurface{})

	go func() {
		s := wire.New(serverConn)
		_ = s.SendU16BE(0)  // x
		_ = s.SendU16BE(0)  // y
		_ = s.SendU16BE(16) // w
		_ = s.SendU16BE(16) // h
		_ = s.SendU32BE(uint32(rfbproto.EncodingHextile))
		_ = s.Flush()
	}()

	err := client.recvOneRectangle()
	require.Error(t, err)
	var protoErr *ltsmerr.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}
