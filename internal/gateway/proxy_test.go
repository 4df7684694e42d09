package gateway

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUpgrade(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, isUpgrade(req))

	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	assert.True(t, isUpgrade(req))

	req.Header.Set("Connection", "keep-alive, Upgrade")
	assert.True(t, isUpgrade(req))

	req.Header.Set("Connection", "keep-alive")
	assert.False(t, isUpgrade(req), "Upgrade header alone without the Connection token must not match")
}

// TestDuplexProxy_RelaysBothDirections drives the explicit hijack-and-pump
// path end to end against a raw TCP listener standing in for a backend.
func TestDuplexProxy_RelaysBothDirections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	backendDone := make(chan struct{})
	go func() {
		defer close(backendDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		// Consume the relayed HTTP request line + headers.
		for {
			line, err := reader.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		conn.Write([]byte("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n"))
		buf := make([]byte, 5)
		if _, err := reader.Read(buf); err == nil {
			conn.Write([]byte("pong!"))
		}
	}()

	b, err := newBackend("test", "http://"+ln.Addr().String())
	require.NoError(t, err)

	clientServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.ServeDuplex(w, r)
	}))
	defer clientServer.Close()

	clientConn, err := net.Dial("tcp", clientServer.Listener.Addr().String())
	require.NoError(t, err)
	defer clientConn.Close()

	req, err := http.NewRequest(http.MethodGet, clientServer.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	require.NoError(t, req.Write(clientConn))

	clientConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	reader := bufio.NewReader(clientConn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, statusLine, "101")

	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}

	_, err = clientConn.Write([]byte("ping!"))
	require.NoError(t, err)

	out := make([]byte, 5)
	_, err = reader.Read(out)
	require.NoError(t, err)
	assert.Equal(t, "pong!", string(out))

	<-backendDone
}
