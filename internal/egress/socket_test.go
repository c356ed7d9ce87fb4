package egress

import (
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (net.Listener, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "glproxy-socket")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln, path
}

func TestSocket_WriteBufferConnectsAndDeliversBytes(t *testing.T) {
	ln, path := listen(t)

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 16)
		n, _ := io.ReadFull(conn, buf)
		received <- buf[:n]
	}()

	s := New(path)
	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	require.NoError(t, s.WriteBuffer(payload))

	select {
	case got := <-received:
		require.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for proxy to receive bytes")
	}
}

func TestSocket_WriteBufferReconnectsAfterPeerClose(t *testing.T) {
	ln, path := listen(t)

	received := make(chan []byte, 1)
	closed := make(chan struct{})
	go func() {
		// First connection: slam the door shut before reading anything,
		// forcing the client's first write to fail outright.
		conn1, err := ln.Accept()
		if err != nil {
			return
		}
		conn1.Close()
		close(closed)

		// Second connection: accept the full, un-duplicated payload.
		conn2, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn2.Close()
		buf := make([]byte, 16)
		n, _ := io.ReadFull(conn2, buf)
		received <- buf[:n]
	}()

	s := New(path)
	require.NoError(t, s.connect())
	<-closed // make sure the peer has hung up before the first write attempt

	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	require.NoError(t, s.WriteBuffer(payload))

	select {
	case got := <-received:
		require.Equal(t, payload, got, "no bytes lost or duplicated across reconnect")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reconnect scenario to finish")
	}
}

func TestSocket_ReadReplyU32DecodesLittleEndian(t *testing.T) {
	ln, path := listen(t)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
		time.Sleep(50 * time.Millisecond)
	}()

	s := New(path)
	require.NoError(t, s.WriteBuffer([]byte{0x00}))
	got := s.ReadReplyU32()
	require.Equal(t, uint32(0xEFBEADDE), got)
}

func TestSocket_ReadReplyU32WithoutConnectionReturnsZero(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"))
	require.Equal(t, uint32(0), s.ReadReplyU32())
}
