// Package egress implements the reliable byte-stream connection from the
// device to the external proxy process: a Unix-domain stream socket with
// transparent reconnection and blocking retry on interruption.
package egress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// DefaultSocketPath is the fixed filesystem path the proxy listens on.
const DefaultSocketPath = "/tmp/glproxy-socket"

// ErrNotConnected is returned when a connect attempt fails for a reason
// other than interruption.
var ErrNotConnected = errors.New("egress: not connected")

// retryDelay bounds the EINTR/EAGAIN sleep-and-retry loop on the reply
// read; it is a var so tests can shrink it.
var retryDelay = time.Millisecond

// Socket is a persistent client connection to the proxy's stream socket.
// It is exclusively owned by the emulator thread (spec.md §5): no
// internal locking is needed because MMIO callbacks are already
// serialized by the emulator.
type Socket struct {
	path string
	conn net.Conn
}

// New returns a socket in the Created (not yet connected) state.
func New(path string) *Socket {
	if path == "" {
		path = DefaultSocketPath
	}
	return &Socket{path: path}
}

// Connected reports whether the socket currently holds a live connection.
func (s *Socket) Connected() bool {
	return s.conn != nil
}

func (s *Socket) connect() error {
	for {
		conn, err := net.Dial("unix", s.path)
		if err == nil {
			s.conn = conn
			return nil
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
}

func (s *Socket) closeLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// WriteBuffer writes the full contents of buf to the proxy, connecting
// first if necessary. On a write error other than EINTR/EAGAIN it closes
// the socket, reopens once, and resumes writing the unsent remainder — no
// bytes are dropped and none are duplicated.
func (s *Socket) WriteBuffer(buf []byte) error {
	if !s.Connected() {
		if err := s.connect(); err != nil {
			return err
		}
	}

	remaining := buf
	for len(remaining) > 0 {
		n, err := s.conn.Write(remaining)
		remaining = remaining[n:]
		if err == nil {
			continue
		}
		if errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) {
			continue
		}

		s.closeLocked()
		if err := s.connect(); err != nil {
			return err
		}
	}
	return nil
}

// ReadReplyU32 reads exactly 4 raw bytes from the proxy and decodes them
// as a little-endian uint32. On any error other than EINTR/EAGAIN it
// closes the socket (the next WriteBuffer reconnects) and returns a
// synthesized zero value.
func (s *Socket) ReadReplyU32() uint32 {
	if !s.Connected() {
		return 0
	}
	var buf [4]byte
	read := 0
	for read < 4 {
		n, err := s.conn.Read(buf[read:])
		read += n
		if err == nil {
			continue
		}
		if errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) {
			time.Sleep(retryDelay)
			continue
		}
		s.closeLocked()
		return 0
	}
	return binary.LittleEndian.Uint32(buf[:])
}

// Close tears down any live connection.
func (s *Socket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
