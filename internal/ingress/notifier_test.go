package ingress

import (
	"encoding/binary"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	resets int32
}

func (h *countingHandler) ResetHostBufferOffset() {
	atomic.AddInt32(&h.resets, 1)
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func resetMessage() []byte {
	msg := make([]byte, 20)
	binary.LittleEndian.PutUint32(msg[0:4], Magic)
	binary.LittleEndian.PutUint32(msg[16:20], SubCommandResetHostBuffer)
	return msg
}

func TestNotifier_RecognizedMessageTriggersReset(t *testing.T) {
	h := &countingHandler{}
	n, err := New(h, testLogger())
	require.NoError(t, err)
	defer n.Unlink()
	n.Start()
	defer n.Stop()

	require.NoError(t, n.queue.Send(resetMessage(), 0))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&h.resets) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestNotifier_UnrecognizedMessageIsIgnored(t *testing.T) {
	h := &countingHandler{}
	n, err := New(h, testLogger())
	require.NoError(t, err)
	defer n.Unlink()
	n.Start()
	defer n.Stop()

	require.NoError(t, n.queue.Send([]byte("not a real ingress message"), 0))
	require.NoError(t, n.queue.Send(resetMessage(), 0))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&h.resets) == 1
	}, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&h.resets), "only the recognized message should fire")
}

func TestNotifier_DrainsStaleResidueOnCreate(t *testing.T) {
	h := &countingHandler{}
	n1, err := New(h, testLogger())
	require.NoError(t, err)
	require.NoError(t, n1.queue.Send(resetMessage(), 0))
	require.NoError(t, n1.Close())

	n2, err := New(h, testLogger())
	require.NoError(t, err)
	defer n2.Unlink()

	attrs, err := n2.queue.GetAttrs()
	require.NoError(t, err)
	require.Zero(t, attrs.CurrentMsgs, "stale residue must be drained on create")
}
