// Package ingress implements the asynchronous message-channel listener
// that lets the external proxy process trigger device-side state changes
// (buffer reset, synchronization) without going through the MMIO window.
package ingress

import (
	"encoding/binary"

	"github.com/rs/zerolog"

	"github.com/glbridge/vdevice/internal/shm"
)

// QueueName is the fixed name of the ingress message channel.
const QueueName = "/gles2emulator_msgQInput"

const (
	// MaxMessages and MessageSize bound the queue's capacity.
	MaxMessages = 32
	MessageSize = 8192
)

// Magic is the 4-byte little-endian prefix that marks an interpreted
// ingress message; anything else is logged and discarded.
const Magic = 0x4703F322

// subCommandOffset is the byte offset of the 32-bit little-endian
// sub-command within a recognized message.
const subCommandOffset = 16

// SubCommandResetHostBuffer is the only sub-command this core recognizes:
// reset the host data buffer offset to zero.
const SubCommandResetHostBuffer = 8

// Handler receives decoded sub-commands under whatever lock the device
// requires; it is called synchronously from the notifier goroutine.
type Handler interface {
	ResetHostBufferOffset()
}

// Notifier listens on the ingress queue and dispatches recognized
// messages to a Handler. It runs on its own goroutine, never the emulator
// thread, per spec.md §5 (the device's MMIO callbacks must never block on
// the notifier).
type Notifier struct {
	queue   *shm.Queue
	handler Handler
	log     zerolog.Logger
	stop    chan struct{}
	done    chan struct{}
}

// New creates the ingress queue (draining any stale residue from a
// previous run) and returns a Notifier ready to Start.
func New(handler Handler, log zerolog.Logger) (*Notifier, error) {
	q, err := shm.CreateQueue(QueueName, MaxMessages, MessageSize, true)
	if err != nil {
		return nil, err
	}
	return &Notifier{
		queue:   q,
		handler: handler,
		log:     log.With().Str("component", "ingress").Logger(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start begins the listener goroutine. It self-registers a queue notifier
// and re-arms it after every delivery, per spec.md §4.4.
func (n *Notifier) Start() {
	go n.run()
}

func (n *Notifier) run() {
	defer close(n.done)
	arrived := make(chan struct{}, 1)
	n.arm(arrived)
	for {
		select {
		case <-n.stop:
			return
		case <-arrived:
			n.drain()
			n.arm(arrived)
		}
	}
}

func (n *Notifier) arm(arrived chan<- struct{}) {
	n.queue.SetNotifier(func() {
		select {
		case arrived <- struct{}{}:
		default:
		}
	})
}

// drain empties every message currently queued and applies recognized
// sub-commands, matching spec.md §4.4 steps 1-2.
func (n *Notifier) drain() {
	attrs, err := n.queue.GetAttrs()
	if err != nil {
		n.log.Warn().Err(err).Msg("could not query ingress queue attrs")
		return
	}
	for i := 0; i < attrs.CurrentMsgs; i++ {
		msg, err := n.queue.Receive()
		if err != nil {
			n.log.Warn().Err(err).Msg("ingress receive underflow")
			return
		}
		n.dispatch(msg.Data)
	}
}

func (n *Notifier) dispatch(data []byte) {
	if len(data) < subCommandOffset+4 || binary.LittleEndian.Uint32(data[0:4]) != Magic {
		n.log.Debug().Int("len", len(data)).Msg("discarding unrecognized ingress message")
		return
	}
	switch sub := binary.LittleEndian.Uint32(data[subCommandOffset : subCommandOffset+4]); sub {
	case SubCommandResetHostBuffer:
		n.handler.ResetHostBufferOffset()
	default:
		n.log.Debug().Uint32("subcommand", sub).Msg("discarding unknown ingress sub-command")
	}
}

// Stop deregisters the notifier (no further deliveries) and waits for the
// listener goroutine to exit, per spec.md §5's shutdown ordering.
func (n *Notifier) Stop() {
	close(n.stop)
	<-n.done
	n.queue.SetNotifier(nil)
}

// Close releases the backing queue.
func (n *Notifier) Close() error {
	return n.queue.Close()
}

// Unlink removes the backing queue from the filesystem.
func (n *Notifier) Unlink() error {
	return n.queue.Unlink()
}
