package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ErrQueueEmpty is returned by Receive/ReceiveTimeout when no message is
// available within the requested window.
var ErrQueueEmpty = errors.New("shm: queue empty")

// Message is one queue entry together with the priority it was sent at.
type Message struct {
	Data     []byte
	Priority int
}

// Notifier is delivered at most once per registration; SetNotifier must be
// called again to arm the next delivery.
type Notifier func()

// Queue is a small file-system-backed stand-in for a POSIX message queue:
// each message is a sequentially numbered frame file inside a named
// directory. x/sys/unix has no mq_open binding without cgo (see
// DESIGN.md), so this satisfies the same create/open/send/receive
// contract over plain files, which is enough for same-host cooperating
// processes to poll or be notified.
type Queue struct {
	dir         string
	maxMsgs     int
	msgSize     int
	nonblocking bool

	mu       sync.Mutex
	notifier Notifier
	seq      uint64
}

// CreateQueue creates the named queue directory, clearing any stale frames
// left over from a previous run.
func CreateQueue(name string, maxMsgs, msgSize int, nonblocking bool) (*Queue, error) {
	path := filepath.Join(dir, "mq-"+sanitize(name))
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("shm: create queue %s: %w", name, err)
	}
	q := &Queue{dir: path, maxMsgs: maxMsgs, msgSize: msgSize, nonblocking: nonblocking}
	return q, q.drain()
}

// OpenQueue attaches to an already-created queue by name.
func OpenQueue(name string, maxMsgs, msgSize int, nonblocking bool) (*Queue, error) {
	path := filepath.Join(dir, "mq-"+sanitize(name))
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("shm: open queue %s: %w", name, err)
	}
	return &Queue{dir: path, maxMsgs: maxMsgs, msgSize: msgSize, nonblocking: nonblocking}, nil
}

// Send writes a message with the given priority. Larger priority values
// are drained first.
func (q *Queue) Send(data []byte, priority int) error {
	if len(data) > q.msgSize {
		return fmt.Errorf("shm: message too large (%d > %d)", len(data), q.msgSize)
	}
	q.mu.Lock()
	q.seq++
	seq := q.seq
	q.mu.Unlock()

	name := fmt.Sprintf("%020d-%08d.msg", invertPriority(priority), seq)
	path := filepath.Join(q.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("shm: send: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("shm: send: %w", err)
	}
	q.notify()
	return nil
}

// Receive returns the oldest, highest-priority message. If the queue was
// created nonblocking, it returns ErrQueueEmpty immediately when nothing is
// pending; otherwise it blocks until a message arrives.
func (q *Queue) Receive() (Message, error) {
	if q.nonblocking {
		return q.tryReceive()
	}
	return q.receiveWithin(-1)
}

// ReceiveTimeout waits up to the given duration for a message, regardless
// of the queue's own blocking mode.
func (q *Queue) ReceiveTimeout(d time.Duration) (Message, error) {
	return q.receiveWithin(d)
}

func (q *Queue) tryReceive() (Message, error) {
	entries, err := q.sortedFrames()
	if err != nil {
		return Message{}, err
	}
	if len(entries) == 0 {
		return Message{}, ErrQueueEmpty
	}
	path := filepath.Join(q.dir, entries[0])
	data, err := os.ReadFile(path)
	if err != nil {
		return Message{}, err
	}
	os.Remove(path)
	return Message{Data: data, Priority: priorityFromName(entries[0])}, nil
}

// receiveWithin polls until a message arrives or d elapses. d < 0 means
// wait indefinitely.
func (q *Queue) receiveWithin(d time.Duration) (Message, error) {
	deadline := time.Now().Add(d)
	for {
		msg, err := q.tryReceive()
		if err == nil {
			return msg, nil
		}
		if d >= 0 && time.Now().After(deadline) {
			return Message{}, ErrQueueEmpty
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Attrs mirrors the subset of mq_getattr fields the notifier needs.
type Attrs struct {
	MaxMsgs        int
	MsgSize        int
	CurrentMsgs    int
	NonBlocking    bool
}

// GetAttrs reports the queue's static limits and current depth.
func (q *Queue) GetAttrs() (Attrs, error) {
	entries, err := q.sortedFrames()
	if err != nil {
		return Attrs{}, err
	}
	return Attrs{MaxMsgs: q.maxMsgs, MsgSize: q.msgSize, CurrentMsgs: len(entries), NonBlocking: q.nonblocking}, nil
}

// SetNotifier arms a one-shot callback fired on the next Send through this
// Queue value, whether or not other messages are already pending. Firing
// disarms it; passing nil disarms it without firing.
func (q *Queue) SetNotifier(n Notifier) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notifier = n
}

func (q *Queue) notify() {
	q.mu.Lock()
	n := q.notifier
	q.notifier = nil
	q.mu.Unlock()
	if n != nil {
		go n()
	}
}

// Close releases any in-process resources; the queue's on-disk frames
// survive so late-opening processes still observe them.
func (q *Queue) Close() error {
	return nil
}

// Unlink removes the queue directory and all pending frames.
func (q *Queue) Unlink() error {
	return os.RemoveAll(q.dir)
}

func (q *Queue) drain() error {
	entries, err := q.sortedFrames()
	if err != nil {
		return err
	}
	for _, e := range entries {
		os.Remove(filepath.Join(q.dir, e))
	}
	return nil
}

func (q *Queue) sortedFrames() ([]string, error) {
	f, err := os.Open(q.dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	var frames []string
	for _, n := range names {
		if filepath.Ext(n) == ".msg" {
			frames = append(frames, n)
		}
	}
	sort.Strings(frames)
	return frames, nil
}

func invertPriority(priority int) int {
	// Sorting frame names lexically ascending must yield highest-priority
	// first, so invert into a descending key.
	const maxPriority = 1 << 20
	return maxPriority - priority
}

func priorityFromName(name string) int {
	const maxPriority = 1 << 20
	base := name
	if i := len(name); i >= 20 {
		base = name[:20]
	}
	v, err := strconv.Atoi(base)
	if err != nil {
		return 0
	}
	return maxPriority - v
}
