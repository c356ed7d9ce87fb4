package shm

import (
	"fmt"
	"sync/atomic"
)

// Semaphore is a named one-shot wakeup counter backed by a shared-memory
// region. The core only ever posts to it; the numeric value is never
// inspected here, only exposed for whichever cooperating process consumes
// it via the same name.
type Semaphore struct {
	region *Region
}

// OpenSemaphore creates the named semaphore if it does not already exist,
// with an initial count of 0, and maps it.
func OpenSemaphore(name string) (*Semaphore, error) {
	region, err := Create(name, 8)
	if err != nil {
		return nil, fmt.Errorf("shm: open semaphore %s: %w", name, err)
	}
	return &Semaphore{region: region}, nil
}

// Post increments the semaphore's counter by one and returns. It never
// blocks and never fails on a missing waiter.
func (s *Semaphore) Post() {
	counter := (*uint64)(ptr(s.region.Bytes()))
	atomic.AddUint64(counter, 1)
}

// CloseAndUnlink unmaps and removes the semaphore's backing region.
func (s *Semaphore) CloseAndUnlink() error {
	return s.region.Close()
}
