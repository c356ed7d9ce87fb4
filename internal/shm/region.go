// Package shm implements the host-side shared-memory, named-semaphore and
// named-queue primitives a device assembly needs to publish state to
// cooperating processes and to wake them.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrInvalidSize is returned when a region is created with size <= 0.
var ErrInvalidSize = errors.New("shm: invalid size")

// dir is where named regions are backed. POSIX shm_open uses /dev/shm on
// Linux; we open files there directly rather than binding sem_open/shm_open
// via cgo, since x/sys/unix does not wrap either.
var dir = "/dev/shm"

// Region is a mapped named shared-memory object.
type Region struct {
	name string
	data []byte
	fd   int
}

// Create creates (or truncates) a named region of the given size and maps
// it read/write. Size must be > 0.
func Create(name string, size int) (*Region, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	path := filepath.Join(dir, sanitize(name))
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", name, err)
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: ftruncate %s: %w", name, err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap %s: %w", name, err)
	}

	return &Region{name: name, data: data, fd: fd}, nil
}

// Bytes returns the mapped region's backing slice. Writes are visible to
// every process that has the same name open.
func (r *Region) Bytes() []byte {
	return r.data
}

// Close unmaps and unlinks the region.
func (r *Region) Close() error {
	var errs []error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			errs = append(errs, err)
		}
		r.data = nil
	}
	if r.fd >= 0 {
		unix.Close(r.fd)
		r.fd = -1
	}
	if err := os.Remove(filepath.Join(dir, sanitize(r.name))); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func sanitize(name string) string {
	// Names come from Options or fixed constants ("qemu_vd1_*",
	// "/gles2emulator_msgQInput"); keep only the last path element so a
	// leading or embedded separator cannot escape dir.
	return filepath.Base(name)
}
