package shm

import "unsafe"

// ptr returns a pointer to the first byte of b, for atomic access to a
// mapped region's header fields. b must be at least as large as the type
// the caller intends to dereference.
func ptr(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}
