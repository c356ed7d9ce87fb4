// Package dma implements a single directional DMA buffer: a host-owned
// backing store bound to a guest physical address, with independent
// fill/drain cursors that grow the backing store on demand.
package dma

import "fmt"

// GuestMemory is the subset of the emulator's memory bus a buffer needs to
// move bytes to and from guest physical memory.
type GuestMemory interface {
	ReadGuestPhysical(addr uint32, dst []byte)
	WriteGuestPhysical(addr uint32, src []byte)
}

// Buffer is one directional DMA buffer (an input or an output buffer).
// Invariant: 0 <= offset <= transferLen <= size, and hostPtr is non-nil
// whenever size > 0.
type Buffer struct {
	tag         byte
	number      int
	size        int
	guestAddr   uint32
	hostPtr     []byte
	transferLen int
	offset      int
	mem         GuestMemory
}

// New creates buffer `number` (used only to stamp the debug tag) bound to
// the given guest-memory callback set, with zero capacity. Storage is
// allocated lazily by SetLength.
func New(number int, mem GuestMemory) *Buffer {
	return &Buffer{
		tag:    byte('0' + number),
		number: number,
		mem:    mem,
	}
}

// Reset clears the cursors without freeing the backing store.
func (b *Buffer) Reset() {
	b.offset = 0
	b.transferLen = 0
}

// SetLength arms the buffer for a transfer of length l, resetting the
// cursor to 0 and growing the backing store if l exceeds current capacity.
// Growing does not preserve prior contents: SetLength always precedes
// fresh I/O.
func (b *Buffer) SetLength(l int) {
	b.transferLen = l
	b.offset = 0
	if l > b.size {
		b.hostPtr = make([]byte, l)
		b.size = l
	}
}

// Length reports the current transfer length.
func (b *Buffer) Length() int {
	return b.transferLen
}

// Available reports the bytes remaining between offset and transferLen.
func (b *Buffer) Available() int {
	return b.transferLen - b.offset
}

// SetGuestAddr binds the buffer to a guest physical address.
func (b *Buffer) SetGuestAddr(addr uint32) {
	b.guestAddr = addr
}

// GuestAddr reports the bound guest physical address.
func (b *Buffer) GuestAddr() uint32 {
	return b.guestAddr
}

// SetHostAddr rebinds the buffer to an externally managed backing region,
// used only when the buffer is not privately heap-owned.
func (b *Buffer) SetHostAddr(p []byte) {
	b.hostPtr = p
	b.size = len(p)
}

// HostPtr returns the current backing store, sized to transferLen.
func (b *Buffer) HostPtr() []byte {
	if b.transferLen > len(b.hostPtr) {
		return b.hostPtr
	}
	return b.hostPtr[:b.transferLen]
}

// ReadFromGuest pulls transferLen bytes from guestAddr into the backing
// store.
func (b *Buffer) ReadFromGuest() {
	if b.transferLen == 0 {
		return
	}
	b.mem.ReadGuestPhysical(b.guestAddr, b.hostPtr[:b.transferLen])
}

// WriteToGuest pushes transferLen bytes from the backing store to
// guestAddr.
func (b *Buffer) WriteToGuest() {
	if b.transferLen == 0 {
		return
	}
	b.mem.WriteGuestPhysical(b.guestAddr, b.hostPtr[:b.transferLen])
}

// Tag returns the debug-only ASCII digit tag for this buffer.
func (b *Buffer) Tag() byte {
	return b.tag
}

// Advance moves the drain/fill cursor forward by n bytes, clamped to
// transferLen. It panics on a negative n, which would violate the
// 0 <= offset <= transferLen invariant.
func (b *Buffer) Advance(n int) {
	if n < 0 {
		panic(fmt.Sprintf("dma: negative advance %d", n))
	}
	b.offset += n
	if b.offset > b.transferLen {
		b.offset = b.transferLen
	}
}

// Offset reports the current cursor position.
func (b *Buffer) Offset() int {
	return b.offset
}

// Size reports the backing store's capacity.
func (b *Buffer) Size() int {
	return b.size
}
