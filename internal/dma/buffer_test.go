package dma

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMemory struct {
	mem map[uint32][]byte
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{mem: make(map[uint32][]byte)}
}

func (f *fakeMemory) ReadGuestPhysical(addr uint32, dst []byte) {
	src := f.mem[addr]
	copy(dst, src)
}

func (f *fakeMemory) WriteGuestPhysical(addr uint32, src []byte) {
	buf := make([]byte, len(src))
	copy(buf, src)
	f.mem[addr] = buf
}

func TestBuffer_SetLengthGrows(t *testing.T) {
	mem := newFakeMemory()
	b := New(1, mem)
	require.Equal(t, 0, b.Size())

	b.SetLength(16)
	require.Equal(t, 16, b.Size())
	require.Equal(t, 0, b.Offset())
	require.Equal(t, 16, b.Length())
	require.Equal(t, 16, b.Available())

	// growing again to a smaller length does not shrink the backing store
	b.SetLength(4)
	require.Equal(t, 16, b.Size())
	require.Equal(t, 4, b.Length())
}

func TestBuffer_SetLengthZero(t *testing.T) {
	mem := newFakeMemory()
	b := New(1, mem)
	b.SetLength(0)
	require.Equal(t, 0, b.Offset())
	require.Equal(t, 0, b.Length())
	require.Equal(t, 0, b.Available())
}

func TestBuffer_ReadWriteGuestRoundTrip(t *testing.T) {
	mem := newFakeMemory()
	b := New(1, mem)
	b.SetGuestAddr(0x40000000)
	b.SetLength(4)

	mem.mem[0x40000000] = []byte{0xDE, 0xAD, 0xBE, 0xEF}
	b.ReadFromGuest()
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, b.HostPtr())

	b.SetGuestAddr(0x40001000)
	b.WriteToGuest()
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, mem.mem[0x40001000])
}

func TestBuffer_AdvanceClampsToTransferLen(t *testing.T) {
	mem := newFakeMemory()
	b := New(2, mem)
	b.SetLength(8)
	b.Advance(5)
	require.Equal(t, 5, b.Offset())
	require.Equal(t, 3, b.Available())

	b.Advance(100)
	require.Equal(t, 8, b.Offset())
	require.Equal(t, 0, b.Available())
}

func TestBuffer_Reset(t *testing.T) {
	mem := newFakeMemory()
	b := New(1, mem)
	b.SetLength(8)
	b.Advance(4)
	b.Reset()
	require.Equal(t, 0, b.Offset())
	require.Equal(t, 0, b.Length())
	require.Equal(t, 8, b.Size(), "reset must not free storage")
}

func TestBuffer_Tag(t *testing.T) {
	mem := newFakeMemory()
	b := New(2, mem)
	require.Equal(t, byte('2'), b.Tag())
}
