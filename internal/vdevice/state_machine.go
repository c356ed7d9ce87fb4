package vdevice

import "github.com/glbridge/vdevice/internal/dma"

// HandleRead services a guest read of the MMIO window at the given
// offset. The emulator's 8/16/32-bit read entrypoints all route here
// (spec.md §4.5): ReadByte/ReadWord/ReadLong simply truncate the result.
func (d *Device) HandleRead(offset uint32) uint32 {
	switch offset {
	case INT_STATUS:
		v := d.intStatus() & d.intEnable()
		if v != 0 {
			// Read-to-clear: a non-zero read both lowers the IRQ line and
			// consumes the status bits, so a second consecutive read with
			// no intervening event reports nothing pending.
			d.setIntStatus(0)
			d.host.SetIRQLine(0, false)
		}
		return v
	case INPUT_BUFFER_1_AVAILABLE:
		d.inputBuffer(1).WriteToGuest()
		return d.input1AvailableCount()
	case INPUT_BUFFER_2_AVAILABLE:
		d.inputBuffer(2).WriteToGuest()
		return d.input2AvailableCount()
	case HOST_COMMAND_REGION_WRITE_DONE:
		return d.socket.ReadReplyU32()
	default:
		d.log.Debug().Uint32("offset", offset).Msg("read of unknown register")
		return 0
	}
}

// HandleWrite services a guest write of val to offset. Unknown offsets are
// logged and ignored, never fatal (spec.md §7).
func (d *Device) HandleWrite(offset uint32, val uint32) {
	switch offset {
	case INITIALISE:
		d.handleInitialise(val)
	case SET_INPUT_BUFFER_1_ADDRESS:
		d.inputBuffer(1).SetGuestAddr(val)
	case SET_INPUT_BUFFER_2_ADDRESS:
		d.inputBuffer(2).SetGuestAddr(val)
	case SET_OUTPUT_BUFFER_1_ADDRESS:
		d.outputBuffer(1).SetGuestAddr(val)
	case SET_OUTPUT_BUFFER_2_ADDRESS:
		d.outputBuffer(2).SetGuestAddr(val)
	case OUTPUT_BUFFER_1_AVAILABLE:
		d.writeOutputAvailable(1, val)
	case OUTPUT_BUFFER_2_AVAILABLE:
		d.writeOutputAvailable(2, val)
	case START_INPUT:
		d.handleStartInput(val)
	case IOCTL_SYSTEM_RESET:
		d.handleSystemReset()
	case IOCTL_SIGNAL_BUFFER_SYNC:
		d.handleSignalBufferSync(val)
	case IOCTL_GRALLOC_ALLOCATED_REGION_INFO:
		d.log.Debug().Uint32("region_info", val).Msg("gralloc allocated region info (advisory)")
	default:
		d.log.Debug().Uint32("offset", offset).Uint32("val", val).Msg("write to unknown register")
	}
}

// ReadByte, ReadWord and ReadLong are the emulator's three read widths; all
// route to the same 32-bit handler (spec.md §4.5, §6).
func (d *Device) ReadByte(offset uint32) uint8  { return uint8(d.HandleRead(offset)) }
func (d *Device) ReadWord(offset uint32) uint16 { return uint16(d.HandleRead(offset)) }
func (d *Device) ReadLong(offset uint32) uint32 { return d.HandleRead(offset) }

// WriteByte, WriteWord and WriteLong are the emulator's three write widths.
func (d *Device) WriteByte(offset uint32, v uint8)  { d.HandleWrite(offset, uint32(v)) }
func (d *Device) WriteWord(offset uint32, v uint16) { d.HandleWrite(offset, uint32(v)) }
func (d *Device) WriteLong(offset uint32, v uint32) { d.HandleWrite(offset, v) }

func (d *Device) handleInitialise(enable uint32) {
	for _, b := range d.allBuffers() {
		b.Reset()
	}
	d.setCurrentOutputBuffer(0)
	d.setCurrentInputBuffer(0)
	d.setIntEnable(enable)
	d.setIntStatus(OUTPUT_BUFFER_1_EMPTY | OUTPUT_BUFFER_2_EMPTY)
	d.syncIRQ()
}

// writeOutputAvailable implements OUTPUT_BUFFER_n_AVAILABLE(len): bind the
// buffer as current if none is, flush it to the proxy, and apply the
// buffer rotation rule (spec.md §4.5).
//
// The per-command table documents "clear" for buffer 1's own empty bit and
// "set" for buffer 2's; that asymmetry is kept literally rather than
// smoothed into a symmetric rule — see DESIGN.md for the reasoning.
func (d *Device) writeOutputAvailable(n int, length uint32) {
	if d.currentOutputBuffer() == 0 {
		d.setCurrentOutputBuffer(uint32(n))
	}

	buf := d.outputBuffer(n)
	buf.SetLength(int(length))
	buf.ReadFromGuest()
	if err := d.socket.WriteBuffer(buf.HostPtr()); err != nil {
		d.log.Warn().Err(err).Int("buffer", n).Msg("egress write failed")
	}
	buf.Advance(buf.Length())
	buf.Reset()

	d.rotateOutput(n)

	if n == 1 {
		d.clearIntStatusBit(OUTPUT_BUFFER_1_EMPTY)
	} else {
		d.setIntStatusBit(OUTPUT_BUFFER_2_EMPTY)
	}
	d.syncIRQ()
}

// rotateOutput applies the buffer rotation rule once buffer n's transfer
// has drained to zero: rotate current_output_buffer to the other buffer
// iff it still has a pending length, else to 0.
func (d *Device) rotateOutput(n int) {
	o := otherBuffer(n)
	if d.outputBuffer(o).Length() > 0 {
		d.setCurrentOutputBuffer(uint32(o))
	} else {
		d.setCurrentOutputBuffer(0)
	}
}

func (d *Device) handleStartInput(count uint32) {
	if d.currentInputBuffer() == 0 {
		d.setCurrentInputBuffer(1)
	}
	d.inputBuffer(1).SetLength(int(count))
	d.inputBuffer(2).SetLength(int(count))
	d.setInput1AvailableCount(count)
	d.setInput2AvailableCount(count)
	d.clearIntStatusBit(INPUT_BUFFER_1_FULL)
	d.syncIRQ()
}

func (d *Device) handleSystemReset() {
	d.drainOutputToRing()
	if d.resetSem != nil {
		d.resetSem.Post()
	}
	for _, b := range d.allBuffers() {
		b.Reset()
	}
	d.setCurrentOutputBuffer(0)
	d.setCurrentInputBuffer(0)
	d.setHostDataBufferOffset(0)
	d.syncIRQ()
}

func (d *Device) handleSignalBufferSync(v uint32) {
	d.mu.Lock()
	d.params.set(offSignalType, IOCTL_SIGNAL_BUFFER_SYNC)
	d.params.set(offSignalValue, v)
	d.mu.Unlock()

	d.drainOutputToRing()
	if d.syncSem != nil {
		d.syncSem.Post()
	}
}

// drainOutputToRing flushes every output buffer that still holds a
// transfer, buffer 1 before buffer 2: it ships the bytes over the egress
// socket, copies them into the host ring and resets the buffer. It does
// not consult or update current_output_buffer, and the ring has no
// free-space accounting: a copy wraps at the end of the region and
// overwrites whatever was there.
func (d *Device) drainOutputToRing() {
	for n := 1; n <= 2; n++ {
		buf := d.outputBuffer(n)
		if buf.Length() == 0 {
			continue
		}
		buf.ReadFromGuest()
		payload := buf.HostPtr()
		if err := d.socket.WriteBuffer(payload); err != nil {
			d.log.Warn().Err(err).Int("buffer", n).Msg("egress flush failed")
		}
		d.copyIntoHostRing(payload)
		buf.Reset()
	}
}

// copyIntoHostRing writes payload into the host-data ring at the current
// host_data_buffer_offset, wrapping and advancing under the parameters
// mutex (this register is also touched by the ingress notifier).
func (d *Device) copyIntoHostRing(payload []byte) {
	ring := d.hostRegion.Bytes()
	if len(ring) == 0 || len(payload) == 0 {
		return
	}
	d.mu.Lock()
	off := int(d.params.get(offHostDataBufferOffset)) % len(ring)
	n := copy(ring[off:], payload)
	for n < len(payload) {
		n += copy(ring, payload[n:])
	}
	d.params.set(offHostDataBufferOffset, uint32((off+len(payload))%len(ring)))
	d.mu.Unlock()
}

// ResetHostBufferOffset implements ingress.Handler: the sole recognized
// ingress sub-command resets host_data_buffer_offset to 0 (spec.md §4.4).
func (d *Device) ResetHostBufferOffset() {
	d.setHostDataBufferOffset(0)
}

// syncIRQ recomputes the IRQ line from invariant 3 (spec.md §8): the line
// is high exactly when int_status & int_enable is non-zero. A non-zero
// INT_STATUS read lowers the line directly instead of calling this, after
// zeroing int_status, so the invariant still holds.
func (d *Device) syncIRQ() {
	d.host.SetIRQLine(0, d.intStatus()&d.intEnable() != 0)
}

func (d *Device) outputBuffer(n int) *dma.Buffer { return d.outputBuffers[n-1] }
func (d *Device) inputBuffer(n int) *dma.Buffer  { return d.inputBuffers[n-1] }

func (d *Device) allBuffers() []*dma.Buffer {
	return []*dma.Buffer{
		d.outputBuffers[0], d.outputBuffers[1],
		d.inputBuffers[0], d.inputBuffers[1],
	}
}

func otherBuffer(n int) int {
	if n == 1 {
		return 2
	}
	return 1
}

func (d *Device) intStatus() uint32               { return d.params.get(offIntStatus) }
func (d *Device) setIntStatus(v uint32)           { d.params.set(offIntStatus, v) }
func (d *Device) intEnable() uint32               { return d.params.get(offIntEnable) }
func (d *Device) setIntEnable(v uint32)           { d.params.set(offIntEnable, v) }
func (d *Device) currentOutputBuffer() uint32     { return d.params.get(offCurrentOutputBuffer) }
func (d *Device) setCurrentOutputBuffer(v uint32) { d.params.set(offCurrentOutputBuffer, v) }
func (d *Device) currentInputBuffer() uint32      { return d.params.get(offCurrentInputBuffer) }
func (d *Device) setCurrentInputBuffer(v uint32)  { d.params.set(offCurrentInputBuffer, v) }
func (d *Device) input1AvailableCount() uint32    { return d.params.get(offInput1AvailableCount) }
func (d *Device) setInput1AvailableCount(v uint32) {
	d.params.set(offInput1AvailableCount, v)
}
func (d *Device) input2AvailableCount() uint32 { return d.params.get(offInput2AvailableCount) }
func (d *Device) setInput2AvailableCount(v uint32) {
	d.params.set(offInput2AvailableCount, v)
}

func (d *Device) clearIntStatusBit(bit uint32) {
	d.setIntStatus(d.intStatus() &^ bit)
}

func (d *Device) setIntStatusBit(bit uint32) {
	d.setIntStatus(d.intStatus() | bit)
}

// setHostDataBufferOffset and hostDataBufferOffset are the one register
// touched by both the emulator thread and the ingress notifier, so both
// directions take the parameters mutex (spec.md §5).
func (d *Device) setHostDataBufferOffset(v uint32) {
	d.mu.Lock()
	d.params.set(offHostDataBufferOffset, v)
	d.mu.Unlock()
}

func (d *Device) hostDataBufferOffset() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params.get(offHostDataBufferOffset)
}
