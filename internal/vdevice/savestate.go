package vdevice

import (
	"encoding/binary"
	"fmt"
)

// saveStateSize is the version word plus the two persisted 32-bit fields,
// all big-endian (spec.md §6) — note this is the opposite byte order from
// the little-endian parameter-block mapping the same fields live in.
const saveStateSize = 4 + 4 + 4

// SaveState serializes the persisted-state schema: version, then
// int_status, int_enable, each 32-bit big-endian.
func (d *Device) SaveState() []byte {
	buf := make([]byte, saveStateSize)
	binary.BigEndian.PutUint32(buf[0:4], SaveStateVersion)
	binary.BigEndian.PutUint32(buf[4:8], d.intStatus())
	binary.BigEndian.PutUint32(buf[8:12], d.intEnable())
	return buf
}

// LoadState restores int_status and int_enable from a buffer produced by
// SaveState. It fails only on a version mismatch or a truncated buffer; a
// successful decode returns nil. The source's load path returns failure
// even on a successful decode (spec.md §9 flags this as likely a bug) —
// that behavior is not reproduced here.
func (d *Device) LoadState(data []byte) error {
	if len(data) < saveStateSize {
		return fmt.Errorf("vdevice: truncated save state (%d bytes, want %d)", len(data), saveStateSize)
	}
	version := binary.BigEndian.Uint32(data[0:4])
	if version != SaveStateVersion {
		return fmt.Errorf("vdevice: save state version mismatch: got %d, want %d", version, SaveStateVersion)
	}
	d.setIntStatus(binary.BigEndian.Uint32(data[4:8]))
	d.setIntEnable(binary.BigEndian.Uint32(data[8:12]))
	d.syncIRQ()
	return nil
}
