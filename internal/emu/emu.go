// Package emu defines the three callbacks the surrounding emulator
// supplies to the device model: reading and writing guest physical
// memory, and raising or lowering an IRQ line. Nothing else about the
// emulator (its memory bus, interrupt controller, or save/restore
// machinery) is modeled here — spec.md §1 scopes those out entirely.
package emu

// Host is the callback set a Device registers against. It mirrors
// machine_bus.go's Bus32 shape: plain methods, no hidden state, so a test
// can supply a fake without pulling in a real bus implementation.
type Host interface {
	// ReadGuestPhysical copies len(dst) bytes from guest physical memory
	// starting at addr into dst.
	ReadGuestPhysical(addr uint32, dst []byte)
	// WriteGuestPhysical copies src into guest physical memory starting
	// at addr.
	WriteGuestPhysical(addr uint32, src []byte)
	// SetIRQLine sets the named IRQ line's level. true asserts the line,
	// false lowers it, matching cpu_z80.go's SetIRQLine(assert bool).
	SetIRQLine(line int, assert bool)
}

// DeviceIdentity is what a device publishes to the emulator at
// registration time (spec.md §4.6 step 2).
type DeviceIdentity struct {
	Name       string
	BaseAddr   uint32
	WindowSize uint32
	NumIRQs    int
}
