package vdevice

// MMIO window size and device identity, per spec.md §4.6 step 2.
const (
	WindowSize = 0x1000 // 4 KiB register window
	NumIRQs    = 1
	DeviceName = "virtual-device"
)

// Register offsets within the MMIO window. All three of the emulator's
// 8/16/32-bit read and write entrypoints route to the same 32-bit
// handler (spec.md §4.5), so only one set of offsets is needed.
//
// Reads (F900-style grouping kept for readability, not for any bit
// significance):
const (
	INT_STATUS                     = 0x00
	INPUT_BUFFER_1_AVAILABLE       = 0x04
	INPUT_BUFFER_2_AVAILABLE       = 0x08
	HOST_COMMAND_REGION_WRITE_DONE = 0x0C
)

// Writes:
const (
	INITIALISE                          = 0x10
	SET_INPUT_BUFFER_1_ADDRESS          = 0x14
	SET_INPUT_BUFFER_2_ADDRESS          = 0x18
	SET_OUTPUT_BUFFER_1_ADDRESS         = 0x1C
	SET_OUTPUT_BUFFER_2_ADDRESS         = 0x20
	OUTPUT_BUFFER_1_AVAILABLE           = 0x24
	OUTPUT_BUFFER_2_AVAILABLE           = 0x28
	START_INPUT                         = 0x2C
	IOCTL_SYSTEM_RESET                  = 0x30
	IOCTL_SIGNAL_BUFFER_SYNC            = 0x34
	IOCTL_GRALLOC_ALLOCATED_REGION_INFO = 0x38
)

// int_status / int_enable bit assignments.
const (
	OUTPUT_BUFFER_1_EMPTY = 1 << 0
	OUTPUT_BUFFER_2_EMPTY = 1 << 1
	INPUT_BUFFER_1_FULL   = 1 << 2
	INPUT_BUFFER_2_FULL   = 1 << 3
)

// Shared-resource names, per spec.md §6.
const (
	ParamsRegionName   = "qemu_vd1_params"
	HostBufferRegion   = "qemu_vd1_inputBuffer"
	SyncSemaphoreName  = "qemu_vd1_semaphore"
	ResetSemaphoreName = "qemu_vd1_systemReset_sem"
)

// HostBufferSize is the build-time constant sizing the host-side command
// ring (qemu_vd1_inputBuffer).
const HostBufferSize = 1 << 20 // 1 MiB

// Persisted-state schema (spec.md §6): version 2, two 32-bit big-endian
// fields, int_status then int_enable.
const SaveStateVersion = 2
