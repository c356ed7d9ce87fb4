package vdevice

import "encoding/binary"

// Byte offsets of the register-file fields inside the shared parameter
// block, per SPEC_FULL.md §6. The register file lives inside the mapping
// rather than being copied into it: every accessor below reads/writes the
// mapped bytes directly.
const (
	offIntStatus            = 0x00
	offIntEnable            = 0x04
	offCurrentOutputBuffer  = 0x08
	offCurrentInputBuffer   = 0x0C
	offInput1AvailableCount = 0x10
	offInput2AvailableCount = 0x14
	offHostDataBufferOffset = 0x18
	offSignalType           = 0x1C
	offSignalValue          = 0x20

	// ParamBlockHeaderSize is the fixed, stable size of the register-file
	// header within the parameter block; BuildInfo (additive, not part
	// of the core spec) is appended after it.
	ParamBlockHeaderSize = 0x40

	// buildInfoSize is the room reserved for the additive BuildInfo block.
	buildInfoSize = 192

	// ParamBlockSize is the total size of the qemu_vd1_params mapping:
	// the stable register-file header plus the additive BuildInfo room.
	ParamBlockSize = ParamBlockHeaderSize + buildInfoSize
)

// paramBlock is a byte-offset view over the mapped parameter-block
// region. It intentionally exposes no Go struct over the shared bytes —
// spec.md §9 calls out "a struct laid out in shared memory" as exactly
// the kind of language-dependent sharing to avoid; a second process
// attaching by name only needs the offset table, not this type.
type paramBlock struct {
	bytes []byte
}

func newParamBlock(bytes []byte) paramBlock {
	return paramBlock{bytes: bytes}
}

func (p paramBlock) get(off int) uint32 {
	return binary.LittleEndian.Uint32(p.bytes[off : off+4])
}

func (p paramBlock) set(off int, v uint32) {
	binary.LittleEndian.PutUint32(p.bytes[off:off+4], v)
}

// BuildInfo is the additive diagnostic block appended after the register
// file header (SPEC_FULL.md §3, §6). It is never read by core device
// logic — only written, for a cooperating tool attached to the same
// shared region to read without a debugger.
type BuildInfo struct {
	Version string
	Commit  string
	BuiltAt string
}

// writeBuildInfo encodes info as a newline-joined string starting at
// ParamBlockHeaderSize, truncated to whatever room remains in the mapping.
func (p paramBlock) writeBuildInfo(info BuildInfo) {
	if len(p.bytes) <= ParamBlockHeaderSize {
		return
	}
	room := p.bytes[ParamBlockHeaderSize:]
	for i := range room {
		room[i] = 0
	}
	text := info.Version + "\n" + info.Commit + "\n" + info.BuiltAt
	copy(room, text)
}
