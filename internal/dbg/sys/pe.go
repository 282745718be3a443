package sys

import (
	"encoding/binary"
	"fmt"
)

// Offsets into the kernel image, relative to the kernel base.
const (
	KernelTimestamp = 0xF0
	KernelImageSize = 0x138
	// DOS header field holding the offset of the PE header.
	DOSPEOffset = 0x3C
)

// Offsets relative to the PE header.
const (
	PEExportDirectory = 0x78
)

// Offsets relative to the export directory.
const (
	ExportNumberOfFunctions  = 0x14
	ExportAddressOfFunctions = 0x1C
)

const rvaSize = 4

// ParseExportTable converts the raw AddressOfFunctions array into an
// ordinal-indexed table of absolute addresses. Entry 0 is unused because
// ordinals start at 1; zero RVAs stay zero.
func ParseExportTable(raw []byte, base uint32) []uint32 {
	n := len(raw) / rvaSize
	table := make([]uint32, n+1)
	for i := 0; i < n; i++ {
		rva := binary.LittleEndian.Uint32(raw[i*rvaSize:])
		if rva != 0 {
			table[i+1] = base + rva
		}
	}
	return table
}

// Version is a kernel build version in the order its bytes are stored.
type Version [4]uint8

// ParseVersion splits a little-endian packed version word.
func ParseVersion(v uint32) Version {
	return Version{uint8(v), uint8(v >> 8), uint8(v >> 16), uint8(v >> 24)}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}
