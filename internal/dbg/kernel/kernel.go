// Package kernel inspects the running console kernel: its image header,
// export table and memory image.
package kernel

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"gni.dev/xbox/internal/dbg/mem"
	"gni.dev/xbox/internal/dbg/sys"
	"gni.dev/xbox/internal/dbg/xbdm"
)

// DefaultBase is where retail and most debug kernels are loaded.
const DefaultBase = 0x80010000

// maxExports bounds the export count read from the header.
const maxExports = 0x1000

type Options struct {
	// Base is the kernel load address. Zero means DefaultBase.
	Base uint32
}

// Kernel holds the header data and export table read at construction.
type Kernel struct {
	m   *mem.Memory
	log xbdm.Logger

	base    uint32
	size    uint32
	date    time.Time
	exports []uint32
}

// New reads the kernel header and export table.
func New(m *mem.Memory, opts Options) (*Kernel, error) {
	k := &Kernel{m: m, log: m.Logger(), base: opts.Base}
	if k.base == 0 {
		k.base = DefaultBase
	}

	var err error
	if k.exports, err = k.readExportTable(); err != nil {
		return nil, fmt.Errorf("kernel: export table: %w", err)
	}

	ts, err := m.ReadUint32(k.base + sys.KernelTimestamp)
	if err != nil {
		return nil, fmt.Errorf("kernel: timestamp: %w", err)
	}
	k.date = time.Unix(int64(ts), 0).UTC()

	if k.size, err = m.ReadUint32(k.base + sys.KernelImageSize); err != nil {
		return nil, fmt.Errorf("kernel: image size: %w", err)
	}

	k.log.Log(xbdm.LevelInfo, nil, "kernel at %#08x: %d exports, image size %#x", k.base, len(k.exports)-1, k.size)
	return k, nil
}

func (k *Kernel) readExportTable() ([]uint32, error) {
	k.log.Log(xbdm.LevelDebug, nil, "reading kernel export table")

	peOffset, err := k.m.ReadUint32(k.base + sys.DOSPEOffset)
	if err != nil {
		return nil, err
	}
	dir, err := k.m.ReadUint32(k.base + peOffset + sys.PEExportDirectory)
	if err != nil {
		return nil, err
	}
	count, err := k.m.ReadInt32(k.base + dir + sys.ExportNumberOfFunctions)
	if err != nil {
		return nil, err
	}
	if count < 0 || count > maxExports {
		return nil, fmt.Errorf("%w: export count %d", xbdm.ErrProtocol, count)
	}
	funcs, err := k.m.ReadUint32(k.base + dir + sys.ExportAddressOfFunctions)
	if err != nil {
		return nil, err
	}
	raw, err := k.m.ReadBytes(k.base+funcs, int(count)*4)
	if err != nil {
		return nil, err
	}
	return sys.ParseExportTable(raw, k.base), nil
}

func (k *Kernel) Base() uint32 {
	return k.base
}

// Size is the declared image size. The image may not be contiguous.
func (k *Kernel) Size() uint32 {
	return k.size
}

// Date is the kernel build time.
func (k *Kernel) Date() time.Time {
	return k.date
}

// Exports returns a copy of the ordinal-indexed export table.
func (k *Kernel) Exports() []uint32 {
	return append([]uint32(nil), k.exports...)
}

// ExportAddress returns the address exported under ordinal. Ordinal 0 and
// unresolved entries give 0.
func (k *Kernel) ExportAddress(ordinal int) (uint32, error) {
	k.log.Log(xbdm.LevelTrace, nil, "looking up kernel export %d", ordinal)
	if ordinal < 0 || ordinal >= len(k.exports) {
		return 0, fmt.Errorf("%w: kernel export ordinal %d (table has %d)", xbdm.ErrNotFound, ordinal, len(k.exports))
	}
	return k.exports[ordinal], nil
}

// Export resolves a well-known export by name.
func (k *Kernel) Export(name string) (uint32, error) {
	ordinal, ok := Ordinals[name]
	if !ok {
		return 0, fmt.Errorf("%w: kernel export %q", xbdm.ErrNotFound, name)
	}
	addr, err := k.ExportAddress(ordinal)
	if err != nil {
		return 0, err
	}
	if addr == 0 {
		return 0, fmt.Errorf("%w: kernel export %q unresolved", xbdm.ErrNotFound, name)
	}
	return addr, nil
}

// Version reads the kernel build version.
func (k *Kernel) Version() (sys.Version, error) {
	addr, err := k.Export("XboxKrnlVersion")
	if err != nil {
		return sys.Version{}, err
	}
	v, err := k.m.ReadUint32(addr)
	if err != nil {
		return sys.Version{}, err
	}
	return sys.ParseVersion(v), nil
}

// Dump writes the kernel image to path. See DumpTo.
func (k *Kernel) Dump(path string) (int64, error) {
	k.log.Log(xbdm.LevelInfo, nil, "dumping kernel to %s", path)

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	n, err := k.DumpTo(bw)
	if err != nil {
		return n, err
	}
	if err := bw.Flush(); err != nil {
		return n, err
	}
	if err := f.Close(); err != nil {
		return n, err
	}
	k.log.Log(xbdm.LevelInfo, nil, "kernel dump complete: %d bytes", n)
	return n, nil
}

// DumpTo writes every valid page of the kernel image to w in ascending
// order. Invalid pages are left out, so the output may be shorter than
// Size.
func (k *Kernel) DumpTo(w io.Writer) (int64, error) {
	var written int64
	r := mem.Region{Addr: k.base, Size: k.size}
	err := k.m.WalkPages(r, func(addr uint32, st mem.PageState) error {
		if st == mem.PageInvalid {
			k.log.Log(xbdm.LevelDebug, nil, "skipping invalid page %#08x", addr)
			return nil
		}
		page, err := k.m.ReadPage(addr)
		if err != nil {
			return err
		}
		n, err := w.Write(page)
		written += int64(n)
		return err
	})
	return written, err
}
