package mem

import (
	"bytes"

	"gni.dev/xbox/internal/dbg/xbdm"
)

// WalkFunc is called for every page of a walk in ascending order. A non-nil
// return stops the walk and is returned by WalkPages.
type WalkFunc func(addr uint32, state PageState) error

// WalkPages probes each page overlapping r and reports its state to fn.
// A session failure stops the walk.
func (m *Memory) WalkPages(r Region, fn WalkFunc) error {
	for page := uint64(PageBase(r.Addr)); page < r.End(); page += PageSize {
		st, err := m.ProbePage(uint32(page))
		if err != nil {
			return err
		}
		if st == PageInvalid {
			m.log.Log(xbdm.LevelTrace, nil, "page %#08x invalid", page)
		}
		if err := fn(uint32(page), st); err != nil {
			return err
		}
	}
	return nil
}

// Scan returns the addresses in r where pattern occurs, searching valid
// pages only. Matches may straddle two adjacent valid pages.
func (m *Memory) Scan(r Region, pattern []byte) ([]uint32, error) {
	if len(pattern) == 0 {
		return nil, nil
	}
	var (
		found   []uint32
		tail    []byte
		tailEnd uint64
	)
	err := m.WalkPages(r, func(addr uint32, st PageState) error {
		if st == PageInvalid {
			tail = nil
			return nil
		}
		page, err := m.ReadPage(addr)
		if err != nil {
			return err
		}

		buf, base := page, uint64(addr)
		if tail != nil && tailEnd == uint64(addr) {
			buf = append(append([]byte(nil), tail...), page...)
			base -= uint64(len(tail))
		}
		for off := 0; ; off++ {
			i := bytes.Index(buf[off:], pattern)
			if i == -1 {
				break
			}
			off += i
			at := base + uint64(off)
			if at >= uint64(r.Addr) && at+uint64(len(pattern)) <= r.End() {
				found = append(found, uint32(at))
			}
		}

		keep := min(len(pattern)-1, len(page))
		tail = append([]byte(nil), page[len(page)-keep:]...)
		tailEnd = uint64(addr) + PageSize
		return nil
	})
	return found, err
}
