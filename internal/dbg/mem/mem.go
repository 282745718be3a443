// Package mem reads live console memory through an XBDM session.
//
// Console memory has unmapped gaps. Every read checks the pages it spans
// and bulk scans walk page by page, so an unmapped page is an ordinary
// outcome rather than a failure of the whole operation.
package mem

import (
	"encoding/binary"
	"fmt"
	"strings"

	"gni.dev/xbox/internal/dbg/xbdm"
)

// PageSize is the granularity of validity checks.
const PageSize = 0x1000

type PageState int

const (
	PageInvalid PageState = iota
	PageValid
)

func (s PageState) String() string {
	if s == PageValid {
		return "valid"
	}
	return "invalid"
}

// Region is a span of target addresses.
type Region struct {
	Addr uint32
	Size uint32
}

// End returns the first address past r. It may be 1<<32.
func (r Region) End() uint64 {
	return uint64(r.Addr) + uint64(r.Size)
}

// PartialReadError is returned with the valid prefix of a read that ran
// into an invalid page.
type PartialReadError struct {
	Addr      uint32
	Requested int
	Read      int
}

func (e *PartialReadError) Error() string {
	return fmt.Sprintf("mem: read at %#08x stopped after %d of %d bytes: page %#08x invalid",
		e.Addr, e.Read, e.Requested, PageBase(e.Addr+uint32(e.Read)))
}

func (e *PartialReadError) Unwrap() error {
	return xbdm.ErrAddressInvalid
}

// PageBase returns the start of the page containing addr.
func PageBase(addr uint32) uint32 {
	return addr &^ (PageSize - 1)
}

type Memory struct {
	s   *xbdm.Session
	log xbdm.Logger
}

func New(s *xbdm.Session) *Memory {
	return &Memory{s: s, log: s.Logger()}
}

// Logger returns the session logger.
func (m *Memory) Logger() xbdm.Logger {
	return m.log
}

// ProbePage reports whether the page holding addr is mapped. An error is
// only returned when the session itself failed.
func (m *Memory) ProbePage(addr uint32) (PageState, error) {
	resp, err := m.s.SendCommand("getmem addr=0x%08x length=1", addr)
	if err != nil {
		return PageInvalid, err
	}
	switch resp.Status() {
	case xbdm.StatusMultiline:
	case xbdm.StatusBinary:
		if _, err := m.s.ReceiveBinary(1); err != nil {
			return PageInvalid, err
		}
		return PageValid, nil
	default:
		return PageInvalid, nil
	}

	lines, err := m.s.ReceiveLines()
	if err != nil {
		return PageInvalid, err
	}
	if len(lines) == 0 || strings.HasPrefix(strings.TrimSpace(lines[0]), "??") {
		return PageInvalid, nil
	}
	return PageValid, nil
}

// IsValidAddress is a probe that never fails: a broken session reads as
// an invalid address and is logged.
func (m *Memory) IsValidAddress(addr uint32) bool {
	st, err := m.ProbePage(addr)
	if err != nil {
		m.log.Log(xbdm.LevelWarn, err, "probing %#08x failed", addr)
		return false
	}
	return st == PageValid
}

// ReadBytes reads n bytes at addr. If the first page is invalid it fails
// with xbdm.ErrAddressInvalid. If a later page is invalid it returns the
// bytes before that page together with a *PartialReadError.
func (m *Memory) ReadBytes(addr uint32, n int) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}
	end := uint64(addr) + uint64(n)
	if end > 1<<32 {
		return nil, fmt.Errorf("%w: %d bytes at %#08x overflow the address space", xbdm.ErrAddressInvalid, n, addr)
	}

	valid := 0
	for page := uint64(PageBase(addr)); page < end; page += PageSize {
		st, err := m.ProbePage(uint32(page))
		if err != nil {
			return nil, err
		}
		if st == PageInvalid {
			break
		}
		valid = int(min(page+PageSize, end) - uint64(addr))
	}
	if valid == 0 {
		return nil, fmt.Errorf("%w: %#08x", xbdm.ErrAddressInvalid, addr)
	}

	data, err := m.read(addr, valid)
	if err != nil {
		return nil, err
	}
	if valid < n {
		return data, &PartialReadError{Addr: addr, Requested: n, Read: valid}
	}
	return data, nil
}

// ReadPage reads the whole page at addr without probing it. Callers use it
// for pages a walk has already reported valid.
func (m *Memory) ReadPage(addr uint32) ([]byte, error) {
	if addr != PageBase(addr) {
		return nil, fmt.Errorf("mem: %#08x is not page aligned", addr)
	}
	return m.read(addr, PageSize)
}

func (m *Memory) ReadUint32(addr uint32) (uint32, error) {
	b, err := m.ReadBytes(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *Memory) ReadInt32(addr uint32) (int32, error) {
	v, err := m.ReadUint32(addr)
	return int32(v), err
}

func (m *Memory) read(addr uint32, n int) ([]byte, error) {
	cmd := fmt.Sprintf("getmem2 addr=0x%08x length=%d", addr, n)
	resp, err := m.s.SendCommandStrict("%s", cmd)
	if err != nil {
		return nil, err
	}
	switch resp.Status() {
	case xbdm.StatusBinary:
		return m.s.ReceiveBinary(n)
	case xbdm.StatusMultiline:
		if _, err := m.s.ReceiveLines(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %q answered %s", xbdm.ErrProtocol, cmd, resp)
}
