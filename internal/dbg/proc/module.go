package proc

import (
	"fmt"
	"strings"
	"time"

	"gni.dev/xbox/internal/dbg/xbdm"
)

type Section struct {
	Name  string
	Base  uint32
	Size  uint32
	Index int
	Flags uint32
}

type Module struct {
	Name      string
	Base      uint32
	Size      uint32
	Checksum  uint32
	Timestamp time.Time
	Sections  []Section
}

// Modules lists the loaded modules with their sections.
func (p *Process) Modules() ([]Module, error) {
	lines, err := p.query("modules")
	if err != nil {
		return nil, err
	}

	modules := make([]Module, 0, len(lines))
	for _, line := range lines {
		m, err := parseModule(line)
		if err != nil {
			return nil, err
		}
		if m.Sections, err = p.sections(m.Name); err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	p.log.Log(xbdm.LevelDebug, nil, "%d modules loaded", len(modules))
	return modules, nil
}

// Module finds a loaded module by name, ignoring case.
func (p *Process) Module(name string) (Module, error) {
	modules, err := p.Modules()
	if err != nil {
		return Module{}, err
	}
	for _, m := range modules {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return Module{}, fmt.Errorf("%w: module %q", xbdm.ErrNotFound, name)
}

func (p *Process) sections(module string) ([]Section, error) {
	lines, err := p.query("modsections name=%s", xbdm.Quote(module))
	if err != nil {
		return nil, err
	}
	sections := make([]Section, 0, len(lines))
	for _, line := range lines {
		s, err := parseSection(line)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", module, err)
		}
		sections = append(sections, s)
	}
	return sections, nil
}

func parseModule(line string) (Module, error) {
	rec, err := xbdm.ParseRecord(line)
	if err != nil {
		return Module{}, err
	}
	r := xbdm.NewRecordReader(rec)
	m := Module{
		Name:      r.Str("name"),
		Base:      r.Uint32("base"),
		Size:      r.Uint32("size"),
		Checksum:  r.Uint32("check"),
		Timestamp: time.Unix(int64(r.Uint32("timestamp")), 0).UTC(),
	}
	return m, r.Err()
}

func parseSection(line string) (Section, error) {
	rec, err := xbdm.ParseRecord(line)
	if err != nil {
		return Section{}, err
	}
	r := xbdm.NewRecordReader(rec)
	s := Section{
		Name:  r.Str("name"),
		Base:  r.Uint32("base"),
		Size:  r.Uint32("size"),
		Index: r.Int("index"),
		Flags: r.Uint32("flags"),
	}
	return s, r.Err()
}
