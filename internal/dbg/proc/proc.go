// Package proc enumerates the modules and threads of the running title.
// Every query is a fresh round trip to the console; nothing is cached.
package proc

import "gni.dev/xbox/internal/dbg/xbdm"

type Process struct {
	s   *xbdm.Session
	log xbdm.Logger
}

func New(s *xbdm.Session) *Process {
	return &Process{s: s, log: s.Logger()}
}

// query sends a strict command and drains its multiline response.
func (p *Process) query(format string, args ...any) ([]string, error) {
	if _, err := p.s.SendCommandStrict(format, args...); err != nil {
		return nil, err
	}
	return p.s.ReceiveLines()
}
