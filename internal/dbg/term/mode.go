package term

import (
	xterm "golang.org/x/term"
)

type State struct {
	s  *xterm.State
	fd int
}

func IsTerminal(fd int) bool {
	return xterm.IsTerminal(fd)
}

// TerminalMode puts fd into raw mode and returns the state to restore.
func TerminalMode(fd int) (*State, error) {
	s, err := xterm.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &State{s: s, fd: fd}, nil
}

func (s *State) Restore() error {
	return xterm.Restore(s.fd, s.s)
}

// Size returns the width and height of the terminal on fd.
func Size(fd int) (int, int, error) {
	return xterm.GetSize(fd)
}
