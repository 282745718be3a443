package term

import (
	"fmt"
	"io"

	xterm "golang.org/x/term"
)

type Term struct {
	t   *xterm.Terminal
	cmd *Commands
}

// New returns a shell reading commands from rw. Command output is written
// back to rw through the line editor.
func New(rw io.ReadWriter, prompt string, dial DialFunc) *Term {
	t := xterm.NewTerminal(rw, prompt)
	return &Term{
		t:   t,
		cmd: NewCommands(t, dial),
	}
}

func (t *Term) Commands() *Commands {
	return t.cmd
}

// Run executes initCmd, if any, then reads and executes lines until the
// input ends or an exit command is given.
func (t *Term) Run(initCmd string) error {
	if initCmd != "" {
		if err := t.cmd.Process(initCmd); err != nil {
			t.cmd.Close()
			return err
		}
	}
	for {
		line, err := t.t.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.cmd.Close()
			return err
		}

		if line == "" {
			continue
		}

		if err := t.cmd.Process(line); err != nil {
			if err == io.EOF {
				break
			}
			fmt.Fprintf(t.t, "%sCommand failed: %s%s\n", t.t.Escape.Red, err, t.t.Escape.Reset)
		}
	}
	return t.cmd.Close()
}

// SetSize tells the line editor the terminal width and height.
func (t *Term) SetSize(width, height int) error {
	return t.t.SetSize(width, height)
}
