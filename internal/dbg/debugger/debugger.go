// Package debugger ties the XBDM subsystems to one console connection.
package debugger

import (
	"context"
	"sync"

	"gni.dev/xbox/internal/dbg/fs"
	"gni.dev/xbox/internal/dbg/kernel"
	"gni.dev/xbox/internal/dbg/mem"
	"gni.dev/xbox/internal/dbg/proc"
	"gni.dev/xbox/internal/dbg/xbdm"
)

type Options struct {
	xbdm.Options
	Kernel kernel.Options
}

// Xbox owns the session to one console. The subsystems it hands out
// borrow that session and stop working once Close is called.
type Xbox struct {
	s     *xbdm.Session
	mem   *mem.Memory
	proc  *proc.Process
	fs    *fs.FileSystem
	kopts kernel.Options

	kmu    sync.Mutex
	kernel *kernel.Kernel
}

func Connect(ctx context.Context, address string, opts Options) (*Xbox, error) {
	s, err := xbdm.Connect(ctx, address, opts.Options)
	if err != nil {
		return nil, err
	}
	return New(s, opts.Kernel), nil
}

// New wraps an established session.
func New(s *xbdm.Session, kopts kernel.Options) *Xbox {
	return &Xbox{
		s:     s,
		mem:   mem.New(s),
		proc:  proc.New(s),
		fs:    fs.New(s),
		kopts: kopts,
	}
}

func (x *Xbox) Session() *xbdm.Session {
	return x.s
}

func (x *Xbox) Memory() *mem.Memory {
	return x.mem
}

func (x *Xbox) Process() *proc.Process {
	return x.proc
}

func (x *Xbox) FileSystem() *fs.FileSystem {
	return x.fs
}

// Kernel reads the kernel header and export table on first use and keeps
// the result for the life of the connection.
func (x *Xbox) Kernel() (*kernel.Kernel, error) {
	x.kmu.Lock()
	defer x.kmu.Unlock()
	if x.kernel != nil {
		return x.kernel, nil
	}
	k, err := kernel.New(x.mem, x.kopts)
	if err != nil {
		return nil, err
	}
	x.kernel = k
	return k, nil
}

func (x *Xbox) Close() error {
	return x.s.Close()
}
