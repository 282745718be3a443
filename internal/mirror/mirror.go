// Package mirror copies every drive of a console to a local directory.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gni.dev/xbox/internal/dbg/fs"
	"gni.dev/xbox/internal/dbg/xbdm"
)

// Stats counts the work done by one mirror run.
type Stats struct {
	Dirs    int
	Files   int
	Skipped int
	Failed  int
	Bytes   uint64
}

type Mirror struct {
	fs   *fs.FileSystem
	root string
	log  xbdm.Logger
}

// New mirrors into root, one subdirectory per drive letter.
func New(f *fs.FileSystem, root string) *Mirror {
	return &Mirror{fs: f, root: root, log: f.Logger()}
}

// Run mirrors every drive. Files that already exist locally are left
// alone. Remote entries that disappear while mirroring are logged and
// skipped; any other error stops the run.
func (m *Mirror) Run(ctx context.Context) (Stats, error) {
	var st Stats
	drives, err := m.fs.Drives()
	if err != nil {
		return st, err
	}
	for _, drive := range drives {
		letter := strings.TrimSuffix(drive, `:\`)
		if !isLocalName(letter) {
			m.log.Log(xbdm.LevelWarn, nil, "skipping drive %q", drive)
			st.Failed++
			continue
		}
		if err := m.dir(ctx, drive, filepath.Join(m.root, letter), &st); err != nil {
			return st, err
		}
	}
	return st, nil
}

// Drive mirrors a single drive root such as `E:\`.
func (m *Mirror) Drive(ctx context.Context, drive string) (Stats, error) {
	var st Stats
	letter := strings.TrimSuffix(drive, `:\`)
	if !isLocalName(letter) {
		return st, fmt.Errorf("mirror: invalid drive %q", drive)
	}
	err := m.dir(ctx, drive, filepath.Join(m.root, letter), &st)
	return st, err
}

// isLocalName reports whether name is a single path element that stays
// inside the directory it is joined to.
func isLocalName(name string) bool {
	return name != "" && name != "." && !strings.ContainsAny(name, `/\`) && filepath.IsLocal(name)
}

func (m *Mirror) dir(ctx context.Context, remote, local string, st *Stats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := m.fs.List(remote)
	if errors.Is(err, xbdm.ErrNotFound) {
		m.log.Log(xbdm.LevelWarn, err, "skipping %s", remote)
		st.Failed++
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(local, 0o755); err != nil {
		return err
	}
	st.Dirs++

	for _, e := range entries {
		if !isLocalName(e.Name) {
			m.log.Log(xbdm.LevelWarn, nil, "skipping %s: unsafe local name %q", e.Path, e.Name)
			st.Failed++
			continue
		}
		dst := filepath.Join(local, e.Name)
		if e.Dir {
			if err := m.dir(ctx, e.Path, dst, st); err != nil {
				return err
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := os.Stat(dst); err == nil {
			st.Skipped++
			continue
		}
		m.log.Log(xbdm.LevelInfo, nil, "copying %s", e.Path)
		err := m.fs.DownloadFile(e.Path, dst)
		if errors.Is(err, xbdm.ErrNotFound) {
			m.log.Log(xbdm.LevelWarn, err, "skipping %s", e.Path)
			st.Failed++
			continue
		}
		if err != nil {
			return err
		}
		st.Files++
		st.Bytes += e.Size
	}
	return nil
}
