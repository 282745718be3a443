// Package fs browses and downloads files on the console.
package fs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gni.dev/xbox/internal/dbg/xbdm"
)

// FileEntry describes a remote file or directory at the time it was
// listed.
type FileEntry struct {
	Name    string
	Path    string
	Size    uint64
	Created time.Time
	Changed time.Time
	Dir     bool
}

type FileSystem struct {
	s   *xbdm.Session
	log xbdm.Logger
}

func New(s *xbdm.Session) *FileSystem {
	return &FileSystem{s: s, log: s.Logger()}
}

func (f *FileSystem) Logger() xbdm.Logger {
	return f.log
}

// Join appends name to a remote directory path.
func Join(dir, name string) string {
	if strings.HasSuffix(dir, `\`) {
		return dir + name
	}
	return dir + `\` + name
}

// Drives returns the root path of every mounted drive, such as `E:\`.
func (f *FileSystem) Drives() ([]string, error) {
	resp, err := f.s.SendCommandStrict("drivelist")
	if err != nil {
		return nil, err
	}

	var letters []string
	switch resp.Status() {
	case xbdm.StatusMultiline:
		lines, err := f.s.ReceiveLines()
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			rec, err := xbdm.ParseRecord(line)
			if err != nil {
				return nil, err
			}
			name, err := rec.Str("drivename")
			if err != nil {
				return nil, err
			}
			letters = append(letters, name)
		}
	case xbdm.StatusSuccess:
		for _, c := range resp.Message {
			letters = append(letters, string(c))
		}
	default:
		return nil, fmt.Errorf("%w: drivelist answered %s", xbdm.ErrProtocol, resp)
	}

	drives := make([]string, len(letters))
	for i, l := range letters {
		drives[i] = l + `:\`
	}
	return drives, nil
}

// List returns the entries of a remote directory.
func (f *FileSystem) List(dir string) ([]FileEntry, error) {
	if _, err := f.s.SendCommandStrict("dirlist name=%s", xbdm.Quote(dir)); err != nil {
		return nil, err
	}
	lines, err := f.s.ReceiveLines()
	if err != nil {
		return nil, err
	}

	entries := make([]FileEntry, 0, len(lines))
	for _, line := range lines {
		rec, err := xbdm.ParseRecord(line)
		if err != nil {
			return nil, err
		}
		e, err := parseEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("dirlist %s: %w", dir, err)
		}
		e.Path = Join(dir, e.Name)
		entries = append(entries, e)
	}
	return entries, nil
}

// Stat returns the attributes of a remote file.
func (f *FileSystem) Stat(path string) (FileEntry, error) {
	if _, err := f.s.SendCommandStrict("getfileattributes name=%s", xbdm.Quote(path)); err != nil {
		return FileEntry{}, err
	}
	lines, err := f.s.ReceiveLines()
	if err != nil {
		return FileEntry{}, err
	}
	if len(lines) == 0 {
		return FileEntry{}, fmt.Errorf("%w: no attributes for %s", xbdm.ErrProtocol, path)
	}
	rec, err := xbdm.ParseRecord(lines[0])
	if err != nil {
		return FileEntry{}, err
	}
	e, err := parseAttributes(rec)
	if err != nil {
		return FileEntry{}, err
	}
	e.Path = path
	e.Name = path[strings.LastIndexByte(path, '\\')+1:]
	return e, nil
}

// Download copies a remote file to w.
func (f *FileSystem) Download(remote string, w io.Writer) (int64, error) {
	resp, err := f.s.SendCommandStrict("getfile name=%s", xbdm.Quote(remote))
	if err != nil {
		return 0, err
	}
	if resp.Status() != xbdm.StatusBinary {
		if resp.Status() == xbdm.StatusMultiline {
			if _, err := f.s.ReceiveLines(); err != nil {
				return 0, err
			}
		}
		return 0, fmt.Errorf("%w: getfile answered %s", xbdm.ErrProtocol, resp)
	}
	return f.s.CopyBinary(w)
}

// DownloadFile copies a remote file to a new local file. A partial local
// file is removed on failure.
func (f *FileSystem) DownloadFile(remote, local string) error {
	f.log.Log(xbdm.LevelDebug, nil, "downloading %s to %s", remote, local)

	out, err := os.Create(local)
	if err != nil {
		return err
	}
	_, err = f.Download(remote, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(local)
		return err
	}
	return nil
}

func parseEntry(rec xbdm.Record) (FileEntry, error) {
	e, err := parseAttributes(rec)
	if err != nil {
		return FileEntry{}, err
	}
	e.Name, err = rec.Str("name")
	return e, err
}

func parseAttributes(rec xbdm.Record) (FileEntry, error) {
	r := xbdm.NewRecordReader(rec)
	e := FileEntry{
		Size:    uint64(r.Uint32("sizehi"))<<32 | uint64(r.Uint32("sizelo")),
		Created: xbdm.FileTime(r.Uint32("createhi"), r.Uint32("createlo")),
		Changed: xbdm.FileTime(r.Uint32("changehi"), r.Uint32("changelo")),
		Dir:     r.Flag("directory"),
	}
	return e, r.Err()
}
