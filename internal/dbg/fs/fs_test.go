package fs

import (
	"bytes"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gni.dev/xbox/internal/dbg/test"
	"gni.dev/xbox/internal/dbg/xbdm"
)

func TestMain(m *testing.M) {
	os.Exit(test.Run(m))
}

var remoteFiles = map[string]string{
	`E:\xbdm.ini`:       "[xbdm]\r\n",
	`E:\games\save.dat`: "SAVE",
	`E:\say "hi".txt`:   "HI",
}

func newFileSystem(t *testing.T) (*FileSystem, *test.Console) {
	t.Helper()
	con, err := test.NewConsole()
	require.NoError(t, err)
	con.Handle("drivelist", func(r *test.Reply, args string) {
		r.Lines(`drivename="C"`, `drivename="E"`)
	})
	con.Handle("dirlist", func(r *test.Reply, args string) {
		switch test.QuotedArg(args, "name") {
		case `E:\`:
			r.Lines(
				`name="games" sizehi=0x0 sizelo=0x0 createhi=0x01d6b3a4 createlo=0x5c2d8000 changehi=0x01d6b3a4 changelo=0x5c2d8000 directory`,
				`name="xbdm.ini" sizehi=0x0 sizelo=0x8 createhi=0x01d6b3a4 createlo=0x5c2d8000 changehi=0x01d6b3a4 changelo=0x5c2d8000`,
			)
		case `E:\games`:
			r.Lines(`name="save.dat" sizehi=0x1 sizelo=0x4 createhi=0x0 createlo=0x0 changehi=0x0 changelo=0x0`)
		default:
			r.Status(xbdm.CodeFileNotFound, "file not found")
		}
	})
	con.Handle("getfileattributes", func(r *test.Reply, args string) {
		data, ok := remoteFiles[test.QuotedArg(args, "name")]
		if !ok {
			r.Status(xbdm.CodeFileNotFound, "file not found")
			return
		}
		r.Lines(`sizehi=0x0 sizelo=` + strconv.Itoa(len(data)) + ` createhi=0x0 createlo=0x0 changehi=0x0 changelo=0x0`)
	})
	con.Handle("getfile", func(r *test.Reply, args string) {
		data, ok := remoteFiles[test.QuotedArg(args, "name")]
		if !ok {
			r.Status(xbdm.CodeFileNotFound, "file not found")
			return
		}
		r.SizedBinary([]byte(data))
	})

	s, err := con.Connect()
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		con.Close()
	})
	return New(s), con
}

func TestDrives(t *testing.T) {
	f, _ := newFileSystem(t)

	drives, err := f.Drives()
	assert.NoError(t, err)
	assert.Equal(t, []string{`C:\`, `E:\`}, drives)
}

func TestList(t *testing.T) {
	f, con := newFileSystem(t)

	entries, err := f.List(`E:\`)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "games", entries[0].Name)
	assert.Equal(t, `E:\games`, entries[0].Path)
	assert.True(t, entries[0].Dir)
	assert.Equal(t, 2020, entries[0].Created.Year())
	assert.Equal(t, `E:\xbdm.ini`, entries[1].Path)
	assert.False(t, entries[1].Dir)
	assert.Equal(t, uint64(8), entries[1].Size)

	entries, err = f.List(`E:\games`)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, `E:\games\save.dat`, entries[0].Path)
	assert.Equal(t, uint64(1<<32|4), entries[0].Size)

	_, err = f.List(`E:\missing`)
	assert.ErrorIs(t, err, xbdm.ErrNotFound)

	_, err = f.List(`E:\`)
	assert.NoError(t, err)
	assert.Equal(t, 4, con.Count("dirlist"))
}

func TestStat(t *testing.T) {
	f, _ := newFileSystem(t)

	e, err := f.Stat(`E:\games\save.dat`)
	assert.NoError(t, err)
	assert.Equal(t, "save.dat", e.Name)
	assert.Equal(t, uint64(4), e.Size)
	assert.False(t, e.Dir)

	_, err = f.Stat(`E:\nothing`)
	assert.ErrorIs(t, err, xbdm.ErrNotFound)
}

func TestDownload(t *testing.T) {
	f, _ := newFileSystem(t)

	var buf bytes.Buffer
	n, err := f.Download(`E:\xbdm.ini`, &buf)
	assert.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "[xbdm]\r\n", buf.String())

	local := test.TempPath("save.dat")
	assert.NoError(t, f.DownloadFile(`E:\games\save.dat`, local))
	data, err := os.ReadFile(local)
	assert.NoError(t, err)
	assert.Equal(t, "SAVE", string(data))

	missing := test.TempPath("missing.dat")
	err = f.DownloadFile(`E:\missing.dat`, missing)
	assert.ErrorIs(t, err, xbdm.ErrNotFound)
	_, err = os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, `E:\a`, Join(`E:\`, "a"))
	assert.Equal(t, `E:\a\b`, Join(`E:\a`, "b"))
}

func TestDownloadQuotedName(t *testing.T) {
	f, con := newFileSystem(t)

	var buf bytes.Buffer
	_, err := f.Download(`E:\say "hi".txt`, &buf)
	assert.NoError(t, err)
	assert.Equal(t, "HI", buf.String())
	assert.Contains(t, con.Commands(), `getfile name="E:\say \"hi\".txt"`)

	e, err := f.Stat(`E:\say "hi".txt`)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), e.Size)
}
