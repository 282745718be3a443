package term

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gni.dev/xbox/internal/dbg/debugger"
	"gni.dev/xbox/internal/dbg/test"
	"gni.dev/xbox/internal/dbg/xbdm"
)

type MockTerminal struct {
	input     io.Reader
	chunkSize int
	output    bytes.Buffer
}

func NewMockTerminal(input string, ch int) *MockTerminal {
	return &MockTerminal{
		input:     strings.NewReader(input),
		chunkSize: ch,
	}
}

func (c *MockTerminal) Read(data []byte) (int, error) {
	b := make([]byte, c.chunkSize)
	n, err := c.input.Read(b)
	if err != nil {
		return 0, err
	}
	return copy(data, b[:n]), nil
}

func (c *MockTerminal) Write(data []byte) (int, error) {
	return c.output.Write(data)
}

var errRefused = errors.New("connection refused")

var inputTests = []struct {
	input string
	want  string
}{
	{
		input: "connect 10.0.0.2\r",
		want:  "10.0.0.2",
	},
	{
		input: "connect 10.0.0.2\r\n",
		want:  "10.0.0.2",
	},
	{
		input: "connect 10.0.0.22\x1b[D\177\r", // backspace
		want:  "10.0.0.2",
	},
	{
		input: "connect 1\17710.0.0.3\r", // backspace
		want:  "10.0.0.3",
	},
	{
		input: "connect " + strings.Repeat("x", 200) + "\r",
		want:  strings.Repeat("x", 200),
	},
}

func TestInput(t *testing.T) {
	for i, test := range inputTests {
		for j := 1; j < len(test.input); j++ {
			var dialed []string
			dial := func(ctx context.Context, address string) (*debugger.Xbox, error) {
				dialed = append(dialed, address)
				return nil, errRefused
			}
			screen := NewMockTerminal(test.input, j)
			err := New(screen, "> ", dial).Run("")
			assert.NoError(t, err, "test #%d", i)
			assert.Equal(t, []string{test.want}, dialed, "test #%d chunk %d", i, j)
			assert.Contains(t, screen.output.String(), "Command failed: connection refused", "test #%d", i)
		}
	}
}

func TestRunExit(t *testing.T) {
	dial := func(ctx context.Context, address string) (*debugger.Xbox, error) {
		t.Fatal("dial called after exit")
		return nil, nil
	}
	screen := NewMockTerminal("help\rquit\rconnect 10.0.0.2\r", 4)
	err := New(screen, "(xbox) ", dial).Run("")
	assert.NoError(t, err)
	assert.Contains(t, screen.output.String(), "connect <address>")
	assert.Contains(t, screen.output.String(), "(xbox) ")
}

func TestRunInitCommand(t *testing.T) {
	dial := func(ctx context.Context, address string) (*debugger.Xbox, error) {
		return nil, errRefused
	}
	screen := NewMockTerminal("", 1)
	err := New(screen, "> ", dial).Run("connect 10.0.0.2")
	assert.ErrorIs(t, err, errRefused)
}

func newCommands(t *testing.T) (*Commands, *bytes.Buffer, *test.Console) {
	t.Helper()
	con, err := test.NewConsole()
	require.NoError(t, err)
	con.Handle("modules", func(r *test.Reply, args string) {
		r.Lines(`name="xbdm.dll" base=0x10000 size=0x400 check=0x1 timestamp=0x5F5E1000`)
	})
	con.Handle("modsections", func(r *test.Reply, args string) {
		r.Lines(`name=".text" base=0x10100 size=0x200 index=0 flags=0x1`)
	})
	con.Handle("threads", func(r *test.Reply, args string) {
		r.Lines("28")
	})
	con.Handle("threadinfo", func(r *test.Reply, args string) {
		r.Lines("suspend=0 priority=9 tlsbase=0xd0026fe0 start=0x80012345 base=0xd0027000 limit=0xd0020000 createhi=0x01d6b3a4 createlo=0x5c2d8000")
	})
	con.Handle("drivelist", func(r *test.Reply, args string) {
		r.Lines(`drivename="C"`, `drivename="E"`)
	})
	con.Handle("dirlist", func(r *test.Reply, args string) {
		if test.QuotedArg(args, "name") != `E:\` {
			r.Status(xbdm.CodeFileNotFound, "file not found")
			return
		}
		r.Lines(
			`name="games" sizehi=0x0 sizelo=0x0 createhi=0x01d6b3a4 createlo=0x5c2d8000 changehi=0x01d6b3a4 changelo=0x5c2d8000 directory`,
			`name="xbdm.ini" sizehi=0x0 sizelo=0x8 createhi=0x01d6b3a4 createlo=0x5c2d8000 changehi=0x01d6b3a4 changelo=0x5c2d8000`,
		)
	})
	con.Handle("getfile", func(r *test.Reply, args string) {
		if test.QuotedArg(args, "name") != `E:\xbdm.ini` {
			r.Status(xbdm.CodeFileNotFound, "file not found")
			return
		}
		r.SizedBinary([]byte("[xbdm]\r\n"))
	})
	con.WriteMemory(0x10000, []byte("MZ\x90\x00 xbox memory test"))

	var out bytes.Buffer
	dial := func(ctx context.Context, address string) (*debugger.Xbox, error) {
		return debugger.Connect(ctx, address, debugger.Options{})
	}
	c := NewCommands(&out, dial)
	t.Cleanup(func() {
		c.Close()
		con.Close()
	})
	return c, &out, con
}

func TestCommandsNotConnected(t *testing.T) {
	c, _, _ := newCommands(t)
	for _, line := range []string{"modules", "threads", "mem 0x10000", "drives", "kernel", "disconnect"} {
		assert.ErrorIs(t, c.Process(line), ErrNotConnected, line)
	}
}

func TestCommandsErrors(t *testing.T) {
	c, _, _ := newCommands(t)
	assert.EqualError(t, c.Process("frobnicate"), "unknown command 'frobnicate'")
	assert.Error(t, c.Process("   "))
	assert.Error(t, c.Process("connect"))
	assert.Error(t, c.Process("mem zz"))
	assert.Error(t, c.Process("mem 0x10000 -1"))
	assert.Error(t, c.Process("scan 0x10000 0x100 xyz"))
	assert.Equal(t, io.EOF, c.Process("exit"))
}

func TestCommands(t *testing.T) {
	c, out, con := newCommands(t)
	require.NoError(t, c.Process("connect "+con.Addr()))
	assert.Contains(t, out.String(), "connected to "+con.Addr())

	out.Reset()
	require.NoError(t, c.Process("modules"))
	assert.Contains(t, out.String(), "00010000 00000400 xbdm.dll")
	assert.Contains(t, out.String(), "  00010100 00000200 .text")

	out.Reset()
	require.NoError(t, c.Process("threads"))
	assert.Equal(t, "  28 start=80012345 prio=9 suspend=0\n", out.String())

	out.Reset()
	require.NoError(t, c.Process("mem 0x10000 4"))
	assert.Equal(t, "00010000  4d 5a 90 00\n", out.String())

	out.Reset()
	require.NoError(t, c.Process("probe 0x10010"))
	assert.Equal(t, "00010000 valid\n", out.String())

	out.Reset()
	require.NoError(t, c.Process("probe 0x20000"))
	assert.Equal(t, "00020000 invalid\n", out.String())

	out.Reset()
	assert.ErrorIs(t, c.Process("mem 0x20000 16"), xbdm.ErrAddressInvalid)

	out.Reset()
	require.NoError(t, c.Process("scan 0x10000 0x1000 78626f78"))
	assert.Equal(t, "00010005\n1 matches\n", out.String())

	out.Reset()
	require.NoError(t, c.Process("drives"))
	assert.Equal(t, "C:\\ E:\\\n", out.String())

	out.Reset()
	require.NoError(t, c.Process(`ls E:\`))
	assert.Contains(t, out.String(), "d          0 2020-11-05 18:49 games")
	assert.Contains(t, out.String(), "-          8 2020-11-05 18:49 xbdm.ini")

	local := filepath.Join(t.TempDir(), "xbdm.ini")
	require.NoError(t, c.Process(`get E:\xbdm.ini `+local))
	data, err := os.ReadFile(local)
	assert.NoError(t, err)
	assert.Equal(t, "[xbdm]\r\n", string(data))

	assert.ErrorIs(t, c.Process(`ls C:\`), xbdm.ErrNotFound)

	require.NoError(t, c.Process("disconnect"))
	assert.ErrorIs(t, c.Process("modules"), ErrNotConnected)
}

func TestPromptAddress(t *testing.T) {
	var out bytes.Buffer
	addr, err := PromptAddress(strings.NewReader("192.168.1.20\n"), &out)
	assert.NoError(t, err)
	assert.Equal(t, "192.168.1.20", addr)
	assert.Equal(t, "Xbox IP address: ", out.String())

	_, err = PromptAddress(strings.NewReader("\n"), &out)
	assert.ErrorIs(t, err, ErrNoAddress)
}
