package term

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"gni.dev/xbox/internal/dbg/debugger"
	"gni.dev/xbox/internal/dbg/mem"
	"gni.dev/xbox/internal/mirror"
)

var ErrNotConnected = errors.New("not connected")

// DialFunc connects to the console at address.
type DialFunc func(ctx context.Context, address string) (*debugger.Xbox, error)

type command struct {
	aliases []string
	usage   string
	fn      func(args []string) error
}

type Commands struct {
	cmds []command
	out  io.Writer
	dial DialFunc
	x    *debugger.Xbox
}

func NewCommands(out io.Writer, dial DialFunc) *Commands {
	c := &Commands{out: out, dial: dial}
	c.cmds = append(c.cmds,
		command{
			aliases: []string{"exit", "quit", "q"},
			fn:      c.exit,
		},
		command{
			aliases: []string{"help", "h"},
			fn:      c.help,
		},
		command{
			aliases: []string{"connect", "c"},
			usage:   "connect <address>",
			fn:      c.connect,
		},
		command{
			aliases: []string{"disconnect"},
			fn:      c.disconnect,
		},
		command{
			aliases: []string{"kernel", "k"},
			fn:      c.kernel,
		},
		command{
			aliases: []string{"export", "x"},
			usage:   "export <name|ordinal>",
			fn:      c.export,
		},
		command{
			aliases: []string{"modules", "lm"},
			fn:      c.modules,
		},
		command{
			aliases: []string{"threads", "t"},
			fn:      c.threads,
		},
		command{
			aliases: []string{"mem", "m"},
			usage:   "mem <addr> [length]",
			fn:      c.mem,
		},
		command{
			aliases: []string{"probe"},
			usage:   "probe <addr>",
			fn:      c.probe,
		},
		command{
			aliases: []string{"scan"},
			usage:   "scan <addr> <length> <hex bytes>",
			fn:      c.scan,
		},
		command{
			aliases: []string{"drives"},
			fn:      c.drives,
		},
		command{
			aliases: []string{"ls", "dir"},
			usage:   "ls <dir>",
			fn:      c.ls,
		},
		command{
			aliases: []string{"get"},
			usage:   "get <remote> [local]",
			fn:      c.get,
		},
		command{
			aliases: []string{"dump"},
			usage:   "dump [file]",
			fn:      c.dump,
		},
		command{
			aliases: []string{"mirror"},
			usage:   "mirror [dir]",
			fn:      c.mirror,
		},
	)
	return c
}

func (c *Commands) Process(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return fmt.Errorf("empty command")
	}

	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			if args[0] == alias {
				return cmd.fn(args[1:])
			}
		}
	}
	return fmt.Errorf("unknown command '%s'", args[0])
}

// Attach makes x the current connection.
func (c *Commands) Attach(x *debugger.Xbox) {
	c.Close()
	c.x = x
}

// Close drops the connection, if any.
func (c *Commands) Close() error {
	if c.x == nil {
		return nil
	}
	err := c.x.Close()
	c.x = nil
	return err
}

func (c *Commands) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Commands) xbox() (*debugger.Xbox, error) {
	if c.x == nil {
		return nil, ErrNotConnected
	}
	return c.x, nil
}

func (c *Commands) exit(args []string) error {
	return io.EOF
}

func (c *Commands) help(args []string) error {
	for _, cmd := range c.cmds {
		usage := cmd.usage
		if usage == "" {
			usage = cmd.aliases[0]
		}
		c.printf("  %-36s %s\n", usage, strings.Join(cmd.aliases[1:], ", "))
	}
	return nil
}

func (c *Commands) connect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("no address specified")
	}
	c.Close()
	x, err := c.dial(context.Background(), args[0])
	if err != nil {
		return err
	}
	c.x = x
	c.printf("connected to %s\n", x.Session().Addr())
	return nil
}

func (c *Commands) disconnect(args []string) error {
	if c.x == nil {
		return ErrNotConnected
	}
	return c.Close()
}

func (c *Commands) kernel(args []string) error {
	x, err := c.xbox()
	if err != nil {
		return err
	}
	k, err := x.Kernel()
	if err != nil {
		return err
	}
	c.printf("base:    %#08x\n", k.Base())
	c.printf("size:    %#x\n", k.Size())
	c.printf("date:    %s\n", k.Date().Format("2006-01-02 15:04:05"))
	c.printf("exports: %d\n", len(k.Exports())-1)
	v, err := k.Version()
	if err != nil {
		return err
	}
	c.printf("version: %s\n", v)
	return nil
}

func (c *Commands) export(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("no export specified")
	}
	x, err := c.xbox()
	if err != nil {
		return err
	}
	k, err := x.Kernel()
	if err != nil {
		return err
	}
	var addr uint32
	if ordinal, perr := strconv.Atoi(args[0]); perr == nil {
		addr, err = k.ExportAddress(ordinal)
	} else {
		addr, err = k.Export(args[0])
	}
	if err != nil {
		return err
	}
	c.printf("%s = %#08x\n", args[0], addr)
	return nil
}

func (c *Commands) modules(args []string) error {
	x, err := c.xbox()
	if err != nil {
		return err
	}
	modules, err := x.Process().Modules()
	if err != nil {
		return err
	}
	for _, m := range modules {
		c.printf("%08x %08x %-24s %s\n", m.Base, m.Size, m.Name, m.Timestamp.Format("2006-01-02 15:04:05"))
		for _, s := range m.Sections {
			c.printf("  %08x %08x %s\n", s.Base, s.Size, s.Name)
		}
	}
	return nil
}

func (c *Commands) threads(args []string) error {
	x, err := c.xbox()
	if err != nil {
		return err
	}
	threads, err := x.Process().Threads()
	if err != nil {
		return err
	}
	for _, t := range threads {
		c.printf("%4d start=%08x prio=%d suspend=%d\n", t.ID, t.Start, t.Priority, t.Suspend)
	}
	return nil
}

func (c *Commands) mem(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: mem <addr> [length]")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	n := 64
	if len(args) == 2 {
		if n, err = strconv.Atoi(args[1]); err != nil || n <= 0 {
			return fmt.Errorf("invalid length '%s'", args[1])
		}
	}
	x, err := c.xbox()
	if err != nil {
		return err
	}
	data, err := x.Memory().ReadBytes(addr, n)
	for i := 0; i < len(data); i += 16 {
		end := min(i+16, len(data))
		c.printf("%08x  % x\n", addr+uint32(i), data[i:end])
	}
	return err
}

func (c *Commands) probe(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("no address specified")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	x, err := c.xbox()
	if err != nil {
		return err
	}
	st, err := x.Memory().ProbePage(addr)
	if err != nil {
		return err
	}
	c.printf("%08x %s\n", mem.PageBase(addr), st)
	return nil
}

func (c *Commands) scan(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: scan <addr> <length> <hex bytes>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	size, err := parseAddr(args[1])
	if err != nil {
		return err
	}
	pattern, err := hex.DecodeString(args[2])
	if err != nil || len(pattern) == 0 {
		return fmt.Errorf("invalid pattern '%s'", args[2])
	}
	x, err := c.xbox()
	if err != nil {
		return err
	}
	hits, err := x.Memory().Scan(mem.Region{Addr: addr, Size: size}, pattern)
	if err != nil {
		return err
	}
	for _, h := range hits {
		c.printf("%08x\n", h)
	}
	c.printf("%d matches\n", len(hits))
	return nil
}

func (c *Commands) drives(args []string) error {
	x, err := c.xbox()
	if err != nil {
		return err
	}
	drives, err := x.FileSystem().Drives()
	if err != nil {
		return err
	}
	c.printf("%s\n", strings.Join(drives, " "))
	return nil
}

func (c *Commands) ls(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("no directory specified")
	}
	x, err := c.xbox()
	if err != nil {
		return err
	}
	entries, err := x.FileSystem().List(args[0])
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "-"
		if e.Dir {
			kind = "d"
		}
		c.printf("%s %10d %s %s\n", kind, e.Size, e.Changed.Format("2006-01-02 15:04"), e.Name)
	}
	return nil
}

func (c *Commands) get(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: get <remote> [local]")
	}
	remote := args[0]
	local := path.Base(strings.ReplaceAll(remote, `\`, "/"))
	if len(args) == 2 {
		local = args[1]
	}
	x, err := c.xbox()
	if err != nil {
		return err
	}
	if err := x.FileSystem().DownloadFile(remote, local); err != nil {
		return err
	}
	c.printf("%s -> %s\n", remote, local)
	return nil
}

func (c *Commands) dump(args []string) error {
	file := "xboxkrnl.bin"
	if len(args) > 0 {
		file = args[0]
	}
	x, err := c.xbox()
	if err != nil {
		return err
	}
	k, err := x.Kernel()
	if err != nil {
		return err
	}
	n, err := k.Dump(file)
	if err != nil {
		return err
	}
	c.printf("wrote %d bytes to %s\n", n, file)
	return nil
}

func (c *Commands) mirror(args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	x, err := c.xbox()
	if err != nil {
		return err
	}
	st, err := mirror.New(x.FileSystem(), dir).Run(context.Background())
	c.printf("%d files, %d bytes copied, %d skipped, %d failed\n", st.Files, st.Bytes, st.Skipped, st.Failed)
	return err
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address '%s'", s)
	}
	return uint32(v), nil
}
