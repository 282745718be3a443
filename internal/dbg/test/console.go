package test

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"gni.dev/xbox/internal/dbg/xbdm"
)

const pageSize = 0x1000

// Reply writes a response to one command.
type Reply struct {
	w *bufio.Writer
}

func (r *Reply) Status(code int, msg string) {
	fmt.Fprintf(r.w, "%d- %s\r\n", code, msg)
}

func (r *Reply) OK() {
	r.Status(xbdm.CodeOK, "OK")
}

// Lines sends a multiline response.
func (r *Reply) Lines(lines ...string) {
	r.Status(xbdm.CodeMultiline, "multiline response follows")
	for _, l := range lines {
		fmt.Fprintf(r.w, "%s\r\n", l)
	}
	r.w.WriteString(".\r\n")
}

// Binary sends a raw binary response.
func (r *Reply) Binary(data []byte) {
	r.Status(xbdm.CodeBinary, "binary response follows")
	r.w.Write(data)
}

// SizedBinary sends a binary response prefixed with its 32-bit length.
func (r *Reply) SizedBinary(data []byte) {
	r.Status(xbdm.CodeBinary, "binary response follows")
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(data)))
	r.w.Write(hdr[:])
	r.w.Write(data)
}

// Handler answers a command. args is the command line after its name.
type Handler func(r *Reply, args string)

// Console is a fake debug monitor listening on a loopback port. It serves
// memory from a sparse page map and dispatches other commands to handlers.
type Console struct {
	ln    net.Listener
	group errgroup.Group

	mu       sync.Mutex
	handlers map[string]Handler
	pages    map[uint32][]byte
	conns    map[net.Conn]struct{}
	commands []string
}

func NewConsole() (*Console, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	c := &Console{
		ln:       ln,
		handlers: make(map[string]Handler),
		pages:    make(map[uint32][]byte),
		conns:    make(map[net.Conn]struct{}),
	}
	c.handlers["getmem"] = c.getmem
	c.handlers["getmem2"] = c.getmem2
	c.group.Go(c.accept)
	return c, nil
}

func (c *Console) Addr() string {
	return c.ln.Addr().String()
}

// Connect opens a session to the console.
func (c *Console) Connect() (*xbdm.Session, error) {
	conn, err := net.Dial("tcp", c.Addr())
	if err != nil {
		return nil, err
	}
	s, err := xbdm.NewSession(conn, xbdm.Options{})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (c *Console) Handle(name string, h Handler) {
	c.mu.Lock()
	c.handlers[name] = h
	c.mu.Unlock()
}

// WriteMemory maps the pages covering data and copies it in.
func (c *Console) WriteMemory(addr uint32, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range data {
		a := addr + uint32(i)
		base := a &^ (pageSize - 1)
		p, ok := c.pages[base]
		if !ok {
			p = make([]byte, pageSize)
			c.pages[base] = p
		}
		p[a-base] = data[i]
	}
}

// MapPage maps the page at addr filled with b.
func (c *Console) MapPage(addr uint32, b byte) {
	p := make([]byte, pageSize)
	for i := range p {
		p[i] = b
	}
	c.WriteMemory(addr&^(pageSize-1), p)
}

func (c *Console) Unmap(addr uint32) {
	c.mu.Lock()
	delete(c.pages, addr&^(pageSize-1))
	c.mu.Unlock()
}

// Commands returns every command line received so far.
func (c *Console) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

// Count returns how many received commands start with name.
func (c *Console) Count(name string) int {
	n := 0
	for _, cmd := range c.Commands() {
		if commandName(cmd) == name {
			n++
		}
	}
	return n
}

func (c *Console) Close() error {
	err := c.ln.Close()
	c.mu.Lock()
	for conn := range c.conns {
		conn.Close()
	}
	c.mu.Unlock()
	if werr := c.group.Wait(); werr != nil {
		return werr
	}
	return err
}

func (c *Console) accept() error {
	for {
		conn, err := c.ln.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.conns[conn] = struct{}{}
		c.mu.Unlock()
		c.group.Go(func() error {
			c.serve(conn)
			return nil
		})
	}
}

func (c *Console) serve(conn net.Conn) {
	defer func() {
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		conn.Close()
	}()

	br := bufio.NewReader(conn)
	r := &Reply{w: bufio.NewWriter(conn)}
	r.Status(xbdm.CodeConnected, "connected")
	if r.w.Flush() != nil {
		return
	}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		name := commandName(line)
		args := strings.TrimSpace(strings.TrimPrefix(line, line[:len(name)]))

		c.mu.Lock()
		c.commands = append(c.commands, line)
		h, ok := c.handlers[name]
		c.mu.Unlock()

		if name == "bye" {
			r.Status(xbdm.CodeOK, "bye")
			r.w.Flush()
			return
		}
		if ok {
			h(r, args)
		} else {
			r.Status(xbdm.CodeUnknownCommand, "unknown command")
		}
		if r.w.Flush() != nil {
			return
		}
	}
}

func (c *Console) getmem(r *Reply, args string) {
	addr, n, ok := memArgs(args)
	if !ok {
		r.Status(xbdm.CodeUnexpected, "bad arguments")
		return
	}
	var sb strings.Builder
	c.mu.Lock()
	for i := 0; i < n; i++ {
		if b, ok := c.byteAt(addr + uint32(i)); ok {
			fmt.Fprintf(&sb, "%02X", b)
		} else {
			sb.WriteString("??")
		}
	}
	c.mu.Unlock()
	r.Lines(sb.String())
}

func (c *Console) getmem2(r *Reply, args string) {
	addr, n, ok := memArgs(args)
	if !ok {
		r.Status(xbdm.CodeUnexpected, "bad arguments")
		return
	}
	data := make([]byte, n)
	c.mu.Lock()
	for i := range data {
		data[i], _ = c.byteAt(addr + uint32(i))
	}
	c.mu.Unlock()
	r.Binary(data)
}

func (c *Console) byteAt(a uint32) (byte, bool) {
	base := a &^ (pageSize - 1)
	p, ok := c.pages[base]
	if !ok {
		return 0, false
	}
	return p[a-base], true
}

func memArgs(args string) (uint32, int, bool) {
	rec, err := xbdm.ParseRecord(args)
	if err != nil {
		return 0, 0, false
	}
	addr, err := rec.Uint32("addr")
	if err != nil {
		return 0, 0, false
	}
	n, err := rec.Int("length")
	if err != nil {
		return 0, 0, false
	}
	return addr, n, true
}

// QuotedArg returns the text of key="..." in args. \" is an escaped quote
// unless it is the last quote in args, so a drive root like "E:\" still
// reads as E:\. Other backslashes are kept.
func QuotedArg(args, key string) string {
	prefix := key + `="`
	i := strings.Index(args, prefix)
	if i == -1 {
		return ""
	}
	rest := args[i+len(prefix):]
	var b strings.Builder
	for j := 0; j < len(rest); j++ {
		switch {
		case rest[j] == '\\' && j+1 < len(rest) && rest[j+1] == '"' && strings.IndexByte(rest[j+2:], '"') != -1:
			j++
			b.WriteByte('"')
		case rest[j] == '"':
			return b.String()
		default:
			b.WriteByte(rest[j])
		}
	}
	return b.String()
}

// IntArg returns the integer value of key=N in args.
func IntArg(args, key string) (int, bool) {
	rec, err := xbdm.ParseRecord(args)
	if err != nil {
		return 0, false
	}
	v, err := rec.Int(key)
	return v, err == nil
}

func commandName(line string) string {
	if i := strings.IndexByte(line, ' '); i != -1 {
		line = line[:i]
	}
	return strings.ToLower(line)
}
