package xbdm

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultPort is the TCP port the debug monitor listens on.
const DefaultPort = 731

const defaultBufferSize = 64 * 1024

// Options are fixed when the connection is made.
type Options struct {
	// DialTimeout bounds connection setup. Zero means no limit.
	DialTimeout time.Duration
	// Timeout bounds every read and write on the stream. Zero means
	// operations block until data arrives or the session is closed.
	Timeout time.Duration
	// SendBufferSize and ReceiveBufferSize set the socket buffers. The
	// receive size also sizes the session's read buffer.
	SendBufferSize    int
	ReceiveBufferSize int
	// Proxy is an optional SOCKS5 proxy address (host:port).
	Proxy string

	Logger   Logger
	Observer Observer
}

// Observer is notified of session traffic.
type Observer interface {
	CommandDone(name string, resp Response, elapsed time.Duration)
	BinaryRead(n int)
}

type nopObserver struct{}

func (nopObserver) CommandDone(string, Response, time.Duration) {}
func (nopObserver) BinaryRead(int)                              {}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Connection is the raw stream to a console. It applies the configured
// I/O timeout to every read and write.
type Connection struct {
	addr    string
	rw      io.ReadWriter
	timeout time.Duration
}

// Dial opens a TCP stream to address, adding DefaultPort when address has
// no port.
func Dial(ctx context.Context, address string, opts Options) (*Connection, error) {
	address = NormalizeAddress(address)

	direct := &net.Dialer{Timeout: opts.DialTimeout}
	var dialer proxy.ContextDialer = direct
	if opts.Proxy != "" {
		pd, err := proxy.SOCKS5("tcp", opts.Proxy, nil, direct)
		if err != nil {
			return nil, fmt.Errorf("xbdm: proxy %s: %w", opts.Proxy, err)
		}
		cd, ok := pd.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("xbdm: proxy %s does not support contexts", opts.Proxy)
		}
		dialer = cd
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectionLost, address, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		if opts.SendBufferSize > 0 {
			tc.SetWriteBuffer(opts.SendBufferSize)
		}
		if opts.ReceiveBufferSize > 0 {
			tc.SetReadBuffer(opts.ReceiveBufferSize)
		}
	}
	return newConnection(address, conn, opts), nil
}

func newConnection(addr string, rw io.ReadWriter, opts Options) *Connection {
	return &Connection{addr: addr, rw: rw, timeout: opts.Timeout}
}

// NormalizeAddress returns address with DefaultPort appended when it has
// no port.
func NormalizeAddress(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(DefaultPort))
}

func (c *Connection) Addr() string {
	return c.addr
}

func (c *Connection) Read(p []byte) (int, error) {
	c.arm()
	return c.rw.Read(p)
}

func (c *Connection) Write(p []byte) (int, error) {
	c.arm()
	return c.rw.Write(p)
}

// Close closes the underlying stream if it can be closed. Blocked reads
// and writes return with an error.
func (c *Connection) Close() error {
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *Connection) arm() {
	if c.timeout <= 0 {
		return
	}
	if d, ok := c.rw.(deadliner); ok {
		d.SetDeadline(time.Now().Add(c.timeout))
	}
}
