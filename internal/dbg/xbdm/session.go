package xbdm

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type state int

const (
	stateIdle state = iota
	stateStatus
	stateLines
	stateBinary
	stateClosed
)

// Session drives one console. It is half-duplex: every command must have
// its response fully drained before the next is sent. Callers sharing a
// session must serialize send+receive themselves.
type Session struct {
	c   *Connection
	br  *bufio.Reader
	log Logger
	obs Observer

	mu    sync.Mutex
	state state
}

// Connect dials address and performs the greeting handshake.
func Connect(ctx context.Context, address string, opts Options) (*Session, error) {
	c, err := Dial(ctx, address, opts)
	if err != nil {
		return nil, err
	}
	s, err := newSession(c, opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

// NewSession runs the handshake over an already open stream. If rw is an
// io.Closer, Close closes it, as does a failed handshake.
func NewSession(rw io.ReadWriter, opts Options) (*Session, error) {
	c := newConnection("", rw, opts)
	s, err := newSession(c, opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func newSession(c *Connection, opts Options) (*Session, error) {
	size := opts.ReceiveBufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	s := &Session{
		c:   c,
		br:  bufio.NewReaderSize(c, size),
		log: opts.Logger,
		obs: opts.Observer,
	}
	if s.log == nil {
		s.log = nopLogger{}
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	if err := s.handshake(); err != nil {
		return nil, err
	}
	s.log.Log(LevelInfo, nil, "connected to %s", c.Addr())
	return s, nil
}

func (s *Session) handshake() error {
	line, err := s.readLine()
	if err != nil {
		return s.fail(err)
	}
	resp, err := parseResponse(line)
	if err != nil {
		return err
	}
	if resp.Code != CodeConnected {
		return fmt.Errorf("%w: unexpected greeting %q", ErrProtocol, line)
	}
	return nil
}

// Logger returns the logger subsystems built on s should use.
func (s *Session) Logger() Logger {
	return s.log
}

func (s *Session) Addr() string {
	return s.c.Addr()
}

// SendCommand sends one command line and reads its status. Non-success
// statuses are returned to the caller, not treated as errors. After a
// multiline or binary status the caller must drain the response with
// ReceiveLines, ReceiveBinary or CopyBinary.
func (s *Session) SendCommand(format string, args ...any) (Response, error) {
	return s.send(fmt.Sprintf(format, args...))
}

// SendCommandStrict is SendCommand, but an error status is returned as a
// *StatusError.
func (s *Session) SendCommandStrict(format string, args ...any) (Response, error) {
	cmd := fmt.Sprintf(format, args...)
	resp, err := s.send(cmd)
	if err != nil {
		return resp, err
	}
	if resp.Status() == StatusFailed {
		return resp, &StatusError{Command: cmd, Response: resp}
	}
	return resp, nil
}

func (s *Session) send(cmd string) (Response, error) {
	if strings.ContainsAny(cmd, "\r\n") {
		return Response{}, fmt.Errorf("%w: command %q contains a line break", ErrProtocol, cmd)
	}
	if err := s.begin(); err != nil {
		return Response{}, err
	}

	start := time.Now()
	s.log.Log(LevelTrace, nil, "sending %q", cmd)
	if _, err := io.WriteString(s.c, cmd+"\r\n"); err != nil {
		return Response{}, s.fail(err)
	}
	line, err := s.readLine()
	if err != nil {
		return Response{}, s.fail(err)
	}
	resp, err := parseResponse(line)
	if err != nil {
		s.setState(stateIdle)
		return Response{}, err
	}

	switch resp.Status() {
	case StatusMultiline:
		s.setState(stateLines)
	case StatusBinary:
		s.setState(stateBinary)
	default:
		s.setState(stateIdle)
	}
	s.log.Log(LevelTrace, nil, "%q -> %s", cmd, resp)
	s.obs.CommandDone(commandName(cmd), resp, time.Since(start))
	return resp, nil
}

// ReceiveLines reads a multiline response up to its terminating ".".
func (s *Session) ReceiveLines() ([]string, error) {
	if err := s.expect(stateLines); err != nil {
		return nil, err
	}
	var lines []string
	for {
		line, err := s.readLine()
		if err != nil {
			return nil, s.fail(err)
		}
		if line == "." {
			break
		}
		lines = append(lines, line)
	}
	s.setState(stateIdle)
	return lines, nil
}

// ReceiveBinary reads an n byte binary response.
func (s *Session) ReceiveBinary(n int) ([]byte, error) {
	if err := s.expect(stateBinary); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		return nil, s.fail(err)
	}
	s.obs.BinaryRead(n)
	s.setState(stateIdle)
	return buf, nil
}

// CopyBinary reads a binary response prefixed with its little-endian
// 32-bit length and copies the payload to w. If w fails the rest of the
// payload is discarded so the session stays usable.
func (s *Session) CopyBinary(w io.Writer) (int64, error) {
	if err := s.expect(stateBinary); err != nil {
		return 0, err
	}
	var hdr [4]byte
	if _, err := io.ReadFull(s.br, hdr[:]); err != nil {
		return 0, s.fail(err)
	}
	size := int64(binary.LittleEndian.Uint32(hdr[:]))

	src := &countingReader{r: io.LimitReader(s.br, size)}
	written, err := io.Copy(w, src)
	if src.err != nil {
		return written, s.fail(src.err)
	}
	if err != nil {
		if _, derr := io.Copy(io.Discard, src); derr != nil {
			return written, s.fail(derr)
		}
	}
	if src.n != size {
		return written, s.fail(io.ErrUnexpectedEOF)
	}
	s.obs.BinaryRead(int(size))
	s.setState(stateIdle)
	return written, err
}

// Close ends the session. It is safe to call from another goroutine to
// unblock a pending read, which then fails with ErrConnectionLost.
func (s *Session) Close() error {
	s.mu.Lock()
	prev := s.state
	s.state = stateClosed
	s.mu.Unlock()

	if prev == stateClosed {
		return nil
	}
	if prev == stateIdle {
		io.WriteString(s.c, "bye\r\n")
	}
	s.log.Log(LevelInfo, nil, "disconnected from %s", s.c.Addr())
	return s.c.Close()
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateClosed:
		return ErrConnectionLost
	case stateIdle:
		s.state = stateStatus
		return nil
	default:
		return ErrSessionBusy
	}
}

func (s *Session) expect(want state) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateClosed:
		return ErrConnectionLost
	case want:
		return nil
	case stateLines:
		return fmt.Errorf("%w: multiline response pending", ErrProtocol)
	case stateBinary:
		return fmt.Errorf("%w: binary response pending", ErrProtocol)
	default:
		return fmt.Errorf("%w: no response pending", ErrProtocol)
	}
}

func (s *Session) setState(st state) {
	s.mu.Lock()
	if s.state != stateClosed {
		s.state = st
	}
	s.mu.Unlock()
}

// fail closes the session after a transport error.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	closed := s.state == stateClosed
	s.state = stateClosed
	s.mu.Unlock()

	if !closed {
		s.log.Log(LevelError, err, "connection to %s lost", s.c.Addr())
		s.c.Close()
	}
	return connLost(err)
}

func (s *Session) readLine() (string, error) {
	line, err := s.br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func commandName(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i != -1 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

type countingReader struct {
	r   io.Reader
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, err
}
