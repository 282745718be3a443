package proc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gni.dev/xbox/internal/dbg/xbdm"
)

type Thread struct {
	ID       int
	Suspend  int
	Priority int
	TLSBase  uint32
	Start    uint32
	Base     uint32
	Limit    uint32
	Created  time.Time
}

// Threads lists the threads of the running title. A thread that exits
// between the list and its info query is left out.
func (p *Process) Threads() ([]Thread, error) {
	lines, err := p.query("threads")
	if err != nil {
		return nil, err
	}

	threads := make([]Thread, 0, len(lines))
	for _, line := range lines {
		id, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return nil, fmt.Errorf("%w: thread id %q", xbdm.ErrProtocol, line)
		}
		t, err := p.Thread(id)
		if errors.Is(err, xbdm.ErrNotFound) {
			p.log.Log(xbdm.LevelDebug, nil, "thread %d exited during enumeration", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, nil
}

// Thread queries one thread.
func (p *Process) Thread(id int) (Thread, error) {
	lines, err := p.query("threadinfo thread=%d", id)
	if err != nil {
		return Thread{}, err
	}
	if len(lines) == 0 {
		return Thread{}, fmt.Errorf("%w: empty info for thread %d", xbdm.ErrProtocol, id)
	}

	rec, err := xbdm.ParseRecord(lines[0])
	if err != nil {
		return Thread{}, err
	}
	r := xbdm.NewRecordReader(rec)
	t := Thread{
		ID:       id,
		Suspend:  r.Int("suspend"),
		Priority: r.Int("priority"),
		TLSBase:  r.Uint32("tlsbase"),
		Start:    r.Uint32("start"),
		Base:     r.Uint32("base"),
		Limit:    r.Uint32("limit"),
		Created:  xbdm.FileTime(r.Uint32("createhi"), r.Uint32("createlo")),
	}
	return t, r.Err()
}
