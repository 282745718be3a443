package xbdm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the value stored in a record field.
type Kind int

const (
	KindNone Kind = iota
	KindString
	KindInteger
)

var kindNames = []string{"none", "string", "integer"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Value is a tagged record value. Values are never coerced between kinds.
type Value struct {
	Kind Kind
	Str  string
	Int  uint64
}

// Record is one response line of key=value pairs, in the order received.
type Record struct {
	keys []string
	vals map[string]Value
}

// ParseRecord parses a line such as `name="xbdm.dll" base=0x10000 size=1024`.
//
// Quoted values are strings and may contain \" and \\ escapes. Unquoted
// 0x-prefixed and decimal literals are integers; any other unquoted literal
// is a string. A key without '=' is a flag, stored as integer 1. When a key
// repeats, the last value wins.
func ParseRecord(line string) (Record, error) {
	r := Record{vals: make(map[string]Value)}
	i := 0
	for {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		if i == len(line) {
			return r, nil
		}

		start := i
		for i < len(line) && line[i] != '=' && line[i] != ' ' {
			i++
		}
		key := line[start:i]
		if i == len(line) || line[i] == ' ' {
			r.set(key, Value{Kind: KindInteger, Int: 1})
			continue
		}
		if key == "" {
			return Record{}, fmt.Errorf("%w: empty key at offset %d in %q", ErrProtocol, start, line)
		}
		i++ // '='

		if i < len(line) && line[i] == '"' {
			s, n, err := unquote(line[i:])
			if err != nil {
				return Record{}, fmt.Errorf("%w: field %q: %v", ErrProtocol, key, err)
			}
			r.set(key, Value{Kind: KindString, Str: s})
			i += n
			continue
		}

		start = i
		for i < len(line) && line[i] != ' ' {
			i++
		}
		r.set(key, parseLiteral(line[start:i]))
	}
}

// unquote reads a quoted string at the start of s and returns its value and
// the number of bytes consumed.
func unquote(s string) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			return b.String(), i + 1, nil
		case c == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\'):
			i++
			b.WriteByte(s[i])
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated quote")
}

// Quote formats s as a quoted command argument. Embedded quotes are
// escaped as \"; backslashes are sent as is so paths like `E:\` keep
// their form.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func parseLiteral(lit string) Value {
	if len(lit) > 2 && (lit[:2] == "0x" || lit[:2] == "0X") {
		if n, err := strconv.ParseUint(lit[2:], 16, 64); err == nil {
			return Value{Kind: KindInteger, Int: n}
		}
	} else if n, err := strconv.ParseUint(lit, 10, 64); err == nil {
		return Value{Kind: KindInteger, Int: n}
	}
	return Value{Kind: KindString, Str: lit}
}

func (r *Record) set(key string, v Value) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Keys returns the field names in the order they first appeared.
func (r Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

func (r Record) Len() int {
	return len(r.keys)
}

func (r Record) Has(key string) bool {
	_, ok := r.vals[key]
	return ok
}

// Get returns the raw tagged value.
func (r Record) Get(key string) (Value, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Flag reports whether a bare flag (or any field) named key is present.
func (r Record) Flag(key string) bool {
	return r.Has(key)
}

func (r Record) Str(key string) (string, error) {
	v, err := r.lookup(key, KindString)
	return v.Str, err
}

func (r Record) Uint64(key string) (uint64, error) {
	v, err := r.lookup(key, KindInteger)
	return v.Int, err
}

// Uint32 fails when the stored value does not fit in 32 bits.
func (r Record) Uint32(key string) (uint32, error) {
	v, err := r.lookup(key, KindInteger)
	if err != nil {
		return 0, err
	}
	if v.Int > math.MaxUint32 {
		return 0, fmt.Errorf("%w: field %q value %#x overflows uint32", ErrProtocol, key, v.Int)
	}
	return uint32(v.Int), nil
}

// Int fails when the stored value does not fit in an int.
func (r Record) Int(key string) (int, error) {
	v, err := r.lookup(key, KindInteger)
	if err != nil {
		return 0, err
	}
	if v.Int > math.MaxInt {
		return 0, fmt.Errorf("%w: field %q value %#x overflows int", ErrProtocol, key, v.Int)
	}
	return int(v.Int), nil
}

func (r Record) lookup(key string, want Kind) (Value, error) {
	v, ok := r.vals[key]
	if !ok {
		return Value{}, &FieldError{Key: key, Want: want}
	}
	if v.Kind != want {
		return Value{}, &FieldError{Key: key, Want: want, Got: v.Kind}
	}
	return v, nil
}

// RecordReader accumulates the first accessor failure so callers can read
// several fields and check once.
type RecordReader struct {
	rec Record
	err error
}

func NewRecordReader(r Record) *RecordReader {
	return &RecordReader{rec: r}
}

func (rr *RecordReader) Str(key string) string {
	v, err := rr.rec.Str(key)
	rr.keep(err)
	return v
}

func (rr *RecordReader) Uint64(key string) uint64 {
	v, err := rr.rec.Uint64(key)
	rr.keep(err)
	return v
}

func (rr *RecordReader) Uint32(key string) uint32 {
	v, err := rr.rec.Uint32(key)
	rr.keep(err)
	return v
}

func (rr *RecordReader) Int(key string) int {
	v, err := rr.rec.Int(key)
	rr.keep(err)
	return v
}

func (rr *RecordReader) Flag(key string) bool {
	return rr.rec.Flag(key)
}

func (rr *RecordReader) Err() error {
	return rr.err
}

func (rr *RecordReader) keep(err error) {
	if rr.err == nil {
		rr.err = err
	}
}
