package xbdm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRecordModule(t *testing.T) {
	for _, line := range []string{
		`name="xbdm.dll" base=0x10000 size=1024`,
		`size=1024 base=0x10000 name="xbdm.dll"`,
	} {
		r, err := ParseRecord(line)
		assert.NoError(t, err, line)

		name, err := r.Str("name")
		assert.NoError(t, err)
		assert.Equal(t, "xbdm.dll", name)

		base, err := r.Uint32("base")
		assert.NoError(t, err)
		assert.Equal(t, uint32(65536), base)

		size, err := r.Int("size")
		assert.NoError(t, err)
		assert.Equal(t, 1024, size)
	}
}

var recordTests = []struct {
	input    string
	keys     []string
	want     map[string]Value
	hasError bool
}{
	{
		input: "",
		want:  map[string]Value{},
	},
	{
		input:    `name="a \"quoted\" name" path="E:\dir\" x=1`,
		hasError: true,
	},
	{
		input: `name="a \"quoted\" name"`,
		keys:  []string{"name"},
		want: map[string]Value{
			"name": {Kind: KindString, Str: `a "quoted" name`},
		},
	},
	{
		input: `name="E:\dir\\" x=1`,
		keys:  []string{"name", "x"},
		want: map[string]Value{
			"name": {Kind: KindString, Str: `E:\dir\`},
			"x":    {Kind: KindInteger, Int: 1},
		},
	},
	{
		input:    `name="unterminated`,
		hasError: true,
	},
	{
		input: `a=1 b=2 a=0x3`,
		keys:  []string{"a", "b"},
		want: map[string]Value{
			"a": {Kind: KindInteger, Int: 3},
			"b": {Kind: KindInteger, Int: 2},
		},
	},
	{
		input: `name="tmp"  sizehi=0x0 sizelo=0x20 directory`,
		keys:  []string{"name", "sizehi", "sizelo", "directory"},
		want: map[string]Value{
			"name":      {Kind: KindString, Str: "tmp"},
			"sizelo":    {Kind: KindInteger, Int: 0x20},
			"directory": {Kind: KindInteger, Int: 1},
		},
	},
	{
		input: `mode=fast addr=0xZZ`,
		keys:  []string{"mode", "addr"},
		want: map[string]Value{
			"mode": {Kind: KindString, Str: "fast"},
			"addr": {Kind: KindString, Str: "0xZZ"},
		},
	},
	{
		input:    `=5`,
		hasError: true,
	},
}

func TestParseRecord(t *testing.T) {
	for i, test := range recordTests {
		r, err := ParseRecord(test.input)
		if test.hasError {
			assert.ErrorIs(t, err, ErrProtocol, "test #%d", i)
			continue
		}
		assert.NoError(t, err, "test #%d", i)
		assert.Equal(t, len(test.keys), r.Len(), "test #%d", i)
		if len(test.keys) > 0 {
			assert.Equal(t, test.keys, r.Keys(), "test #%d", i)
		}
		for k, want := range test.want {
			got, ok := r.Get(k)
			assert.True(t, ok, "test #%d: %s", i, k)
			assert.Equal(t, want, got, "test #%d: %s", i, k)
		}
	}
}

func TestRecordKindMismatch(t *testing.T) {
	r, err := ParseRecord(`name="xbdm.dll" base=0x10000 big=0x100000000`)
	assert.NoError(t, err)

	_, err = r.Uint32("name")
	var fe *FieldError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, KindInteger, fe.Want)
	assert.Equal(t, KindString, fe.Got)
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = r.Str("base")
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = r.Str("missing")
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, KindNone, fe.Got)

	_, err = r.Uint32("big")
	assert.ErrorIs(t, err, ErrProtocol)
	v, err := r.Uint64("big")
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x100000000), v)
}

func TestRecordReader(t *testing.T) {
	r, err := ParseRecord(`suspend=0 priority=9 start=0x80012345`)
	assert.NoError(t, err)

	rr := NewRecordReader(r)
	assert.Equal(t, 9, rr.Int("priority"))
	assert.Equal(t, uint32(0x80012345), rr.Uint32("start"))
	assert.NoError(t, rr.Err())

	assert.Equal(t, "", rr.Str("priority"))
	assert.Equal(t, uint32(0), rr.Uint32("limit"))
	var fe *FieldError
	assert.True(t, errors.As(rr.Err(), &fe))
	assert.Equal(t, "priority", fe.Key)
}

func TestFileTime(t *testing.T) {
	assert.Equal(t, time.Unix(0, 0).UTC(), FileTime(0x019DB1DE, 0xD53E8000))
	assert.Equal(t, time.Date(2020, 11, 5, 18, 49, 15, 650252800, time.UTC), FileTime(0x01d6b3a4, 0x5c2d8000))
	assert.True(t, FileTime(0, 0).IsZero())
	assert.Equal(t, time.Date(1601, 1, 1, 0, 0, 0, 100, time.UTC), FileTime(0, 1))
	assert.Equal(t, 1601, FileTime(0, 0xFFFFFFFF).Year())
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "error", StatusFailed.String())
	assert.Equal(t, "Status(9)", Status(9).String())
	assert.Equal(t, "integer", KindInteger.String())
	assert.Equal(t, "Kind(-1)", Kind(-1).String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "Level(7)", Level(7).String())
}

var quoteTests = []struct {
	input string
	want  string
}{
	{input: `E:\games`, want: `"E:\games"`},
	{input: `E:\say "hi"`, want: `"E:\say \"hi\""`},
	{input: `""`, want: `"\"\""`},
}

func TestQuote(t *testing.T) {
	for i, test := range quoteTests {
		got := Quote(test.input)
		assert.Equal(t, test.want, got, "test #%d", i)

		rec, err := ParseRecord("name=" + got)
		assert.NoError(t, err, "test #%d", i)
		name, err := rec.Str("name")
		assert.NoError(t, err, "test #%d", i)
		assert.Equal(t, test.input, name, "test #%d", i)
	}

	// Drive roots keep their trailing backslash as the console expects.
	assert.Equal(t, `"E:\"`, Quote(`E:\`))
}
