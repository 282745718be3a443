// Package logging writes core log messages through zerolog.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"gni.dev/xbox/internal/dbg/xbdm"
)

const (
	EnvLogLevel   = "XBTOOL_LOG_LEVEL"
	EnvLogNoColor = "XBTOOL_LOG_NOCOLOR"
)

type Config struct {
	Level   xbdm.Level
	NoColor bool
}

// Logger implements xbdm.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New returns a console logger writing to w. Colour is disabled when w is
// not a terminal.
func New(w io.Writer, cfg Config) *Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    cfg.NoColor || !isTerminal(w),
	}
	return &Logger{zl: zerolog.New(out).Level(zlevel(cfg.Level)).With().Timestamp().Logger()}
}

// NewJSON returns a logger writing one JSON object per line.
func NewJSON(w io.Writer, level xbdm.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(zlevel(level))}
}

func (l *Logger) Log(level xbdm.Level, err error, format string, args ...any) {
	ev := l.zl.WithLevel(zlevel(level))
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msgf(format, args...)
}

// ApplyEnv overrides cfg from the environment.
func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvLogNoColor))); err == nil {
		cfg.NoColor = v
	}
}

func ParseLevel(raw string) (xbdm.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return xbdm.LevelTrace, true
	case "debug":
		return xbdm.LevelDebug, true
	case "info":
		return xbdm.LevelInfo, true
	case "warn", "warning":
		return xbdm.LevelWarn, true
	case "error":
		return xbdm.LevelError, true
	default:
		return xbdm.LevelInfo, false
	}
}

func zlevel(l xbdm.Level) zerolog.Level {
	switch l {
	case xbdm.LevelTrace:
		return zerolog.TraceLevel
	case xbdm.LevelDebug:
		return zerolog.DebugLevel
	case xbdm.LevelWarn:
		return zerolog.WarnLevel
	case xbdm.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
