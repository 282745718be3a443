package xbdm

import "fmt"

// Level is the severity of a log message.
type Level int8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = []string{"trace", "debug", "info", "warn", "error"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Logger receives leveled, parameterized messages. The format string uses
// fmt verbs; err may be nil.
type Logger interface {
	Log(level Level, err error, format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Log(Level, error, string, ...any) {}
