// Package log provides the leveled, colorized logger used across the relay.
// Each level is a package-level singleton (T/D/I/W/E/F) so call sites read
// `log.I.F("listening on %s", addr)` without threading a logger value
// through every function signature.
package log

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
)

// Level identifies a logging severity.
type Level int32

const (
	Off Level = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

var names = map[Level]string{
	Fatal: "FTL", Error: "ERR", Warn: "WRN",
	Info: "INF", Debug: "DBG", Trace: "TRC",
}

var colors = map[Level]*color.Color{
	Fatal: color.New(color.FgWhite, color.BgRed, color.Bold),
	Error: color.New(color.FgRed, color.Bold),
	Warn:  color.New(color.FgYellow),
	Info:  color.New(color.FgGreen),
	Debug: color.New(color.FgCyan),
	Trace: color.New(color.FgMagenta),
}

// ParseLevel converts a level name ("fatal"/"error"/"warn"/"info"/"debug"/
// "trace") into a Level, defaulting to Info on an unrecognized name.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fatal":
		return Fatal
	case "error":
		return Error
	case "warn", "warning":
		return Warn
	case "info":
		return Info
	case "debug":
		return Debug
	case "trace":
		return Trace
	case "off", "none":
		return Off
	default:
		return Info
	}
}

var current atomic.Int32

func init() { current.Store(int32(Info)) }

// SetLevel sets the minimum level that will be emitted.
func SetLevel(l Level) { current.Store(int32(l)) }

// GetLevel returns the current minimum emitted level.
func GetLevel() Level { return Level(current.Load()) }

// Logger emits messages at a single fixed level.
type Logger struct {
	level Level
	mx    *sync.Mutex
	out   io.Writer
}

var mu sync.Mutex
var out io.Writer = os.Stderr

// T, D, I, W, E, F are the package singletons for each severity.
var (
	T = &Logger{level: Trace, mx: &mu}
	D = &Logger{level: Debug, mx: &mu}
	I = &Logger{level: Info, mx: &mu}
	W = &Logger{level: Warn, mx: &mu}
	E = &Logger{level: Error, mx: &mu}
	F = &Logger{level: Fatal, mx: &mu}
)

// SetOutput redirects all logger output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func (l *Logger) enabled() bool { return l.level <= GetLevel() }

func caller() string {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "?"
	}
	parts := strings.Split(file, "/")
	if len(parts) > 2 {
		file = strings.Join(parts[len(parts)-2:], "/")
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func (l *Logger) emit(msg string) {
	if !l.enabled() {
		return
	}
	l.mx.Lock()
	defer l.mx.Unlock()
	ts := time.Now().Format("15:04:05.000")
	prefix := colors[l.level].Sprintf("%s", names[l.level])
	fmt.Fprintf(out, "%s %s %s %s\n", ts, prefix, caller(), msg)
	if l.level == Fatal {
		os.Exit(1)
	}
}

// F logs a printf-formatted message.
func (l *Logger) F(format string, args ...any) { l.emit(fmt.Sprintf(format, args...)) }

// Ln logs its arguments space-joined, fmt.Sprintln style without the
// trailing newline (emit adds one).
func (l *Logger) Ln(args ...any) { l.emit(strings.TrimSuffix(fmt.Sprintln(args...), "\n")) }

// S logs a spew dump of its arguments, for inspecting structured values
// (events, filters, subscriptions) during development.
func (l *Logger) S(args ...any) { l.emit(spew.Sdump(args...)) }
