package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	mu       sync.RWMutex
	logger   zerolog.Logger
	out      io.Writer = os.Stderr
	jsonOut  bool
	minLevel           = LevelInfo
	initOnce sync.Once
)

// initLogger builds the default console logger on stderr.
func initLogger() {
	initOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		zerolog.ErrorFieldName = "err"
		mu.Lock()
		logger = build(out, jsonOut, minLevel)
		mu.Unlock()
	})
}

func build(w io.Writer, asJSON bool, l Level) zerolog.Logger {
	if !asJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(w).Level(toZerolog(l)).With().Timestamp().Logger()
}

// SetLevel changes the minimum level of the global logger.
func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
	logger = build(out, jsonOut, minLevel)
}

// SetOutput redirects log output. When asJSON is false the console
// writer is used.
func SetOutput(w io.Writer, asJSON bool) {
	initLogger()
	if w == nil {
		w = os.Stderr
	}
	mu.Lock()
	defer mu.Unlock()
	out = w
	jsonOut = asJSON
	logger = build(out, jsonOut, minLevel)
}

// ParseLevel maps a config string to a Level. Unknown values yield INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "TRACE":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	logWithLevel(zerolog.DebugLevel, msg, nil, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(zerolog.InfoLevel, msg, nil, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(zerolog.WarnLevel, msg, nil, kv...)
}

func Error(msg string, err error, kv ...any) {
	logWithLevel(zerolog.ErrorLevel, msg, err, kv...)
}

func logWithLevel(level zerolog.Level, msg string, err error, kv ...any) {
	initLogger()
	mu.RLock()
	l := logger
	mu.RUnlock()

	ev := l.WithLevel(level)
	if !ev.Enabled() {
		return
	}
	if err != nil {
		ev = ev.Err(err)
	}
	// Expect kv as pairs: key, value, key, value, ...
	// A trailing key without value is ignored.
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = appendField(ev, key, kv[i+1])
	}
	ev.Msg(msg)
}

func appendField(ev *zerolog.Event, key string, val any) *zerolog.Event {
	switch v := val.(type) {
	case string:
		return ev.Str(key, v)
	case int:
		return ev.Int(key, v)
	case int64:
		return ev.Int64(key, v)
	case bool:
		return ev.Bool(key, v)
	case time.Duration:
		return ev.Dur(key, v)
	case time.Time:
		return ev.Time(key, v)
	case error:
		return ev.AnErr(key, v)
	default:
		return ev.Interface(key, v)
	}
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
