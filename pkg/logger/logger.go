// Package logger emits structured JSON log lines. Every entry is a flat
// JSON object: timestamp, level, message, caller, then the accumulated
// fields. No external dependencies - uses only standard library.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// String returns the string representation of the log level.
func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel parses a level name, case-insensitively. Unrecognized input
// falls back to info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// F creates a field with the given key and value.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

func String(key, value string) Field          { return Field{Key: key, Value: value} }
func Int(key string, value int) Field         { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field     { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field       { return Field{Key: key, Value: value} }

// Err creates an error field. A nil error yields a null value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field rendered in Go duration syntax.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Options configures a Logger.
type Options struct {
	Output    io.Writer
	Level     Level
	AddCaller bool
}

// DefaultOptions logs info and above to stdout with caller locations.
func DefaultOptions() Options {
	return Options{Output: os.Stdout, Level: LevelInfo, AddCaller: true}
}

// Logger writes JSON log lines at or above a minimum level. Loggers
// derived through With share the parent's writer and lock.
type Logger struct {
	out    io.Writer
	mu     *sync.Mutex
	min    Level
	caller bool
	base   []Field
}

// New creates a Logger from opts. A nil Output defaults to stdout.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		out:    out,
		mu:     &sync.Mutex{},
		min:    opts.Level,
		caller: opts.AddCaller,
	}
}

// Default creates a logger with default options.
func Default() *Logger {
	return New(DefaultOptions())
}

// With returns a child logger that includes fields in every entry.
func (l *Logger) With(fields ...Field) *Logger {
	child := *l
	child.base = append(l.base[:len(l.base):len(l.base)], fields...)
	return &child
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(LevelError, msg, fields) }

func (l *Logger) write(level Level, msg string, fields []Field) {
	if level < l.min {
		return
	}

	entry := make(map[string]any, 4+len(l.base)+len(fields))
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["message"] = msg
	if l.caller {
		if _, file, line, ok := runtime.Caller(2); ok {
			if idx := strings.LastIndex(file, "/"); idx >= 0 {
				file = file[idx+1:]
			}
			entry["caller"] = fmt.Sprintf("%s:%d", file, line)
		}
	}
	for _, f := range l.base {
		entry[f.Key] = f.Value
	}
	for _, f := range fields {
		entry[f.Key] = f.Value
	}

	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(fmt.Sprintf(`{"level":%q,"message":%q,"marshal_error":%q}`,
			level.String(), msg, err.Error()))
	}
	line = append(line, '\n')

	l.mu.Lock()
	l.out.Write(line)
	l.mu.Unlock()
}

// Domain field helpers.
func StudentID(id string) Field      { return String("student_id", id) }
func TaskID(id string) Field         { return String("task_id", id) }
func AnalysisKind(kind string) Field { return String("analysis_kind", kind) }
func Source(name string) Field       { return String("source", name) }
func Batch(n int) Field              { return Int("batch", n) }
func Rows(n int) Field               { return Int("rows", n) }
func Component(name string) Field    { return String("component", name) }
func Latency(d time.Duration) Field  { return Duration("latency", d) }
