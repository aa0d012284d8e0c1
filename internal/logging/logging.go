// Package logging provides a small leveled logger with structured fields.
package logging

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

// Level controls which messages a Logger emits
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Field is a set of key/value pairs attached to a log message
type Field map[string]interface{}

// WithField creates a Field with a single key/value pair
func WithField(key string, value interface{}) Field {
	return Field{key: value}
}

// WithFields creates a Field from a map
func WithFields(fields map[string]interface{}) Field {
	return Field(fields)
}

// Logger writes leveled, structured log lines
type Logger struct {
	level Level
	out   *log.Logger
}

// New creates a logger that writes to stderr at the given level
func New(level Level) *Logger {
	return &Logger{
		level: level,
		out:   log.New(os.Stderr, "", log.LstdFlags),
	}
}

// ParseLevel maps a config string to a Level, defaulting to info
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.write(LevelDebug, msg, fields)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.write(LevelInfo, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.write(LevelWarn, msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.write(LevelError, msg, fields)
}

func (l *Logger) write(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	merged := make(map[string]interface{})
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}

	if len(merged) == 0 {
		l.out.Printf("%s %s", level, msg)
		return
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, merged[k])
	}
	l.out.Printf("%s %s%s", level, msg, b.String())
}
