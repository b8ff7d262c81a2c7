// Package logger provides leveled logging for the acquisition service.
// It wraps the standard log package; the poll loops log at debug level so
// a production deployment at info stays quiet between session events.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents a logging level
type Level int

const (
	// DebugLevel covers per-tick poller and loop chatter.
	DebugLevel Level = iota
	// InfoLevel is the default; session and export events.
	InfoLevel
	// WarnLevel is for recovered failures (notifier, skipped writes).
	WarnLevel
	// ErrorLevel is for failures surfaced to a caller.
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel maps a config string to a Level, defaulting to InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

type state struct {
	mu     sync.RWMutex
	level  Level
	logger *log.Logger
}

var std = &state{
	level:  InfoLevel,
	logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
}

// Init sets the level and format of the package logger. Format "text"
// adds the calling file and line to every line.
func Init(level string, format string) {
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	std.level = ParseLevel(level)
	std.logger.SetFlags(flags)
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.logger.SetOutput(w)
}

// Enabled reports whether messages at l would be written.
func Enabled(l Level) bool {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.level <= l
}

func output(l Level, format string, args ...interface{}) {
	if !Enabled(l) {
		return
	}
	msg := fmt.Sprintf("["+l.String()+"] "+format, args...)
	std.mu.RLock()
	defer std.mu.RUnlock()
	_ = std.logger.Output(3, msg)
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) { output(DebugLevel, format, args...) }

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) { output(InfoLevel, format, args...) }

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) { output(WarnLevel, format, args...) }

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) { output(ErrorLevel, format, args...) }

// Fatal logs a message regardless of level and exits
func Fatal(format string, args ...interface{}) {
	std.mu.RLock()
	_ = std.logger.Output(2, fmt.Sprintf("[FATAL] "+format, args...))
	std.mu.RUnlock()
	os.Exit(1)
}
