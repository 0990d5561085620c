package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// ParseLevel maps a config level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger provides leveled logging to stdout/stderr and, optionally, a file.
type Logger struct {
	debugLog   *log.Logger
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	level      Level
	file       *os.File
	mu         sync.Mutex
}

// New creates a Logger at the given level. When path is non-empty, entries
// are also appended to that file; its directory is created if needed.
func New(level Level, path string) (*Logger, error) {
	var out, errOut io.Writer = os.Stdout, os.Stderr

	l := &Logger{level: level}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		l.file = file
		out = io.MultiWriter(out, file)
		errOut = io.MultiWriter(errOut, file)
	}

	l.setup(out, errOut)
	return l, nil
}

// NewWriter creates a Logger writing every level to w. Used by tests.
func NewWriter(level Level, w io.Writer) *Logger {
	l := &Logger{level: level}
	l.setup(w, w)
	return l
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWriter(LevelError+1, io.Discard)
}

func (l *Logger) setup(out, errOut io.Writer) {
	flags := log.Ldate | log.Ltime | log.Lmsgprefix
	l.debugLog = log.New(out, "DEBUG   ", flags)
	l.infoLog = log.New(out, "INFO    ", flags)
	l.warningLog = log.New(out, "WARNING ", flags)
	l.errorLog = log.New(errOut, "ERROR   ", flags)
}

func (l *Logger) write(level Level, dst *log.Logger, format string, v []interface{}) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	dst.Printf(format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.write(LevelDebug, l.debugLog, format, v)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.write(LevelInfo, l.infoLog, format, v)
}

func (l *Logger) Warning(format string, v ...interface{}) {
	l.write(LevelWarning, l.warningLog, format, v)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.write(LevelError, l.errorLog, format, v)
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
