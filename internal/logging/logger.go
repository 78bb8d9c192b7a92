package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// It intentionally matches the pipeline's domain logger so code can depend on
// this package without importing internal/agent/ports.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if IsNil(logger) {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	if len(flattened) == 0 {
		return Nop()
	}
	if len(flattened) == 1 {
		return flattened[0]
	}
	return &multiLogger{loggers: flattened}
}

func (l *multiLogger) Debug(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Debug(format, args...)
	}
}

func (l *multiLogger) Info(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Info(format, args...)
	}
}

func (l *multiLogger) Warn(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Warn(format, args...)
	}
}

func (l *multiLogger) Error(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Error(format, args...)
	}
}

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (lv Level) String() string {
	switch lv {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	rootInstance *fileLogger
	rootOnce     sync.Once
)

// fileLogger writes structured lines to taskpilot-debug.log and stdout.
type fileLogger struct {
	file      *os.File
	sink      *log.Logger
	level     Level
	mu        sync.Mutex
	component string
}

func root() *fileLogger {
	rootOnce.Do(func() {
		rootInstance = newFileLogger("", LevelDebug)
	})
	return rootInstance
}

// NewComponentLogger creates a logger scoped to a component name. Output is
// shared with the process-wide log file.
func NewComponentLogger(component string) Logger {
	r := root()
	return &fileLogger{
		file:      r.file,
		sink:      r.sink,
		level:     r.level,
		component: component,
	}
}

func newFileLogger(component string, level Level) *fileLogger {
	l := &fileLogger{
		level:     level,
		component: component,
	}

	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Failed to get home directory: %v", err)
		return l
	}

	logPath := filepath.Join(home, "taskpilot-debug.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("Failed to open log file: %v", err)
		return l
	}

	l.file = file
	l.sink = log.New(file, "", 0) // we format ourselves
	return l
}

// SetLevel sets the minimum level emitted by the process-wide logger.
func SetLevel(level Level) {
	r := root()
	r.mu.Lock()
	r.level = level
	r.mu.Unlock()
}

func (l *fileLogger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	// Format: 2025-09-30 12:34:56 [INFO] [Component] file.go:123 - Message
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	component := l.component
	if component == "" {
		component = "TASKPILOT"
	}

	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		timestamp, level.String(), component, file, line, message)

	sanitized := sanitizeLogLine(logLine)

	if l.sink != nil {
		l.sink.Print(sanitized)
	}
	fmt.Print(sanitized)
}

func (l *fileLogger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

func (l *fileLogger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *fileLogger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *fileLogger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}
