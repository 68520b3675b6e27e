// Package logger is a thin printf-style facade over zap used across the
// process. Call sites log with Warn("...: %v", err); structured fields are
// available through L() when they are needed.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the logging verbosity, ordered from most to least verbose.
type Level int8

const (
	TraceLevel Level = iota - 2
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
	PanicLevel
)

var levelNames = map[string]Level{
	"trace": TraceLevel,
	"debug": DebugLevel,
	"info":  InfoLevel,
	"warn":  WarnLevel,
	"error": ErrorLevel,
	"fatal": FatalLevel,
	"panic": PanicLevel,
}

func (l Level) String() string {
	for name, lvl := range levelNames {
		if lvl == l {
			return name
		}
	}
	return fmt.Sprintf("level(%d)", int8(l))
}

// ParseLevel converts a level name such as "warn" into a Level.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = "warn"
	}
	lvl, ok := levelNames[name]
	if !ok {
		return InfoLevel, fmt.Errorf("unknown log level: %q", s)
	}
	return lvl, nil
}

// zapLevel maps trace onto debug; zap has no finer level.
func (l Level) zapLevel() zapcore.Level {
	switch l {
	case TraceLevel, DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.PanicLevel
	}
}

var (
	mu      sync.RWMutex
	level   = InfoLevel
	atom    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base    = newConsoleLogger(atom, nil)
	sugared = base.Sugar()
)

func newConsoleLogger(lvl zap.AtomicLevel, outputs []string) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.OutputPaths = append(cfg.OutputPaths, outputs...)
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Init rebuilds the process logger. file, when non-empty, receives a copy of
// everything written to stderr.
func Init(lvl Level, file string) {
	var outputs []string
	if strings.TrimSpace(file) != "" {
		outputs = append(outputs, file)
	}
	mu.Lock()
	defer mu.Unlock()
	level = lvl
	atom.SetLevel(lvl.zapLevel())
	base = newConsoleLogger(atom, outputs)
	sugared = base.Sugar()
}

// SetLevel changes the verbosity without rebuilding the sinks.
func SetLevel(lvl Level) {
	mu.Lock()
	defer mu.Unlock()
	level = lvl
	atom.SetLevel(lvl.zapLevel())
}

// GetLevel returns the current verbosity.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// Replace swaps the underlying zap logger and returns a func restoring the
// previous one. Tests use it with zaptest/observer.
func Replace(l *zap.Logger) func() {
	mu.Lock()
	prevBase, prevSugar := base, sugared
	base = l.WithOptions(zap.AddCallerSkip(1))
	sugared = base.Sugar()
	mu.Unlock()
	return func() {
		mu.Lock()
		base, sugared = prevBase, prevSugar
		mu.Unlock()
	}
}

// L returns the structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func current() (*zap.SugaredLogger, Level) {
	mu.RLock()
	defer mu.RUnlock()
	return sugared, level
}

func Trace(format string, args ...any) {
	s, lvl := current()
	if lvl > TraceLevel {
		return
	}
	s.Debugf("[TRACE] "+format, args...)
}

func Debug(format string, args ...any) {
	s, _ := current()
	s.Debugf(format, args...)
}

func Info(format string, args ...any) {
	s, _ := current()
	s.Infof(format, args...)
}

func Warn(format string, args ...any) {
	s, _ := current()
	s.Warnf(format, args...)
}

func Error(format string, args ...any) {
	s, _ := current()
	s.Errorf(format, args...)
}

func Fatal(format string, args ...any) {
	s, _ := current()
	s.Fatalf(format, args...)
}

// Sync flushes buffered entries.
func Sync() {
	s, _ := current()
	_ = s.Sync()
}
