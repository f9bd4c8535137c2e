// Package logging provides the structured logger shared by every micmetrics component.
package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields holds structured key/value pairs attached to a log entry
type Fields map[string]any

// Logger is the logging interface used across the module
type Logger interface {
	Debug(msg string, fields ...Fields)
	Info(msg string, fields ...Fields)
	Warn(msg string, fields ...Fields)
	Error(err error, msg string, fields ...Fields)
	WithFields(fields Fields) Logger
}

// Level is a logging severity
type Level int8

const (
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
)

var (
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	defaultOnce   sync.Once
	defaultLogger Logger
)

// ParseLevel converts a level name ("debug", "info", "warn", "error") into a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// String returns the lower-case level name
func (l Level) String() string {
	return zapcore.Level(l).String()
}

// SetLevel changes the level of every logger created by NewDefaultLogger
func SetLevel(level Level) {
	atomicLevel.SetLevel(zapcore.Level(level))
}

// NewDefaultLogger returns the process-wide console logger writing to stderr
func NewDefaultLogger() Logger {
	defaultOnce.Do(func() {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.Lock(os.Stderr),
			atomicLevel,
		)
		defaultLogger = NewWithCore(core)
	})
	return defaultLogger
}

// NewWithCore wraps an arbitrary zap core, mainly so tests can observe log output
func NewWithCore(core zapcore.Core) Logger {
	return &zapLogger{l: zap.New(core)}
}

// WithFields returns the default logger with the given fields attached
func WithFields(fields Fields) Logger {
	return NewDefaultLogger().WithFields(fields)
}

type zapLogger struct {
	l *zap.Logger
}

func (z *zapLogger) Debug(msg string, fields ...Fields) {
	z.l.Debug(msg, toZap(fields)...)
}

func (z *zapLogger) Info(msg string, fields ...Fields) {
	z.l.Info(msg, toZap(fields)...)
}

func (z *zapLogger) Warn(msg string, fields ...Fields) {
	z.l.Warn(msg, toZap(fields)...)
}

func (z *zapLogger) Error(err error, msg string, fields ...Fields) {
	zf := toZap(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	z.l.Error(msg, zf...)
}

func (z *zapLogger) WithFields(fields Fields) Logger {
	return &zapLogger{l: z.l.With(toZap([]Fields{fields})...)}
}

// toZap flattens field maps into zap fields with keys sorted for stable output
func toZap(fields []Fields) []zap.Field {
	var out []zap.Field
	for _, f := range fields {
		keys := make([]string, 0, len(f))
		for k := range f {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, zap.Any(k, f[k]))
		}
	}
	return out
}
