package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Level  string // "debug", "info", "warn" or "error"
	Format string // "json" or "console"
}

// Logger wraps a zap logger with component naming support
type Logger struct {
	z *zap.Logger
}

// Field is a structured log field
type Field = zap.Field

// New creates a logger from the given configuration
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.DisableStacktrace = true

	z, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &Logger{z: z}, nil
}

// NewNop returns a logger that discards everything (for tests)
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// Named returns a logger with the given component name appended
func (l *Logger) Named(name string) *Logger {
	return &Logger{z: l.z.Named(name)}
}

// Debug logs a message at debug level
func (l *Logger) Debug(msg string, fields ...Field) {
	l.z.Debug(msg, fields...)
}

// Info logs a message at info level
func (l *Logger) Info(msg string, fields ...Field) {
	l.z.Info(msg, fields...)
}

// Warn logs a message at warn level
func (l *Logger) Warn(msg string, fields ...Field) {
	l.z.Warn(msg, fields...)
}

// Error logs a message at error level
func (l *Logger) Error(msg string, fields ...Field) {
	l.z.Error(msg, fields...)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Field constructors, re-exported so callers don't import zap directly.

func String(key, val string) Field               { return zap.String(key, val) }
func Int(key string, val int) Field              { return zap.Int(key, val) }
func Int64(key string, val int64) Field          { return zap.Int64(key, val) }
func Uint64(key string, val uint64) Field        { return zap.Uint64(key, val) }
func Float64(key string, val float64) Field      { return zap.Float64(key, val) }
func Bool(key string, val bool) Field            { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
func Time(key string, val time.Time) Field       { return zap.Time(key, val) }
func Any(key string, val any) Field              { return zap.Any(key, val) }
func Error(err error) Field                      { return zap.Error(err) }
