package chatwire

import (
	"go.uber.org/zap"
)

// ZapLogger adapts a zap.Logger to the Logger interface.
type ZapLogger struct {
	logger *zap.Logger
	level  LogLevel
}

// NewZapLogger wraps a zap logger. A nil logger falls back to zap.NewNop().
func NewZapLogger(logger *zap.Logger, level LogLevel) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{
		logger: logger,
		level:  level,
	}
}

// Debug logs a debug message.
func (z *ZapLogger) Debug(msg string, fields LogFields) {
	if z.level <= LogLevelDebug {
		z.logger.Debug(msg, zapFields(fields)...)
	}
}

// Info logs an info message.
func (z *ZapLogger) Info(msg string, fields LogFields) {
	if z.level <= LogLevelInfo {
		z.logger.Info(msg, zapFields(fields)...)
	}
}

// Warn logs a warning message.
func (z *ZapLogger) Warn(msg string, fields LogFields) {
	if z.level <= LogLevelWarn {
		z.logger.Warn(msg, zapFields(fields)...)
	}
}

// Error logs an error message.
func (z *ZapLogger) Error(msg string, fields LogFields) {
	if z.level <= LogLevelError {
		z.logger.Error(msg, zapFields(fields)...)
	}
}

// WithFields returns a new logger with the given fields bound.
func (z *ZapLogger) WithFields(fields LogFields) Logger {
	return &ZapLogger{
		logger: z.logger.With(zapFields(fields)...),
		level:  z.level,
	}
}

// Level returns the current log level.
func (z *ZapLogger) Level() LogLevel {
	return z.level
}

// SetLevel sets the log level.
func (z *ZapLogger) SetLevel(level LogLevel) {
	z.level = level
}

func zapFields(fields LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
