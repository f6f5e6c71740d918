package chatwire

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogLevel(t *testing.T) {
	t.Run("string representation", func(t *testing.T) {
		assert.Equal(t, "DEBUG", LogLevelDebug.String())
		assert.Equal(t, "INFO", LogLevelInfo.String())
		assert.Equal(t, "WARN", LogLevelWarn.String())
		assert.Equal(t, "ERROR", LogLevelError.String())
		assert.Equal(t, "NONE", LogLevelNone.String())
		assert.Equal(t, "UNKNOWN", LogLevel(99).String())
	})

	t.Run("level ordering", func(t *testing.T) {
		assert.True(t, LogLevelDebug < LogLevelInfo)
		assert.True(t, LogLevelInfo < LogLevelWarn)
		assert.True(t, LogLevelWarn < LogLevelError)
		assert.True(t, LogLevelError < LogLevelNone)
	})
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()

	t.Run("all methods are no-ops", func(_ *testing.T) {
		logger.Debug("test", nil)
		logger.Info("test", nil)
		logger.Warn("test", nil)
		logger.Error("test", nil)
	})

	t.Run("with fields returns same logger", func(t *testing.T) {
		newLogger := logger.WithFields(LogFields{LogFieldUserID: "user-1"})
		assert.Equal(t, logger, newLogger)
	})

	t.Run("level operations", func(t *testing.T) {
		assert.Equal(t, LogLevelNone, logger.Level())

		logger.SetLevel(LogLevelDebug)
		assert.Equal(t, LogLevelDebug, logger.Level())
	})
}

func TestStdLogger(t *testing.T) {
	t.Run("debug level logs all", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewStdLogger(buf, LogLevelDebug)

		logger.Debug("debug message", nil)
		logger.Info("info message", nil)
		logger.Warn("warn message", nil)
		logger.Error("error message", nil)

		output := buf.String()
		assert.Contains(t, output, "[DEBUG] debug message")
		assert.Contains(t, output, "[INFO] info message")
		assert.Contains(t, output, "[WARN] warn message")
		assert.Contains(t, output, "[ERROR] error message")
	})

	t.Run("warn level suppresses lower levels", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewStdLogger(buf, LogLevelWarn)

		logger.Debug("debug message", nil)
		logger.Info("info message", nil)
		logger.Warn("warn message", nil)

		output := buf.String()
		assert.NotContains(t, output, "debug message")
		assert.NotContains(t, output, "info message")
		assert.Contains(t, output, "warn message")
	})

	t.Run("fields are rendered", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewStdLogger(buf, LogLevelInfo)

		logger.Info("connected", LogFields{LogFieldUserID: "user-1"})

		assert.Contains(t, buf.String(), "user_id:user-1")
	})

	t.Run("fields render sorted by key", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewStdLogger(buf, LogLevelInfo)

		logger.Info("frame", LogFields{
			LogFieldUserID:    "user-1",
			LogFieldAttempt:   3,
			LogFieldFrameType: "send_message",
		})

		assert.Contains(t, buf.String(), "attempt:3 frame_type:send_message user_id:user-1")
	})

	t.Run("error fields render their message", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewStdLogger(buf, LogLevelInfo)

		logger.Info("failed", LogFields{LogFieldError: errors.New("boom")})

		assert.Contains(t, buf.String(), "error:boom")
	})

	t.Run("with fields binds to every line", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewStdLogger(buf, LogLevelInfo).WithFields(LogFields{LogFieldRole: "member"})

		logger.Info("first", nil)
		logger.Info("second", nil)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		assert.Len(t, lines, 2)
		for _, line := range lines {
			assert.Contains(t, line, "role:member")
		}
	})

	t.Run("nil writer defaults to stderr", func(t *testing.T) {
		logger := NewStdLogger(nil, LogLevelInfo)
		assert.NotNil(t, logger)
	})

	t.Run("set level", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewStdLogger(buf, LogLevelError)
		assert.Equal(t, LogLevelError, logger.Level())

		logger.SetLevel(LogLevelDebug)
		assert.Equal(t, LogLevelDebug, logger.Level())

		logger.Debug("now visible", nil)
		assert.Contains(t, buf.String(), "now visible")
	})
}
