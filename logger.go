package chatwire

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
)

// LogLevel orders log severities. Anything below the logger's level is
// suppressed.
type LogLevel int

const (
	// LogLevelDebug logs everything, including per-frame noise.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo logs connection lifecycle events.
	LogLevelInfo
	// LogLevelWarn logs recoverable problems (dropped frames, evictions).
	LogLevelWarn
	// LogLevelError logs failures.
	LogLevelError
	// LogLevelNone disables all logging.
	LogLevelNone
)

var logLevelNames = map[LogLevel]string{
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
	LogLevelNone:  "NONE",
}

// String returns the level's name.
func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// LogFields carries structured context attached to a log line.
type LogFields map[string]any

// Logger is the logging collaborator used throughout the transport.
// Client and Server take any implementation; NoOpLogger, StdLogger and
// ZapLogger are provided.
type Logger interface {
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Warn(msg string, fields LogFields)
	Error(msg string, fields LogFields)

	// WithFields returns a logger with the fields bound to every line.
	WithFields(fields LogFields) Logger

	Level() LogLevel
	SetLevel(level LogLevel)
}

// NoOpLogger discards everything. It is the default when no logger is
// configured.
type NoOpLogger struct {
	level LogLevel
}

// NewNoOpLogger creates a logger that discards all output.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{level: LogLevelNone}
}

func (n *NoOpLogger) Debug(_ string, _ LogFields) {}
func (n *NoOpLogger) Info(_ string, _ LogFields)  {}
func (n *NoOpLogger) Warn(_ string, _ LogFields)  {}
func (n *NoOpLogger) Error(_ string, _ LogFields) {}

// WithFields returns the same logger; there is nothing to bind to.
func (n *NoOpLogger) WithFields(_ LogFields) Logger { return n }

// Level returns the configured level.
func (n *NoOpLogger) Level() LogLevel { return n.level }

// SetLevel sets the level. Output stays discarded regardless.
func (n *NoOpLogger) SetLevel(level LogLevel) { n.level = level }

// StdLogger writes leveled lines through the standard library log
// package: `[LEVEL] message key:value key:value`, fields sorted by key.
type StdLogger struct {
	logger *log.Logger
	level  LogLevel
	bound  LogFields
}

// NewStdLogger creates a logger writing to w. A nil writer means
// os.Stderr.
func NewStdLogger(w io.Writer, level LogLevel) *StdLogger {
	if w == nil {
		w = os.Stderr
	}
	return &StdLogger{
		logger: log.New(w, "", log.LstdFlags),
		level:  level,
	}
}

func (s *StdLogger) Debug(msg string, fields LogFields) { s.log(LogLevelDebug, msg, fields) }
func (s *StdLogger) Info(msg string, fields LogFields)  { s.log(LogLevelInfo, msg, fields) }
func (s *StdLogger) Warn(msg string, fields LogFields)  { s.log(LogLevelWarn, msg, fields) }
func (s *StdLogger) Error(msg string, fields LogFields) { s.log(LogLevelError, msg, fields) }

// WithFields returns a logger that renders the given fields on every
// line, merged under any per-call fields.
func (s *StdLogger) WithFields(fields LogFields) Logger {
	return &StdLogger{
		logger: s.logger,
		level:  s.level,
		bound:  mergeFields(s.bound, fields),
	}
}

// Level returns the current level.
func (s *StdLogger) Level() LogLevel { return s.level }

// SetLevel changes the level for subsequent lines.
func (s *StdLogger) SetLevel(level LogLevel) { s.level = level }

func (s *StdLogger) log(level LogLevel, msg string, fields LogFields) {
	if level < s.level {
		return
	}

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)
	writeFields(&b, mergeFields(s.bound, fields))
	s.logger.Print(b.String())
}

// mergeFields overlays b on a without mutating either. Returns nil when
// both are empty.
func mergeFields(a, b LogFields) LogFields {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	merged := make(LogFields, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

// writeFields appends " key:value" pairs in key order.
func writeFields(b *strings.Builder, fields LogFields) {
	if len(fields) == 0 {
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte(':')
		switch v := fields[k].(type) {
		case string:
			b.WriteString(v)
		case error:
			b.WriteString(v.Error())
		default:
			fmt.Fprintf(b, "%v", v)
		}
	}
}

// Standard field names for transport log lines.
const (
	// LogFieldUserID is the authenticated user ID.
	LogFieldUserID = "user_id"

	// LogFieldRole is the authenticated role.
	LogFieldRole = "role"

	// LogFieldFrameType is the wire frame type.
	LogFieldFrameType = "frame_type"

	// LogFieldMessageID is the queued message ID.
	LogFieldMessageID = "message_id"

	// LogFieldReceiverID is the message receiver.
	LogFieldReceiverID = "receiver_id"

	// LogFieldAttempt is the reconnect or retry attempt number.
	LogFieldAttempt = "attempt"

	// LogFieldState is the connection state.
	LogFieldState = "state"

	// LogFieldRemoteAddr is the peer address.
	LogFieldRemoteAddr = "remote_addr"

	// LogFieldError is the error text.
	LogFieldError = "error"
)
