package chatwire

import (
	"errors"
	"time"
)

// EventHandler receives client lifecycle events.
type EventHandler func(client *Client, event error)

// Sentinel events for client lifecycle - check with errors.Is().
var (
	// ErrConnected is emitted when the client successfully authenticates.
	ErrConnected = errors.New("connected")

	// ErrDisconnected is emitted when the client disconnects cleanly.
	ErrDisconnected = errors.New("disconnected")

	// ErrConnectionLost is emitted when the connection is lost unexpectedly.
	ErrConnectionLost = errors.New("connection lost")

	// ErrReconnecting is emitted when the client schedules a reconnect attempt.
	ErrReconnecting = errors.New("reconnecting")

	// ErrConnectionFailed is emitted when all reconnect attempts are
	// exhausted. The client stays in StateFailed until a fresh Connect.
	ErrConnectionFailed = errors.New("connection failed")
)

// Sentinel errors for connection establishment - check with errors.Is().
var (
	// ErrConnectTimeout is returned when the socket did not open and
	// authenticate within the connect timeout.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrHeartbeatTimeout is emitted when no pong is observed within the
	// grace window and the socket is force-closed.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
)

// Sentinel errors for authentication - check with errors.Is().
var (
	// ErrInvalidToken is returned when the bearer token fails structural
	// validation before any network round trip.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the server rejects the token as
	// expired and a single refresh retry did not recover.
	ErrTokenExpired = errors.New("token expired")

	// ErrAuthRejected is returned on permanent credential rejection
	// (revoked, banned). It never triggers a reconnect.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrAuthTimeout is returned when the server did not answer the
	// handshake within the auth timeout.
	ErrAuthTimeout = errors.New("authentication timeout")
)

// Sentinel errors for the outbound queue - check with errors.Is().
var (
	// ErrQueueOverflow is reported through the evicted message's callback
	// when the queue exceeds its capacity.
	ErrQueueOverflow = errors.New("queue overflow")

	// ErrSendFailed is reported through a message's callback after its
	// retry budget is exhausted.
	ErrSendFailed = errors.New("send failed")
)

// Sentinel errors for operations - check with errors.Is().
var (
	// ErrClientClosed is returned when an operation is attempted on a
	// closed client, and reported for messages discarded by Close.
	ErrClientClosed = errors.New("client closed")

	// ErrNotConnected is returned when an operation requires an active
	// authenticated connection.
	ErrNotConnected = errors.New("not connected")

	// ErrMalformedFrame marks inbound frames that failed to parse. They
	// are logged and dropped, never escalated.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrFrameTooLarge marks inbound frames above the size limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// ConnectedEvent contains details about a successful handshake.
// Extract with errors.As().
type ConnectedEvent struct {
	err    error
	UserID string
	Role   string
}

func (e *ConnectedEvent) Error() string { return e.err.Error() }
func (e *ConnectedEvent) Unwrap() error { return e.err }

// NewConnectedEvent creates a new ConnectedEvent.
func NewConnectedEvent(userID, role string) *ConnectedEvent {
	return &ConnectedEvent{
		err:    ErrConnected,
		UserID: userID,
		Role:   role,
	}
}

// ReconnectEvent contains details about a scheduled reconnect attempt.
// Extract with errors.As().
type ReconnectEvent struct {
	err         error
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	cancelFn    func()
}

func (e *ReconnectEvent) Error() string { return e.err.Error() }
func (e *ReconnectEvent) Unwrap() error { return e.err }

// Cancel stops further reconnection attempts.
func (e *ReconnectEvent) Cancel() {
	if e.cancelFn != nil {
		e.cancelFn()
	}
}

// NewReconnectEvent creates a new ReconnectEvent.
func NewReconnectEvent(attempt, maxAttempts int, delay time.Duration, cancelFn func()) *ReconnectEvent {
	return &ReconnectEvent{
		err:         ErrReconnecting,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Delay:       delay,
		cancelFn:    cancelFn,
	}
}

// ConnectionLostError contains details about an unexpected disconnection.
// Extract with errors.As().
type ConnectionLostError struct {
	err   error
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause != nil {
		return "connection lost: " + e.Cause.Error()
	}
	return "connection lost"
}

func (e *ConnectionLostError) Unwrap() error { return e.err }

// NewConnectionLostError creates a new ConnectionLostError.
func NewConnectionLostError(cause error) *ConnectionLostError {
	return &ConnectionLostError{
		err:   ErrConnectionLost,
		Cause: cause,
	}
}

// AuthError contains details about a failed handshake.
// Extract with errors.As().
type AuthError struct {
	err    error
	Reason string
	// Permanent rejections never trigger refresh or reconnect.
	Permanent bool
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.err }

// NewAuthError creates an AuthError from a server auth_error reason.
func NewAuthError(reason string) *AuthError {
	baseErr := ErrInvalidToken
	permanent := true

	switch reason {
	case AuthReasonTokenExpired:
		baseErr = ErrTokenExpired
		permanent = false
	case AuthReasonBanned, AuthReasonRevoked:
		baseErr = ErrAuthRejected
	}

	return &AuthError{
		err:       baseErr,
		Reason:    reason,
		Permanent: permanent,
	}
}

// SendError contains details about a permanently failed message.
// Extract with errors.As().
type SendError struct {
	err        error
	MessageID  string
	ReceiverID string
	Retries    int
	Cause      error
}

func (e *SendError) Error() string {
	if e.Cause != nil {
		return "send failed: " + e.Cause.Error()
	}
	return "send failed"
}

func (e *SendError) Unwrap() error { return e.err }

// NewSendError creates a new SendError.
func NewSendError(messageID, receiverID string, retries int, cause error) *SendError {
	return &SendError{
		err:        ErrSendFailed,
		MessageID:  messageID,
		ReceiverID: receiverID,
		Retries:    retries,
		Cause:      cause,
	}
}
