package chatwire

import (
	"time"
)

// BackoffStrategy is a function that computes the next reconnect backoff.
// It receives the current attempt number (1-based), the previous backoff
// duration, and the error from the last connection attempt.
// Return the duration to wait before the next attempt.
// This allows implementing jitter, server hints, or custom strategies.
type BackoffStrategy func(attempt int, currentBackoff time.Duration, err error) time.Duration

// clientOptions holds configuration for a Client.
type clientOptions struct {
	// Server address and transport.
	server string
	dialer Dialer

	// Credential collaborator.
	tokens TokenProvider

	// Timeouts. connectTimeout covers dial plus handshake; authTimeout
	// bounds the handshake reply alone.
	connectTimeout time.Duration
	authTimeout    time.Duration
	writeTimeout   time.Duration

	// Heartbeat. A pong must be observed within graceFactor*interval or
	// the socket is force-closed.
	heartbeatInterval time.Duration
	heartbeatGrace    float64

	// Auto reconnect settings.
	autoReconnect    bool
	maxReconnects    int
	reconnectBackoff time.Duration
	maxBackoff       time.Duration
	backoffStrategy  BackoffStrategy

	// Outbound queue settings.
	queueCapacity   int
	maxSendRetries  int
	sendBackoff     time.Duration
	maxSendBackoff  time.Duration

	// Typing signal throttle: minimum gap between typing_start frames to
	// the same counterpart.
	typingInterval time.Duration
	// Inbound typing state clears after this much inactivity.
	typingTTL time.Duration

	// Limits.
	maxFrameSize int

	// Observability.
	logger  Logger
	metrics Metrics
	onEvent EventHandler
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() *clientOptions {
	return &clientOptions{
		connectTimeout:    10 * time.Second,
		authTimeout:       10 * time.Second,
		writeTimeout:      5 * time.Second,
		heartbeatInterval: 30 * time.Second,
		heartbeatGrace:    1.5,
		autoReconnect:     true,
		maxReconnects:     5,
		reconnectBackoff:  1 * time.Second,
		maxBackoff:        30 * time.Second,
		queueCapacity:     100,
		maxSendRetries:    3,
		sendBackoff:       500 * time.Millisecond,
		maxSendBackoff:    10 * time.Second,
		typingInterval:    2 * time.Second,
		typingTTL:         7 * time.Second,
		maxFrameSize:      MaxFrameSizeDefault,
		logger:            NewNoOpLogger(),
		metrics:           &NoOpMetrics{},
	}
}

// Option configures a Client.
type Option func(*clientOptions)

func applyOptions(opts ...Option) *clientOptions {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithServer sets the server address passed to the dialer.
func WithServer(address string) Option {
	return func(o *clientOptions) {
		o.server = address
	}
}

// WithDialer sets the transport dialer. Defaults to a WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(o *clientOptions) {
		o.dialer = d
	}
}

// WithTokenProvider sets the credential collaborator used for the
// authenticate handshake.
func WithTokenProvider(p TokenProvider) Option {
	return func(o *clientOptions) {
		o.tokens = p
	}
}

// WithToken sets a static bearer token with no refresh support.
func WithToken(token string) Option {
	return func(o *clientOptions) {
		o.tokens = StaticTokenProvider(token)
	}
}

// WithConnectTimeout sets the timeout covering dial plus handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.connectTimeout = d
	}
}

// WithAuthTimeout sets the timeout for the handshake reply.
func WithAuthTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.authTimeout = d
	}
}

// WithWriteTimeout sets the per-frame write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.writeTimeout = d
	}
}

// WithHeartbeatInterval sets the liveness probe interval. Zero disables
// heartbeats.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		o.heartbeatInterval = d
	}
}

// WithHeartbeatGrace sets the grace factor applied to the heartbeat
// interval before a silent connection is force-closed. Values below 1.0
// are clamped to 1.0.
func WithHeartbeatGrace(factor float64) Option {
	return func(o *clientOptions) {
		if factor < 1.0 {
			factor = 1.0
		}
		o.heartbeatGrace = factor
	}
}

// WithAutoReconnect enables or disables automatic reconnection.
func WithAutoReconnect(enabled bool) Option {
	return func(o *clientOptions) {
		o.autoReconnect = enabled
	}
}

// WithMaxReconnects sets the reconnect attempt budget. 0 means unlimited.
func WithMaxReconnects(n int) Option {
	return func(o *clientOptions) {
		o.maxReconnects = n
	}
}

// WithReconnectBackoff sets the initial reconnect backoff duration.
func WithReconnectBackoff(d time.Duration) Option {
	return func(o *clientOptions) {
		o.reconnectBackoff = d
	}
}

// WithMaxBackoff sets the maximum reconnect backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(o *clientOptions) {
		o.maxBackoff = d
	}
}

// WithBackoffStrategy sets a custom reconnect backoff strategy.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(o *clientOptions) {
		o.backoffStrategy = strategy
	}
}

// WithQueueCapacity sets the outbound queue capacity. When the queue is
// full, the oldest unsent message is evicted and reported failed.
func WithQueueCapacity(n int) Option {
	return func(o *clientOptions) {
		o.queueCapacity = n
	}
}

// WithMaxSendRetries sets the per-message retry budget.
func WithMaxSendRetries(n int) Option {
	return func(o *clientOptions) {
		o.maxSendRetries = n
	}
}

// WithSendBackoff sets the initial per-message retry backoff.
func WithSendBackoff(d time.Duration) Option {
	return func(o *clientOptions) {
		o.sendBackoff = d
	}
}

// WithMaxSendBackoff sets the cap on the per-message retry backoff.
func WithMaxSendBackoff(d time.Duration) Option {
	return func(o *clientOptions) {
		o.maxSendBackoff = d
	}
}

// WithTypingInterval sets the minimum gap between typing_start frames to
// the same counterpart.
func WithTypingInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		o.typingInterval = d
	}
}

// WithTypingTTL sets how long inbound typing state is held without a
// fresh signal before it clears.
func WithTypingTTL(d time.Duration) Option {
	return func(o *clientOptions) {
		o.typingTTL = d
	}
}

// WithMaxFrameSize sets the maximum accepted inbound frame size.
func WithMaxFrameSize(n int) Option {
	return func(o *clientOptions) {
		o.maxFrameSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics backend.
func WithMetrics(m Metrics) Option {
	return func(o *clientOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithOnEvent sets the lifecycle event handler.
func WithOnEvent(handler EventHandler) Option {
	return func(o *clientOptions) {
		o.onEvent = handler
	}
}
