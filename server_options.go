package chatwire

import (
	"time"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	auth  Authenticator
	store MessageStore

	// handshakeTimeout bounds the wait for the authenticate frame.
	handshakeTimeout time.Duration

	// Clients are expected to ping at livenessInterval; a connection
	// silent for livenessInterval*livenessGrace is dropped.
	livenessInterval time.Duration
	livenessGrace    float64

	// adminRole marks which authenticated role counts as the admin
	// counterpart for presence broadcasts.
	adminRole string

	maxFrameSize   int
	maxConnections int

	logger  Logger
	metrics Metrics

	onConnect    func(*ServerClient)
	onDisconnect func(*ServerClient)
	onMessage    func(*ServerClient, *ChatMessage)
}

func defaultServerConfig() *serverConfig {
	return &serverConfig{
		store:            NewMemoryMessageStore(),
		handshakeTimeout: 10 * time.Second,
		livenessInterval: 30 * time.Second,
		livenessGrace:    1.5,
		adminRole:        "admin",
		maxFrameSize:     MaxFrameSizeDefault,
		maxConnections:   0, // unlimited
		logger:           NewNoOpLogger(),
		metrics:          &NoOpMetrics{},
	}
}

// WithServerAuth sets the token authenticator. Required.
func WithServerAuth(auth Authenticator) ServerOption {
	return func(c *serverConfig) {
		c.auth = auth
	}
}

// WithMessageStore sets the durable message store.
func WithMessageStore(store MessageStore) ServerOption {
	return func(c *serverConfig) {
		c.store = store
	}
}

// WithHandshakeTimeout bounds the wait for the authenticate frame.
func WithHandshakeTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.handshakeTimeout = d
	}
}

// WithServerLiveness sets the expected client ping interval and the
// grace factor before a silent connection is dropped.
func WithServerLiveness(interval time.Duration, grace float64) ServerOption {
	return func(c *serverConfig) {
		c.livenessInterval = interval
		if grace >= 1.0 {
			c.livenessGrace = grace
		}
	}
}

// WithAdminRole sets which role counts as the admin counterpart for
// presence broadcasts.
func WithAdminRole(role string) ServerOption {
	return func(c *serverConfig) {
		c.adminRole = role
	}
}

// WithServerMaxFrameSize sets the maximum accepted inbound frame size.
func WithServerMaxFrameSize(n int) ServerOption {
	return func(c *serverConfig) {
		c.maxFrameSize = n
	}
}

// WithMaxConnections sets the maximum number of concurrent connections.
// 0 means unlimited.
func WithMaxConnections(n int) ServerOption {
	return func(c *serverConfig) {
		c.maxConnections = n
	}
}

// WithServerLogger sets the server logger.
func WithServerLogger(logger Logger) ServerOption {
	return func(c *serverConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithServerMetrics sets the server metrics backend.
func WithServerMetrics(m Metrics) ServerOption {
	return func(c *serverConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithOnConnect sets a hook invoked after a client authenticates.
func WithOnConnect(fn func(*ServerClient)) ServerOption {
	return func(c *serverConfig) {
		c.onConnect = fn
	}
}

// WithOnDisconnect sets a hook invoked after a client disconnects.
func WithOnDisconnect(fn func(*ServerClient)) ServerOption {
	return func(c *serverConfig) {
		c.onDisconnect = fn
	}
}

// WithOnMessage sets a hook invoked after a message is stored.
func WithOnMessage(fn func(*ServerClient, *ChatMessage)) ServerOption {
	return func(c *serverConfig) {
		c.onMessage = fn
	}
}
