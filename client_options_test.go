package chatwire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opts := defaultOptions()

	assert.Equal(t, 10*time.Second, opts.connectTimeout)
	assert.Equal(t, 10*time.Second, opts.authTimeout)
	assert.Equal(t, 5*time.Second, opts.writeTimeout)
	assert.Equal(t, 30*time.Second, opts.heartbeatInterval)
	assert.Equal(t, 1.5, opts.heartbeatGrace)
	assert.True(t, opts.autoReconnect)
	assert.Equal(t, 5, opts.maxReconnects)
	assert.Equal(t, time.Second, opts.reconnectBackoff)
	assert.Equal(t, 30*time.Second, opts.maxBackoff)
	assert.Equal(t, 100, opts.queueCapacity)
	assert.Equal(t, 3, opts.maxSendRetries)
	assert.Equal(t, 500*time.Millisecond, opts.sendBackoff)
	assert.Equal(t, 10*time.Second, opts.maxSendBackoff)
	assert.Equal(t, 2*time.Second, opts.typingInterval)
	assert.Equal(t, 7*time.Second, opts.typingTTL)
	assert.Equal(t, MaxFrameSizeDefault, opts.maxFrameSize)
	assert.NotNil(t, opts.logger)
	assert.NotNil(t, opts.metrics)
	assert.Nil(t, opts.onEvent)
}

func TestApplyOptions(t *testing.T) {
	t.Run("overrides", func(t *testing.T) {
		dialer := &TCPDialer{}
		provider := StaticTokenProvider("token")

		opts := applyOptions(
			WithServer("tcp://localhost:9000"),
			WithDialer(dialer),
			WithTokenProvider(provider),
			WithConnectTimeout(3*time.Second),
			WithAuthTimeout(2*time.Second),
			WithWriteTimeout(time.Second),
			WithHeartbeatInterval(10*time.Second),
			WithHeartbeatGrace(2.0),
			WithAutoReconnect(false),
			WithMaxReconnects(10),
			WithReconnectBackoff(100*time.Millisecond),
			WithMaxBackoff(5*time.Second),
			WithQueueCapacity(50),
			WithMaxSendRetries(1),
			WithSendBackoff(10*time.Millisecond),
			WithMaxSendBackoff(time.Second),
			WithTypingInterval(time.Second),
			WithTypingTTL(3*time.Second),
			WithMaxFrameSize(4096),
		)

		assert.Equal(t, "tcp://localhost:9000", opts.server)
		assert.Equal(t, dialer, opts.dialer)
		assert.Equal(t, provider, opts.tokens)
		assert.Equal(t, 3*time.Second, opts.connectTimeout)
		assert.Equal(t, 2*time.Second, opts.authTimeout)
		assert.Equal(t, time.Second, opts.writeTimeout)
		assert.Equal(t, 10*time.Second, opts.heartbeatInterval)
		assert.Equal(t, 2.0, opts.heartbeatGrace)
		assert.False(t, opts.autoReconnect)
		assert.Equal(t, 10, opts.maxReconnects)
		assert.Equal(t, 100*time.Millisecond, opts.reconnectBackoff)
		assert.Equal(t, 5*time.Second, opts.maxBackoff)
		assert.Equal(t, 50, opts.queueCapacity)
		assert.Equal(t, 1, opts.maxSendRetries)
		assert.Equal(t, 10*time.Millisecond, opts.sendBackoff)
		assert.Equal(t, time.Second, opts.maxSendBackoff)
		assert.Equal(t, time.Second, opts.typingInterval)
		assert.Equal(t, 3*time.Second, opts.typingTTL)
		assert.Equal(t, 4096, opts.maxFrameSize)
	})

	t.Run("with token wraps a static provider", func(t *testing.T) {
		opts := applyOptions(WithToken("my-token"))

		token, err := opts.tokens.Token()
		assert.NoError(t, err)
		assert.Equal(t, "my-token", token)
	})

	t.Run("heartbeat grace clamps below one", func(t *testing.T) {
		opts := applyOptions(WithHeartbeatGrace(0.5))
		assert.Equal(t, 1.0, opts.heartbeatGrace)
	})

	t.Run("nil logger and metrics are ignored", func(t *testing.T) {
		opts := applyOptions(WithLogger(nil), WithMetrics(nil))
		assert.NotNil(t, opts.logger)
		assert.NotNil(t, opts.metrics)
	})

	t.Run("backoff strategy", func(t *testing.T) {
		strategy := func(_ int, current time.Duration, _ error) time.Duration {
			return current + time.Second
		}
		opts := applyOptions(WithBackoffStrategy(strategy))
		assert.NotNil(t, opts.backoffStrategy)
		assert.Equal(t, 3*time.Second, opts.backoffStrategy(1, 2*time.Second, nil))
	})
}
