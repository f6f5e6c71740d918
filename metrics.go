package chatwire

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics defines the interface for collecting metrics.
type Metrics interface {
	// Counter returns a counter metric.
	Counter(name string, labels MetricLabels) Counter

	// Gauge returns a gauge metric.
	Gauge(name string, labels MetricLabels) Gauge
}

// Counter is a monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()

	// Add adds the given value to the counter.
	Add(delta float64)

	// Value returns the current value.
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	// Set sets the gauge to the given value.
	Set(value float64)

	// Inc increments the gauge by 1.
	Inc()

	// Dec decrements the gauge by 1.
	Dec()

	// Value returns the current value.
	Value() float64
}

// Metric names used by the transport.
const (
	// MetricConnects is the total number of successful handshakes.
	MetricConnects = "chatwire_connects_total"

	// MetricReconnects is the total number of reconnect attempts.
	MetricReconnects = "chatwire_reconnects_total"

	// MetricConnectionsLost is the total number of unexpected closures.
	MetricConnectionsLost = "chatwire_connections_lost_total"

	// MetricFramesSent is the total number of frames written.
	MetricFramesSent = "chatwire_frames_sent_total"

	// MetricFramesReceived is the total number of frames read.
	MetricFramesReceived = "chatwire_frames_received_total"

	// MetricFramesDropped is the total number of malformed or oversized
	// inbound frames dropped.
	MetricFramesDropped = "chatwire_frames_dropped_total"

	// MetricQueueDepth is the current number of queued messages.
	MetricQueueDepth = "chatwire_queue_depth"

	// MetricQueueEvictions is the total number of overflow evictions.
	MetricQueueEvictions = "chatwire_queue_evictions_total"

	// MetricSendRetries is the total number of per-message retries.
	MetricSendRetries = "chatwire_send_retries_total"

	// MetricSendFailures is the total number of permanently failed messages.
	MetricSendFailures = "chatwire_send_failures_total"

	// MetricHeartbeatTimeouts is the total number of liveness failures.
	MetricHeartbeatTimeouts = "chatwire_heartbeat_timeouts_total"

	// MetricActiveConnections is the current number of authenticated
	// connections on a server.
	MetricActiveConnections = "chatwire_active_connections"

	// MetricAuthFailures is the total number of rejected handshakes.
	MetricAuthFailures = "chatwire_auth_failures_total"
)

// TransportMetrics provides convenience methods for recording transport
// metrics against any Metrics backend.
type TransportMetrics struct {
	metrics Metrics
}

// NewTransportMetrics creates a transport metrics recorder.
func NewTransportMetrics(m Metrics) *TransportMetrics {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &TransportMetrics{metrics: m}
}

// Connected records a successful handshake.
func (t *TransportMetrics) Connected() {
	t.metrics.Counter(MetricConnects, nil).Inc()
}

// ReconnectAttempt records a scheduled reconnect attempt.
func (t *TransportMetrics) ReconnectAttempt() {
	t.metrics.Counter(MetricReconnects, nil).Inc()
}

// ConnectionLost records an unexpected closure.
func (t *TransportMetrics) ConnectionLost() {
	t.metrics.Counter(MetricConnectionsLost, nil).Inc()
}

// FrameSent records a written frame.
func (t *TransportMetrics) FrameSent(frameType FrameType) {
	t.metrics.Counter(MetricFramesSent, MetricLabels{"type": string(frameType)}).Inc()
}

// FrameReceived records a read frame.
func (t *TransportMetrics) FrameReceived(frameType FrameType) {
	t.metrics.Counter(MetricFramesReceived, MetricLabels{"type": string(frameType)}).Inc()
}

// FrameDropped records a dropped inbound frame.
func (t *TransportMetrics) FrameDropped() {
	t.metrics.Counter(MetricFramesDropped, nil).Inc()
}

// QueueDepth records the current queue depth.
func (t *TransportMetrics) QueueDepth(depth int) {
	t.metrics.Gauge(MetricQueueDepth, nil).Set(float64(depth))
}

// QueueEviction records an overflow eviction.
func (t *TransportMetrics) QueueEviction() {
	t.metrics.Counter(MetricQueueEvictions, nil).Inc()
}

// SendRetry records a per-message retry.
func (t *TransportMetrics) SendRetry() {
	t.metrics.Counter(MetricSendRetries, nil).Inc()
}

// SendFailure records a permanently failed message.
func (t *TransportMetrics) SendFailure() {
	t.metrics.Counter(MetricSendFailures, nil).Inc()
}

// HeartbeatTimeout records a liveness failure.
func (t *TransportMetrics) HeartbeatTimeout() {
	t.metrics.Counter(MetricHeartbeatTimeouts, nil).Inc()
}

// ActiveConnections records the current number of authenticated
// connections.
func (t *TransportMetrics) ActiveConnections(n int) {
	t.metrics.Gauge(MetricActiveConnections, nil).Set(float64(n))
}

// AuthFailure records a rejected handshake.
func (t *TransportMetrics) AuthFailure() {
	t.metrics.Counter(MetricAuthFailures, nil).Inc()
}

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

// Counter returns a no-op counter.
func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter {
	return &noOpCounter{}
}

// Gauge returns a no-op gauge.
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge {
	return &noOpGauge{}
}

type noOpCounter struct{}

func (n *noOpCounter) Inc()           {}
func (n *noOpCounter) Add(_ float64)  {}
func (n *noOpCounter) Value() float64 { return 0 }

type noOpGauge struct{}

func (n *noOpGauge) Set(_ float64)  {}
func (n *noOpGauge) Inc()           {}
func (n *noOpGauge) Dec()           {}
func (n *noOpGauge) Value() float64 { return 0 }
