package chatwire

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

// SendCallback reports the final outcome of a queued message: nil on a
// confirmed delivery ack, ErrQueueOverflow if the message was evicted,
// ErrSendFailed after the retry budget, ErrClientClosed if the client
// was closed with the message still pending. Called exactly once per
// message, from the queue's drain goroutine.
type SendCallback func(msg *QueuedMessage, err error)

// ContentTypeText is the default content type for chat messages.
const ContentTypeText = "text"

// QueuedMessage is a pending outbound chat message.
type QueuedMessage struct {
	ID          string
	ReceiverID  string
	Content     string
	ContentType string
	EnqueuedAt  time.Time
	Retries     int
}

type queueItem struct {
	msg      *QueuedMessage
	callback SendCallback
}

// errDeliveryInterrupted marks an in-flight message whose connection
// dropped before the ack arrived. The message goes back to the head of
// the queue without burning a retry.
var errDeliveryInterrupted = errors.New("delivery interrupted")

// sendQueue buffers outbound chat messages, delivering them strictly in
// enqueue order with a single message in flight at a time. Ordering is
// global across recipients: one queue per client, FIFO.
//
// Messages are only attempted while the connection reports connected;
// attempts left over from a dropped connection resume automatically
// after a reconnect. Explicit Close discards the queue, reporting every
// pending message through its callback.
type sendQueue struct {
	mu      sync.Mutex
	items   []*queueItem
	current *queueItem // in flight, not part of items
	sending bool       // current's frame has actually gone out
	closed  bool

	capacity   int
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	send      func(*QueuedMessage) error
	connected func() bool

	wake    chan struct{}
	results chan error // delivery result for the in-flight message
	stop    chan struct{}
	done    chan struct{}

	logger  Logger
	metrics *TransportMetrics
}

func newSendQueue(opts *clientOptions, send func(*QueuedMessage) error, connected func() bool, metrics *TransportMetrics) *sendQueue {
	q := &sendQueue{
		capacity:   opts.queueCapacity,
		maxRetries: opts.maxSendRetries,
		backoff:    opts.sendBackoff,
		maxBackoff: opts.maxSendBackoff,
		send:       send,
		connected:  connected,
		wake:       make(chan struct{}, 1),
		results:    make(chan error, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     opts.logger,
		metrics:    metrics,
	}
	go q.drainLoop()
	return q
}

// Enqueue appends a message. If the queue is at capacity, the oldest
// unsent message is evicted and reported failed with ErrQueueOverflow.
func (q *sendQueue) Enqueue(receiverID, content, contentType string, callback SendCallback) (*QueuedMessage, error) {
	if contentType == "" {
		contentType = ContentTypeText
	}

	msg := &QueuedMessage{
		ID:          uuid.Must(uuid.NewV4()).String(),
		ReceiverID:  receiverID,
		Content:     content,
		ContentType: contentType,
		EnqueuedAt:  time.Now(),
	}

	var evicted *queueItem

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClientClosed
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		evicted = q.items[0]
		q.items = q.items[1:]
	}
	q.items = append(q.items, &queueItem{msg: msg, callback: callback})
	depth := len(q.items)
	q.mu.Unlock()

	q.metrics.QueueDepth(depth)

	if evicted != nil {
		q.metrics.QueueEviction()
		q.logger.Warn("queue overflow, evicting oldest message", LogFields{
			LogFieldMessageID:  evicted.msg.ID,
			LogFieldReceiverID: evicted.msg.ReceiverID,
		})
		q.fail(evicted, ErrQueueOverflow)
	}

	q.notify()
	return msg, nil
}

// Len returns the number of pending messages, including one in flight.
func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if q.current != nil {
		n++
	}
	return n
}

// notify wakes the drain loop. Called on enqueue and when the
// connection transitions back to connected.
func (q *sendQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// HandleAck resolves the in-flight message as delivered. Duplicate acks
// with nothing in flight are dropped, making removal idempotent.
func (q *sendQueue) HandleAck() {
	q.resolve(nil)
}

// HandleSendError resolves the in-flight message as failed with the
// server-reported reason.
func (q *sendQueue) HandleSendError(reason string) {
	q.resolve(fmt.Errorf("%w: %s", ErrSendFailed, reason))
}

// ConnectionLost interrupts a pending ack wait so the in-flight message
// is requeued instead of hanging until Close.
func (q *sendQueue) ConnectionLost() {
	q.resolve(errDeliveryInterrupted)
}

// resolve delivers a result for the in-flight message. A result with
// nothing in flight, or arriving before the current message's frame has
// gone out, is dropped rather than buffered, so it cannot leak into the
// next delivery and confirm a message the server never received.
func (q *sendQueue) resolve(res error) {
	q.mu.Lock()
	inFlight := q.current != nil && q.sending
	q.mu.Unlock()
	if !inFlight {
		return
	}

	select {
	case q.results <- res:
	default:
	}
}

// setSending marks whether the in-flight message has an outstanding
// frame that a result could legitimately answer.
func (q *sendQueue) setSending(v bool) {
	q.mu.Lock()
	q.sending = v
	q.mu.Unlock()
}

// Close stops the drain loop and reports every pending message as
// failed with ErrClientClosed.
func (q *sendQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stop)
	<-q.done

	q.mu.Lock()
	pending := q.items
	q.items = nil
	current := q.current
	q.current = nil
	q.mu.Unlock()

	if current != nil {
		q.fail(current, ErrClientClosed)
	}
	for _, item := range pending {
		q.fail(item, ErrClientClosed)
	}
	q.metrics.QueueDepth(0)
}

func (q *sendQueue) drainLoop() {
	defer close(q.done)

	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
		}

		for q.connected() {
			q.mu.Lock()
			if q.closed || len(q.items) == 0 {
				q.mu.Unlock()
				break
			}
			item := q.items[0]
			q.items = q.items[1:]
			q.current = item
			q.mu.Unlock()

			if !q.deliver(item) {
				return
			}
		}
	}
}

// deliver attempts one message until it is acked, permanently failed,
// requeued after a connection drop, or the queue stops. Returns false
// when the queue is stopping.
func (q *sendQueue) deliver(item *queueItem) bool {
	// Drop any result left over from a previous delivery that resolved
	// through requeue instead of the results channel.
	select {
	case <-q.results:
	default:
	}

	for {
		if !q.connected() {
			q.requeueHead(item)
			return true
		}

		q.setSending(true)
		err := q.send(item.msg)
		if err == nil {
			select {
			case res := <-q.results:
				q.setSending(false)
				switch {
				case res == nil:
					q.finish(item, nil)
					return true
				case res == errDeliveryInterrupted:
					q.requeueHead(item)
					return true
				default:
					err = res
				}
			case <-q.stop:
				q.setSending(false)
				q.requeueHead(item)
				return false
			}
		} else {
			q.setSending(false)
		}

		if item.msg.Retries >= q.maxRetries {
			q.metrics.SendFailure()
			q.finish(item, NewSendError(item.msg.ID, item.msg.ReceiverID, item.msg.Retries, err))
			return true
		}

		delay := q.retryDelay(item.msg.Retries)
		item.msg.Retries++
		q.metrics.SendRetry()
		q.logger.Debug("retrying message", LogFields{
			LogFieldMessageID: item.msg.ID,
			LogFieldAttempt:   item.msg.Retries,
			LogFieldError:     err.Error(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-q.stop:
			timer.Stop()
			q.requeueHead(item)
			return false
		case <-timer.C:
		}
	}
}

// retryDelay computes base * 2^retries, capped.
func (q *sendQueue) retryDelay(retries int) time.Duration {
	delay := q.backoff
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay >= q.maxBackoff {
			return q.maxBackoff
		}
	}
	if delay > q.maxBackoff {
		return q.maxBackoff
	}
	return delay
}

// requeueHead puts an unfinished message back at the head of the queue,
// preserving delivery order across reconnects.
func (q *sendQueue) requeueHead(item *queueItem) {
	q.mu.Lock()
	q.current = nil
	q.items = append([]*queueItem{item}, q.items...)
	q.mu.Unlock()
}

func (q *sendQueue) finish(item *queueItem, err error) {
	q.mu.Lock()
	q.current = nil
	depth := len(q.items)
	q.mu.Unlock()

	q.metrics.QueueDepth(depth)

	if err != nil {
		q.fail(item, err)
		return
	}
	if item.callback != nil {
		item.callback(item.msg, nil)
	}
}

func (q *sendQueue) fail(item *queueItem, err error) {
	if item.callback != nil {
		item.callback(item.msg, err)
	}
}
