package chatwire

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueHarness drives a sendQueue with a controllable connection flag
// and a recording send function.
type queueHarness struct {
	queue     *sendQueue
	connected atomic.Bool

	mu    sync.Mutex
	sent  []*QueuedMessage
	sendC chan *QueuedMessage

	sendErr atomic.Value // error to return from send
}

func newQueueHarness(configure ...Option) *queueHarness {
	h := &queueHarness{
		sendC: make(chan *QueuedMessage, 64),
	}

	opts := applyOptions(append([]Option{
		WithQueueCapacity(100),
		WithMaxSendRetries(3),
		WithSendBackoff(time.Millisecond),
		WithMaxSendBackoff(10 * time.Millisecond),
	}, configure...)...)

	h.queue = newSendQueue(opts, h.send, h.connected.Load, NewTransportMetrics(nil))
	return h
}

func (h *queueHarness) send(msg *QueuedMessage) error {
	if err, ok := h.sendErr.Load().(error); ok && err != nil {
		return err
	}

	h.mu.Lock()
	h.sent = append(h.sent, msg)
	h.mu.Unlock()
	h.sendC <- msg
	return nil
}

func (h *queueHarness) sentMessages() []*QueuedMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*QueuedMessage(nil), h.sent...)
}

func (h *queueHarness) waitSend(t *testing.T) *QueuedMessage {
	t.Helper()
	select {
	case msg := <-h.sendC:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a send attempt")
		return nil
	}
}

// callbackRecorder collects per-message outcomes.
type callbackRecorder struct {
	ch chan error
}

func newCallbackRecorder() *callbackRecorder {
	return &callbackRecorder{ch: make(chan error, 16)}
}

func (r *callbackRecorder) callback(_ *QueuedMessage, err error) {
	r.ch <- err
}

func (r *callbackRecorder) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a callback")
		return nil
	}
}

func TestSendQueueEnqueue(t *testing.T) {
	t.Run("assigns id and defaults content type", func(t *testing.T) {
		h := newQueueHarness()
		defer h.queue.Close()

		msg, err := h.queue.Enqueue("user-2", "hello", "", nil)
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, ContentTypeText, msg.ContentType)
		assert.Equal(t, "user-2", msg.ReceiverID)
		assert.False(t, msg.EnqueuedAt.IsZero())
	})

	t.Run("rejects after close", func(t *testing.T) {
		h := newQueueHarness()
		h.queue.Close()

		_, err := h.queue.Enqueue("user-2", "hello", "", nil)
		assert.ErrorIs(t, err, ErrClientClosed)
	})
}

func TestSendQueueHoldsWhileDisconnected(t *testing.T) {
	h := newQueueHarness()
	defer h.queue.Close()

	for i := 0; i < 3; i++ {
		_, err := h.queue.Enqueue("user-2", "msg", "", nil)
		require.NoError(t, err)
	}

	// No connection: nothing may be attempted.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.sentMessages())
	assert.Equal(t, 3, h.queue.Len())
}

func TestSendQueueDrainsInOrder(t *testing.T) {
	h := newQueueHarness()
	defer h.queue.Close()

	rec := newCallbackRecorder()
	first, err := h.queue.Enqueue("user-2", "first", "", rec.callback)
	require.NoError(t, err)
	second, err := h.queue.Enqueue("user-2", "second", "", rec.callback)
	require.NoError(t, err)
	third, err := h.queue.Enqueue("user-3", "third", "", rec.callback)
	require.NoError(t, err)

	h.connected.Store(true)
	h.queue.notify()

	for i := 0; i < 3; i++ {
		h.waitSend(t)
		h.queue.HandleAck()
		assert.NoError(t, rec.wait(t))
	}

	sent := h.sentMessages()
	require.Len(t, sent, 3)
	assert.Equal(t, first.ID, sent[0].ID)
	assert.Equal(t, second.ID, sent[1].ID)
	assert.Equal(t, third.ID, sent[2].ID)
	assert.Equal(t, 0, h.queue.Len())
}

func TestSendQueueOverflowEvictsOldest(t *testing.T) {
	h := newQueueHarness(WithQueueCapacity(2))
	defer h.queue.Close()

	rec := newCallbackRecorder()
	oldest, err := h.queue.Enqueue("user-2", "oldest", "", rec.callback)
	require.NoError(t, err)
	_, err = h.queue.Enqueue("user-2", "kept", "", nil)
	require.NoError(t, err)
	newest, err := h.queue.Enqueue("user-2", "newest", "", nil)
	require.NoError(t, err)

	err = rec.wait(t)
	assert.ErrorIs(t, err, ErrQueueOverflow)
	assert.Equal(t, 2, h.queue.Len())

	// The evicted message is the oldest, never the new arrival.
	h.connected.Store(true)
	h.queue.notify()
	assert.NotEqual(t, oldest.ID, h.waitSend(t).ID)
	h.queue.HandleAck()
	assert.Equal(t, newest.ID, h.waitSend(t).ID)
	h.queue.HandleAck()
}

func TestSendQueueRetryWithBackoff(t *testing.T) {
	h := newQueueHarness(WithMaxSendRetries(2))
	defer h.queue.Close()
	h.connected.Store(true)

	h.sendErr.Store(errors.New("write refused"))

	rec := newCallbackRecorder()
	msg, err := h.queue.Enqueue("user-2", "doomed", "", rec.callback)
	require.NoError(t, err)

	err = rec.wait(t)
	assert.ErrorIs(t, err, ErrSendFailed)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, msg.ID, sendErr.MessageID)
	assert.Equal(t, "user-2", sendErr.ReceiverID)
	assert.Equal(t, 2, sendErr.Retries)
}

func TestSendQueueServerRejection(t *testing.T) {
	h := newQueueHarness(WithMaxSendRetries(1))
	defer h.queue.Close()
	h.connected.Store(true)

	rec := newCallbackRecorder()
	_, err := h.queue.Enqueue("user-2", "rejected", "", rec.callback)
	require.NoError(t, err)

	// The server answers every attempt with a chat error.
	for i := 0; i < 2; i++ {
		h.waitSend(t)
		h.queue.HandleSendError("receiver not found")
	}

	err = rec.wait(t)
	assert.ErrorIs(t, err, ErrSendFailed)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Contains(t, sendErr.Cause.Error(), "receiver not found")
}

func TestSendQueueRetryDelay(t *testing.T) {
	h := newQueueHarness(
		WithSendBackoff(100*time.Millisecond),
		WithMaxSendBackoff(300*time.Millisecond),
	)
	defer h.queue.Close()

	assert.Equal(t, 100*time.Millisecond, h.queue.retryDelay(0))
	assert.Equal(t, 200*time.Millisecond, h.queue.retryDelay(1))
	assert.Equal(t, 300*time.Millisecond, h.queue.retryDelay(2))
	assert.Equal(t, 300*time.Millisecond, h.queue.retryDelay(10))
}

func TestSendQueueConnectionLostRequeues(t *testing.T) {
	h := newQueueHarness()
	defer h.queue.Close()
	h.connected.Store(true)

	rec := newCallbackRecorder()
	msg, err := h.queue.Enqueue("user-2", "survives", "", rec.callback)
	require.NoError(t, err)

	// First attempt goes out, then the connection drops before the ack.
	h.waitSend(t)
	h.connected.Store(false)
	h.queue.ConnectionLost()

	// Still pending, no outcome reported, no retry burned.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.queue.Len())
	assert.Empty(t, rec.ch)

	// After reconnect the same message goes out again and completes.
	h.connected.Store(true)
	h.queue.notify()

	resent := h.waitSend(t)
	assert.Equal(t, msg.ID, resent.ID)
	assert.Equal(t, 0, resent.Retries)

	h.queue.HandleAck()
	assert.NoError(t, rec.wait(t))
}

func TestSendQueueDuplicateAckDropped(t *testing.T) {
	h := newQueueHarness()
	defer h.queue.Close()

	// Acks with nothing in flight must not buffer a stale result.
	h.queue.HandleAck()
	h.queue.HandleAck()

	h.connected.Store(true)

	rec := newCallbackRecorder()
	_, err := h.queue.Enqueue("user-2", "hello", "", rec.callback)
	require.NoError(t, err)

	// The message must wait for its own ack, not a stale one.
	h.waitSend(t)
	select {
	case <-rec.ch:
		t.Fatal("message completed without an ack")
	case <-time.After(50 * time.Millisecond):
	}

	h.queue.HandleAck()
	assert.NoError(t, rec.wait(t))
}

func TestSendQueueStaleAckDuringRetryBackoffDropped(t *testing.T) {
	var attempts atomic.Int32
	attemptC := make(chan int, 8)

	opts := applyOptions(
		WithQueueCapacity(100),
		WithMaxSendRetries(3),
		WithSendBackoff(200*time.Millisecond),
		WithMaxSendBackoff(time.Second),
	)

	// First attempt fails locally; the retry succeeds.
	send := func(_ *QueuedMessage) error {
		n := int(attempts.Add(1))
		attemptC <- n
		if n == 1 {
			return errors.New("write failed")
		}
		return nil
	}

	q := newSendQueue(opts, send, func() bool { return true }, NewTransportMetrics(nil))
	defer q.Close()

	rec := newCallbackRecorder()
	_, err := q.Enqueue("user-2", "hello", "", rec.callback)
	require.NoError(t, err)

	// Wait out the failed attempt, then ack while the queue sits in its
	// retry backoff with no frame outstanding. The short sleep lets the
	// failed send return before the ack lands.
	require.Equal(t, 1, <-attemptC)
	time.Sleep(20 * time.Millisecond)
	q.HandleAck()

	// The retried frame must wait for its own ack; the stale one cannot
	// confirm a frame the server never saw.
	require.Equal(t, 2, <-attemptC)
	select {
	case <-rec.ch:
		t.Fatal("retry completed on a stale ack")
	case <-time.After(50 * time.Millisecond):
	}

	q.HandleAck()
	assert.NoError(t, rec.wait(t))
}

func TestSendQueueClose(t *testing.T) {
	t.Run("fails pending messages", func(t *testing.T) {
		h := newQueueHarness()

		rec := newCallbackRecorder()
		for i := 0; i < 3; i++ {
			_, err := h.queue.Enqueue("user-2", "pending", "", rec.callback)
			require.NoError(t, err)
		}

		h.queue.Close()

		for i := 0; i < 3; i++ {
			assert.ErrorIs(t, rec.wait(t), ErrClientClosed)
		}
		assert.Equal(t, 0, h.queue.Len())
	})

	t.Run("idempotent", func(t *testing.T) {
		h := newQueueHarness()
		h.queue.Close()
		h.queue.Close()
	})
}
