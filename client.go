package chatwire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a resilient chat transport client. It owns one framed
// duplex connection, authenticates it with a bearer token, keeps it
// alive with ping/pong probes, reconnects with capped exponential
// backoff on unexpected loss, and delivers outbound messages through a
// bounded retry queue.
//
// Construct clients explicitly with New or Dial; there is no shared
// global instance, so independent clients can coexist in one process.
type Client struct {
	options *clientOptions
	dialer  Dialer
	logger  Logger
	metrics *TransportMetrics

	queue      *sendQueue
	dispatcher *dispatcher
	presence   *presenceTracker

	// stateMu guards state, session, conn, and connStop. All connection
	// state mutation funnels through this single critical section.
	stateMu  sync.Mutex
	state    ConnState
	session  *Session
	conn     FrameConn
	connStop chan struct{}

	writeMu sync.Mutex

	closed       atomic.Bool
	reconnecting atomic.Bool
	lastPong     atomic.Int64 // Unix nano of last observed pong

	reconnectMu   sync.Mutex
	reconnectStop chan struct{}
}

// New creates a client without connecting. Call Connect to open the
// connection.
func New(opts ...Option) (*Client, error) {
	options := applyOptions(opts...)

	if options.server == "" {
		return nil, errors.New("no server configured: use WithServer()")
	}
	if options.tokens == nil {
		return nil, errors.New("no token provider configured: use WithTokenProvider() or WithToken()")
	}

	dialer := options.dialer
	if dialer == nil {
		dialer = &WSDialer{
			HandshakeTimeout: options.connectTimeout,
			MaxFrameSize:     options.maxFrameSize,
		}
	}

	c := &Client{
		options:    options,
		dialer:     dialer,
		logger:     options.logger,
		metrics:    NewTransportMetrics(options.metrics),
		dispatcher: newDispatcher(options.logger),
		presence:   newPresenceTracker(options.typingInterval, options.typingTTL),
		state:      StateIdle,
	}
	c.queue = newSendQueue(options, c.writeMessageFrame, c.IsConnected, c.metrics)

	return c, nil
}

// Dial creates a client and connects it.
func Dial(opts ...Option) (*Client, error) {
	return DialContext(context.Background(), opts...)
}

// DialContext creates a client and connects it with a context bounding
// the first attempt. The client is closed if that attempt fails.
func DialContext(ctx context.Context, opts ...Option) (*Client, error) {
	c, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := c.ConnectContext(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Connect opens and authenticates the connection. It is idempotent: a
// no-op while the client is already connecting or connected. From
// StateFailed it starts over with a fresh attempt budget.
func (c *Client) Connect() error {
	return c.ConnectContext(context.Background())
}

// ConnectContext is Connect with a caller-supplied context. It blocks
// until the handshake completes or the attempt fails; run it in a
// goroutine and watch events for a non-blocking connect. If the attempt
// fails with a recoverable error and auto-reconnect is enabled, backoff
// retries continue in the background after this returns.
func (c *Client) ConnectContext(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.stateMu.Lock()
	switch c.state {
	case StateConnecting, StateAuthenticating, StateConnected:
		c.stateMu.Unlock()
		return nil
	case StateReconnecting:
		if c.reconnecting.Load() {
			// Backoff retries already in progress.
			c.stateMu.Unlock()
			return nil
		}
	}
	c.transitionLocked(StateConnecting)
	c.stateMu.Unlock()

	err := c.establish(ctx)
	if err == nil {
		return nil
	}

	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Permanent {
		c.transition(StateFailed)
		c.emit(err)
		return err
	}

	if c.options.autoReconnect && !c.closed.Load() {
		c.transition(StateReconnecting)
		go c.reconnectLoop()
	} else {
		c.transition(StateFailed)
		c.emit(ErrConnectionFailed)
	}
	return err
}

// establish performs one full connection attempt: token validation,
// dial, handshake, and loop arming. The connect timeout covers the
// whole attempt. A structurally invalid token fails here, before any
// socket is opened, and is treated as a permanent rejection.
func (c *Client) establish(ctx context.Context) error {
	token, err := c.options.tokens.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := ValidateTokenSyntax(token); err != nil {
		return NewAuthError(AuthReasonInvalidToken)
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.options.connectTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(connectCtx, c.options.server)
	if err != nil {
		if connectCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return err
	}

	c.transition(StateAuthenticating)

	session, err := c.handshake(conn, token)
	if err != nil {
		conn.Close()
		return err
	}

	stop := make(chan struct{})

	c.stateMu.Lock()
	c.conn = conn
	c.connStop = stop
	c.session = session
	c.transitionLocked(StateConnected)
	c.stateMu.Unlock()

	c.lastPong.Store(time.Now().UnixNano())

	go c.readLoop(conn, stop)
	go c.heartbeatLoop(conn, stop)

	c.metrics.Connected()
	c.logger.Info("connected", LogFields{
		LogFieldUserID: session.UserID,
		LogFieldRole:   session.Role,
	})
	c.emit(NewConnectedEvent(session.UserID, session.Role))

	// Resume draining anything queued while the connection was down.
	c.queue.notify()

	return nil
}

// handshake sends the authenticate frame and awaits the server
// verdict. On an expiry rejection the token is refreshed and the
// handshake retried exactly once.
func (c *Client) handshake(conn FrameConn, token string) (*Session, error) {
	session, err := c.authenticate(conn, token)

	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Reason == AuthReasonTokenExpired {
		refreshed, refreshErr := c.options.tokens.Refresh()
		if refreshErr != nil {
			return nil, err
		}
		if verr := ValidateTokenSyntax(refreshed); verr != nil {
			return nil, verr
		}
		c.logger.Debug("token refreshed, retrying handshake", nil)
		return c.authenticate(conn, refreshed)
	}

	return session, err
}

// authenticate performs a single handshake round trip bounded by the
// auth timeout.
func (c *Client) authenticate(conn FrameConn, token string) (*Session, error) {
	if err := c.writeFrameTo(conn, &Frame{Type: FrameAuthenticate, Token: token}); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.options.authTimeout)); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		data, err := conn.ReadFrame()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrAuthTimeout
			}
			return nil, err
		}

		if ping, pong := isProbe(data); ping {
			c.writeRawTo(conn, []byte(rawPong))
			continue
		} else if pong {
			continue
		}

		frame, err := DecodeFrame(data, c.options.maxFrameSize)
		if err != nil {
			c.logger.Warn("dropping malformed frame during handshake", LogFields{
				LogFieldError: err.Error(),
			})
			continue
		}

		switch frame.Type {
		case FrameAuthenticated:
			return &Session{
				Identity:        Identity{UserID: frame.UserID, Role: frame.Role},
				AuthenticatedAt: time.Now(),
			}, nil
		case FrameAuthError:
			return nil, NewAuthError(frame.Error)
		default:
			// Frames delivered before the handshake verdict are ignored.
		}
	}
}

// Close disconnects intentionally. It suppresses reconnection, cancels
// all timers, discards queued messages (reporting each through its
// callback), and releases the connection. Registered frame handlers
// survive; a closed client stays closed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.cancelReconnect()

	c.stateMu.Lock()
	conn := c.conn
	c.conn = nil
	stop := c.connStop
	c.connStop = nil
	c.session = nil
	c.transitionLocked(StateIdle)
	c.stateMu.Unlock()

	if stop != nil {
		close(stop)
	}
	if conn != nil {
		conn.Close()
	}

	c.queue.Close()
	c.presence.reset()
	c.emit(ErrDisconnected)

	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// IsConnected reports whether the connection is authenticated and live.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Session returns the authenticated session for the current connection.
func (c *Client) Session() (Session, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// SendMessage queues a chat message for delivery and returns its queue
// ID. The callback reports the final outcome: nil after the server ack,
// or a terminal error. Messages queued while disconnected are delivered
// after the next reconnect, in enqueue order.
func (c *Client) SendMessage(receiverID, content string, callback SendCallback) (string, error) {
	if c.closed.Load() {
		return "", ErrClientClosed
	}

	msg, err := c.queue.Enqueue(receiverID, content, ContentTypeText, callback)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// QueueLen returns the number of pending outbound messages.
func (c *Client) QueueLen() int {
	return c.queue.Len()
}

// On registers a handler for a frame type. Handlers persist across
// reconnects and run on the read loop goroutine in registration order.
func (c *Client) On(kind FrameType, handler FrameHandler) SubscriptionID {
	return c.dispatcher.Subscribe(kind, handler)
}

// Off removes exactly one handler registration.
func (c *Client) Off(kind FrameType, id SubscriptionID) bool {
	return c.dispatcher.Unsubscribe(kind, id)
}

// StartTyping signals that the user is typing to the counterpart.
// Fire-and-forget: a silent no-op while disconnected, throttled per
// counterpart, never queued or retried.
func (c *Client) StartTyping(receiverID string) {
	if !c.presence.allowTypingSignal(receiverID) {
		return
	}
	c.signal(&Frame{Type: FrameTypingStart, ReceiverID: receiverID})
}

// StopTyping signals that the user stopped typing. Fire-and-forget.
func (c *Client) StopTyping(receiverID string) {
	c.signal(&Frame{Type: FrameTypingStop, ReceiverID: receiverID})
}

// IsTyping reports whether the counterpart is currently typing,
// according to the most recent inbound signal.
func (c *Client) IsTyping(userID string) bool {
	return c.presence.isTyping(userID)
}

// IsOnline reports the counterpart's last known online state.
func (c *Client) IsOnline(userID string) bool {
	return c.presence.isOnline(userID)
}

// IsAdminOnline reports the admin counterpart's last known online state.
func (c *Client) IsAdminOnline() bool {
	return c.presence.isAdminOnline()
}

// MarkMessagesRead asks the server to flag the messages as read.
// Requires a live connection; read marks are not queued.
func (c *Client) MarkMessagesRead(messageIDs []string) error {
	return c.writeConnected(&Frame{Type: FrameMarkMessagesRead, MessageIDs: messageIDs})
}

// MarkMessagesSeen asks the server to flag the messages as seen. Seen
// is independent from read; requires a live connection.
func (c *Client) MarkMessagesSeen(messageIDs []string) error {
	return c.writeConnected(&Frame{Type: FrameMarkMessagesSeen, MessageIDs: messageIDs})
}

// signal writes an ephemeral frame, silently dropping it when there is
// no live connection. Stale ephemeral state has no value.
func (c *Client) signal(frame *Frame) {
	conn := c.liveConn()
	if conn == nil {
		return
	}
	if err := c.writeFrameTo(conn, frame); err != nil {
		c.logger.Debug("dropping ephemeral signal", LogFields{
			LogFieldFrameType: string(frame.Type),
			LogFieldError:     err.Error(),
		})
	}
}

func (c *Client) writeConnected(frame *Frame) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	conn := c.liveConn()
	if conn == nil {
		return ErrNotConnected
	}
	return c.writeFrameTo(conn, frame)
}

// writeMessageFrame is the queue's send function.
func (c *Client) writeMessageFrame(msg *QueuedMessage) error {
	conn := c.liveConn()
	if conn == nil {
		return ErrNotConnected
	}
	return c.writeFrameTo(conn, &Frame{
		Type:       FrameSendMessage,
		Message:    msg.Content,
		ReceiverID: msg.ReceiverID,
	})
}

// liveConn returns the connection if it is authenticated and live.
func (c *Client) liveConn() FrameConn {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state != StateConnected {
		return nil
	}
	return c.conn
}

func (c *Client) writeFrameTo(conn FrameConn, frame *Frame) error {
	data, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	if err := c.writeRawTo(conn, data); err != nil {
		return err
	}
	c.metrics.FrameSent(frame.Type)
	return nil
}

func (c *Client) writeRawTo(conn FrameConn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.options.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.options.writeTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	return conn.WriteFrame(data)
}

// readLoop reads frames until the connection dies or Close tears it
// down.
func (c *Client) readLoop(conn FrameConn, stop chan struct{}) {
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			c.handleConnectionLost(conn, stop, err)
			return
		}

		if ping, pong := isProbe(data); ping {
			c.writeRawTo(conn, []byte(rawPong))
			continue
		} else if pong {
			c.lastPong.Store(time.Now().UnixNano())
			continue
		}

		frame, err := DecodeFrame(data, c.options.maxFrameSize)
		if err != nil {
			c.metrics.FrameDropped()
			c.logger.Warn("dropping malformed frame", LogFields{
				LogFieldError: err.Error(),
			})
			continue
		}

		c.metrics.FrameReceived(frame.Type)
		c.handleFrame(frame)
	}
}

// handleFrame updates transport-owned state, then fans the frame out to
// subscribers.
func (c *Client) handleFrame(frame *Frame) {
	switch frame.Type {
	case FrameMessageSent:
		// Both the delivery ack and a relayed incoming message arrive
		// as message_sent; only frames for our own send resolve the
		// queue. A relayed copy proves its sender is online.
		session, _ := c.Session()
		if frame.Sender == "" || frame.Sender == session.UserID {
			c.queue.HandleAck()
		} else {
			c.presence.setOnline(frame.Sender, true)
		}
	case FrameChatError:
		c.queue.HandleSendError(frame.Error)
	case FrameUserTyping:
		c.presence.setTyping(frame.UserID, frame.IsTyping)
		if frame.UserID != "" {
			c.presence.setOnline(frame.UserID, true)
		}
	case FrameAdminOnline:
		c.presence.setAdminOnline(frame.IsOnline)
		if frame.UserID != "" {
			c.presence.setOnline(frame.UserID, frame.IsOnline)
		}
	}

	c.dispatcher.Dispatch(frame)
}

// heartbeatLoop probes liveness. A connection that stops answering
// pongs within the grace window is force-closed, which lands in the
// read loop's error path and triggers reconnection. This catches
// silently-dead connections that never fire a close.
func (c *Client) heartbeatLoop(conn FrameConn, stop chan struct{}) {
	interval := c.options.heartbeatInterval
	if interval <= 0 {
		return
	}

	grace := time.Duration(float64(interval) * c.options.heartbeatGrace)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			lastPong := time.Unix(0, c.lastPong.Load())
			if time.Since(lastPong) > grace {
				c.metrics.HeartbeatTimeout()
				c.logger.Warn("no pong within grace window, closing connection", LogFields{
					LogFieldRemoteAddr: conn.RemoteAddr().String(),
				})
				c.emit(ErrHeartbeatTimeout)
				conn.Close()
				return
			}

			if err := c.writeRawTo(conn, []byte(rawPing)); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// handleConnectionLost tears down a dead connection and decides whether
// to reconnect. Intentional closes (stop already closed) do nothing.
func (c *Client) handleConnectionLost(conn FrameConn, stop chan struct{}, cause error) {
	select {
	case <-stop:
		return
	default:
	}

	c.stateMu.Lock()
	if c.conn != conn {
		c.stateMu.Unlock()
		return
	}
	c.conn = nil
	c.connStop = nil
	c.session = nil
	c.transitionLocked(StateReconnecting)
	c.stateMu.Unlock()

	close(stop)
	conn.Close()

	c.presence.reset()
	c.queue.ConnectionLost()
	c.metrics.ConnectionLost()

	if c.closed.Load() {
		return
	}

	c.logger.Warn("connection lost", LogFields{LogFieldError: cause.Error()})
	c.emit(NewConnectionLostError(cause))

	if c.options.autoReconnect {
		go c.reconnectLoop()
	} else {
		c.transition(StateFailed)
		c.emit(ErrConnectionFailed)
	}
}

// reconnectLoop retries the connection with exponential backoff until
// success, cancellation, a permanent auth rejection, or the attempt
// budget runs out.
func (c *Client) reconnectLoop() {
	if c.closed.Load() {
		return
	}

	if !c.reconnecting.CompareAndSwap(false, true) {
		return // Already reconnecting
	}
	defer c.reconnecting.Store(false)

	c.reconnectMu.Lock()
	c.reconnectStop = make(chan struct{})
	stopCh := c.reconnectStop
	c.reconnectMu.Unlock()

	attempt := 0
	backoff := c.options.reconnectBackoff

	for {
		if c.closed.Load() {
			return
		}

		attempt++
		if c.options.maxReconnects > 0 && attempt > c.options.maxReconnects {
			c.transition(StateFailed)
			c.emit(ErrConnectionFailed)
			return
		}

		c.metrics.ReconnectAttempt()
		c.emit(NewReconnectEvent(attempt, c.options.maxReconnects, backoff, c.cancelReconnect))

		timer := time.NewTimer(backoff)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		if c.closed.Load() {
			return
		}

		c.transition(StateConnecting)
		err := c.establish(context.Background())
		if err == nil {
			return // Successfully reconnected
		}

		var authErr *AuthError
		if errors.As(err, &authErr) && authErr.Permanent {
			c.transition(StateFailed)
			c.emit(err)
			return
		}

		c.transition(StateReconnecting)

		if c.options.backoffStrategy != nil {
			backoff = c.options.backoffStrategy(attempt, backoff, err)
		} else {
			backoff *= 2
		}
		if backoff > c.options.maxBackoff {
			backoff = c.options.maxBackoff
		}
	}
}

// cancelReconnect stops any in-progress reconnect loop.
func (c *Client) cancelReconnect() {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	if c.reconnectStop != nil {
		select {
		case <-c.reconnectStop:
			// Already closed
		default:
			close(c.reconnectStop)
		}
	}
}

func (c *Client) transition(next ConnState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.transitionLocked(next)
}

func (c *Client) transitionLocked(next ConnState) {
	if c.state == next {
		return
	}
	if !validTransition(c.state, next) {
		c.logger.Debug("ignoring invalid state transition", LogFields{
			LogFieldState: c.state.String(),
			"next":        next.String(),
		})
		return
	}
	c.state = next
}

func (c *Client) emit(event error) {
	if c.options.onEvent != nil {
		c.options.onEvent(c, event)
	}
}
