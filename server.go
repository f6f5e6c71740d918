package chatwire

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Server is the companion session and authentication handler for the
// chat feature. It authenticates each connection's bearer token,
// routes chat messages through the durable store, relays typing
// signals, tracks read/seen marks, and broadcasts admin presence.
//
// Durable message persistence belongs to the MessageStore collaborator;
// the server itself holds only live connection state.
type Server struct {
	config  *serverConfig
	logger  Logger
	metrics *TransportMetrics

	mu      sync.RWMutex
	clients map[string]*ServerClient // userID -> connection

	running atomic.Bool
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// NewServer creates a chat server. WithServerAuth is required before
// the server can accept connections.
func NewServer(opts ...ServerOption) *Server {
	config := defaultServerConfig()
	for _, opt := range opts {
		opt(config)
	}

	return &Server{
		config:  config,
		logger:  config.logger,
		metrics: NewTransportMetrics(config.metrics),
		clients: make(map[string]*ServerClient),
	}
}

// Serve accepts connections from the listener until it is closed.
func (s *Server) Serve(listener Listener) error {
	if s.config.auth == nil {
		return errors.New("no authenticator configured: use WithServerAuth()")
	}
	s.running.Store(true)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			return err
		}
		s.HandleConn(conn)
	}
}

// HandleConn takes ownership of one framed connection. Used directly
// by transport handlers such as WSHandler.
func (s *Server) HandleConn(conn FrameConn) {
	if s.closed.Load() || s.config.auth == nil {
		conn.Close()
		return
	}

	if s.config.maxConnections > 0 {
		s.mu.RLock()
		count := len(s.clients)
		s.mu.RUnlock()

		if count >= s.config.maxConnections {
			conn.Close()
			return
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serveConn(conn)
	}()
}

// Close stops the server and disconnects every client.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.running.Store(false)

	s.mu.Lock()
	clients := make([]*ServerClient, 0, len(s.clients))
	for _, sc := range s.clients {
		clients = append(clients, sc)
	}
	s.clients = make(map[string]*ServerClient)
	s.mu.Unlock()

	for _, sc := range clients {
		sc.close()
	}

	s.wg.Wait()
	return nil
}

// ClientCount returns the number of authenticated connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// IsOnline reports whether a user has a live connection.
func (s *Server) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clients[userID]
	return ok
}

// serveConn runs the handshake and, on success, the client's read
// loop. The first frame must be authenticate; anything else closes the
// connection.
func (s *Server) serveConn(conn FrameConn) {
	logger := s.logger.WithFields(LogFields{
		LogFieldRemoteAddr: conn.RemoteAddr().String(),
	})

	identity, err := s.handshake(conn)
	if err != nil {
		logger.Debug("handshake failed", LogFields{LogFieldError: err.Error()})
		conn.Close()
		return
	}

	sc := newServerClient(s, conn, *identity)
	s.register(sc)

	sc.Send(&Frame{
		Type:   FrameAuthenticated,
		UserID: identity.UserID,
		Role:   identity.Role,
	})

	s.announcePresence(sc, true)
	if s.config.onConnect != nil {
		s.config.onConnect(sc)
	}

	sc.logger.Info("client authenticated", nil)
	sc.readLoop()
}

// handshake reads the authenticate frame and verifies its token.
func (s *Server) handshake(conn FrameConn) (*Identity, error) {
	if s.config.handshakeTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.config.handshakeTimeout))
		defer conn.SetReadDeadline(time.Time{})
	}

	data, err := conn.ReadFrame()
	if err != nil {
		return nil, err
	}

	frame, err := DecodeFrame(data, s.config.maxFrameSize)
	if err != nil {
		return nil, err
	}
	if frame.Type != FrameAuthenticate {
		return nil, errors.New("first frame not authenticate")
	}

	identity, err := s.config.auth.Authenticate(frame.Token)
	if err != nil {
		s.metrics.AuthFailure()
		s.writeFrame(conn, &Frame{
			Type:  FrameAuthError,
			Error: authReason(err),
		})
		return nil, err
	}

	return identity, nil
}

func (s *Server) writeFrame(conn FrameConn, frame *Frame) error {
	data, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetWriteDeadline(time.Time{})
	return conn.WriteFrame(data)
}

// register adds a client, replacing any previous connection for the
// same user. One connection per user.
func (s *Server) register(sc *ServerClient) {
	s.mu.Lock()
	previous := s.clients[sc.UserID()]
	s.clients[sc.UserID()] = sc
	count := len(s.clients)
	s.mu.Unlock()

	s.metrics.Connected()
	s.metrics.ActiveConnections(count)

	if previous != nil {
		previous.close()
	}
}

// unregister removes a client after its read loop exits.
func (s *Server) unregister(sc *ServerClient) {
	s.mu.Lock()
	if s.clients[sc.UserID()] != sc {
		// A newer connection already replaced this one.
		s.mu.Unlock()
		return
	}
	delete(s.clients, sc.UserID())
	count := len(s.clients)
	s.mu.Unlock()

	s.metrics.ActiveConnections(count)

	s.announcePresence(sc, false)
	if s.config.onDisconnect != nil {
		s.config.onDisconnect(sc)
	}
	sc.logger.Info("client disconnected", nil)
}

// announcePresence broadcasts admin availability. When the admin
// counterpart connects or disconnects, every non-admin client hears
// about it; a connecting non-admin client is told the current state.
func (s *Server) announcePresence(sc *ServerClient, online bool) {
	if sc.IsAdmin() {
		frame := &Frame{Type: FrameAdminOnline, UserID: sc.UserID(), IsOnline: online}
		for _, peer := range s.snapshot() {
			if !peer.IsAdmin() && peer != sc {
				peer.Send(frame)
			}
		}
		return
	}

	if online {
		frame := &Frame{Type: FrameAdminOnline}
		if admin, ok := s.adminClient(); ok {
			frame.UserID = admin.UserID()
			frame.IsOnline = true
		}
		sc.Send(frame)
	}
}

func (s *Server) adminClient() (*ServerClient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.clients {
		if sc.IsAdmin() {
			return sc, true
		}
	}
	return nil, false
}

func (s *Server) snapshot() []*ServerClient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*ServerClient, 0, len(s.clients))
	for _, sc := range s.clients {
		clients = append(clients, sc)
	}
	return clients
}

func (s *Server) lookup(userID string) (*ServerClient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.clients[userID]
	return sc, ok
}

// handleFrame routes one inbound frame from an authenticated client.
func (s *Server) handleFrame(sc *ServerClient, frame *Frame) {
	switch frame.Type {
	case FrameSendMessage:
		s.handleSendMessage(sc, frame)
	case FrameTypingStart:
		s.relayTyping(sc, frame.ReceiverID, true)
	case FrameTypingStop:
		s.relayTyping(sc, frame.ReceiverID, false)
	case FrameMarkMessagesRead:
		s.handleMark(sc, frame.MessageIDs, true)
	case FrameMarkMessagesSeen:
		s.handleMark(sc, frame.MessageIDs, false)
	default:
		sc.logger.Debug("ignoring unexpected frame", LogFields{
			LogFieldFrameType: string(frame.Type),
		})
	}
}

// handleSendMessage persists the message, acks the sender, and
// delivers to the receiver if online. Both parties get the same
// message_sent frame; the ack to the sender confirms durable storage,
// not receiver delivery.
func (s *Server) handleSendMessage(sc *ServerClient, frame *Frame) {
	if frame.ReceiverID == "" {
		sc.Send(&Frame{Type: FrameChatError, Error: "missing receiver"})
		return
	}
	if frame.Message == "" {
		sc.Send(&Frame{Type: FrameChatError, Error: "empty message"})
		return
	}

	msg := &ChatMessage{
		SenderID:    sc.UserID(),
		ReceiverID:  frame.ReceiverID,
		Content:     frame.Message,
		ContentType: ContentTypeText,
	}
	if err := s.config.store.Save(msg); err != nil {
		sc.logger.Error("failed to store message", LogFields{
			LogFieldReceiverID: frame.ReceiverID,
			LogFieldError:      err.Error(),
		})
		sc.Send(&Frame{Type: FrameChatError, Error: "storage failure"})
		return
	}

	sent := &Frame{
		Type:     FrameMessageSent,
		ID:       msg.ID,
		Sender:   msg.SenderID,
		Receiver: msg.ReceiverID,
		Message:  msg.Content,
	}
	sc.Send(sent)

	if receiver, ok := s.lookup(msg.ReceiverID); ok {
		receiver.Send(sent)
	}

	if s.config.onMessage != nil {
		s.config.onMessage(sc, msg)
	}
}

// relayTyping forwards a typing state change to its target. Ephemeral:
// an offline target just misses it.
func (s *Server) relayTyping(sc *ServerClient, receiverID string, isTyping bool) {
	if receiverID == "" {
		return
	}
	if receiver, ok := s.lookup(receiverID); ok {
		receiver.Send(&Frame{
			Type:     FrameUserTyping,
			UserID:   sc.UserID(),
			IsTyping: isTyping,
		})
	}
}

// handleMark updates read or seen flags and notifies each affected
// sender that is online. Seen marks additionally emit a per-message
// message_seen frame for consumers tracking individual messages.
func (s *Server) handleMark(sc *ServerClient, messageIDs []string, read bool) {
	if len(messageIDs) == 0 {
		return
	}

	var updated []*ChatMessage
	var err error
	if read {
		updated, err = s.config.store.MarkRead(messageIDs)
	} else {
		updated, err = s.config.store.MarkSeen(messageIDs)
	}
	if err != nil {
		sc.logger.Error("failed to mark messages", LogFields{LogFieldError: err.Error()})
		sc.Send(&Frame{Type: FrameChatError, Error: "storage failure"})
		return
	}

	// Group updated messages by their original sender.
	bySender := make(map[string][]string)
	for _, msg := range updated {
		bySender[msg.SenderID] = append(bySender[msg.SenderID], msg.ID)
	}

	frameType := FrameMessagesRead
	if !read {
		frameType = FrameMessagesSeen
	}

	for senderID, ids := range bySender {
		sender, ok := s.lookup(senderID)
		if !ok {
			continue
		}
		sender.Send(&Frame{
			Type:       frameType,
			UserID:     sc.UserID(),
			MessageIDs: ids,
		})
		if !read {
			for _, id := range ids {
				sender.Send(&Frame{Type: FrameMessageSeen, ID: id, UserID: sc.UserID()})
			}
		}
	}
}
