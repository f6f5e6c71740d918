package chatwire

import (
	"sync"
	"time"
)

// ServerClient is one authenticated client connection on the server.
type ServerClient struct {
	server      *Server
	conn        FrameConn
	identity    Identity
	connectedAt time.Time

	writeMu   sync.Mutex
	closeOnce sync.Once
	logger    Logger
}

func newServerClient(server *Server, conn FrameConn, identity Identity) *ServerClient {
	return &ServerClient{
		server:      server,
		conn:        conn,
		identity:    identity,
		connectedAt: time.Now(),
		logger: server.config.logger.WithFields(LogFields{
			LogFieldUserID:     identity.UserID,
			LogFieldRole:       identity.Role,
			LogFieldRemoteAddr: conn.RemoteAddr().String(),
		}),
	}
}

// UserID returns the authenticated user ID.
func (sc *ServerClient) UserID() string {
	return sc.identity.UserID
}

// Role returns the authenticated role.
func (sc *ServerClient) Role() string {
	return sc.identity.Role
}

// ConnectedAt returns when this connection authenticated.
func (sc *ServerClient) ConnectedAt() time.Time {
	return sc.connectedAt
}

// IsAdmin reports whether this client holds the admin counterpart role.
func (sc *ServerClient) IsAdmin() bool {
	return sc.identity.Role == sc.server.config.adminRole
}

// Send writes a frame to this client. Write failures close the
// connection; the read loop observes the closure and unregisters.
func (sc *ServerClient) Send(frame *Frame) error {
	data, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	if err := sc.sendRaw(data); err != nil {
		sc.logger.Debug("write failed, closing connection", LogFields{
			LogFieldFrameType: string(frame.Type),
			LogFieldError:     err.Error(),
		})
		sc.close()
		return err
	}
	sc.server.metrics.FrameSent(frame.Type)
	return nil
}

func (sc *ServerClient) sendRaw(data []byte) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	sc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	defer sc.conn.SetWriteDeadline(time.Time{})
	return sc.conn.WriteFrame(data)
}

func (sc *ServerClient) close() {
	sc.closeOnce.Do(func() {
		sc.conn.Close()
	})
}

// readLoop serves inbound frames until the connection dies. The read
// deadline doubles as the liveness check: the client pings on an
// interval, and a connection silent past the grace window times out.
func (sc *ServerClient) readLoop() {
	defer func() {
		sc.close()
		sc.server.unregister(sc)
	}()

	cfg := sc.server.config
	deadline := time.Duration(float64(cfg.livenessInterval) * cfg.livenessGrace)

	for {
		if deadline > 0 {
			sc.conn.SetReadDeadline(time.Now().Add(deadline))
		}

		data, err := sc.conn.ReadFrame()
		if err != nil {
			sc.logger.Debug("connection closed", LogFields{LogFieldError: err.Error()})
			return
		}

		if ping, pong := isProbe(data); ping {
			sc.sendRaw([]byte(rawPong))
			continue
		} else if pong {
			continue
		}

		frame, err := DecodeFrame(data, cfg.maxFrameSize)
		if err != nil {
			sc.server.metrics.FrameDropped()
			sc.logger.Warn("dropping malformed frame", LogFields{
				LogFieldError: err.Error(),
			})
			continue
		}

		sc.server.metrics.FrameReceived(frame.Type)
		sc.server.handleFrame(sc, frame)
	}
}
