package chatwire

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn implements FrameConn over a WebSocket connection. Frames map
// one-to-one onto WebSocket text messages, so no extra framing is
// needed.
type WSConn struct {
	conn         *websocket.Conn
	maxFrameSize int
}

// NewWSConn wraps an established WebSocket connection.
func NewWSConn(conn *websocket.Conn, maxFrameSize int) *WSConn {
	if maxFrameSize <= 0 {
		maxFrameSize = MaxFrameSizeDefault
	}
	conn.SetReadLimit(int64(maxFrameSize))
	return &WSConn{
		conn:         conn,
		maxFrameSize: maxFrameSize,
	}
}

// ReadFrame returns the next text message payload.
func (c *WSConn) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		// Chat frames are text; anything else is ignored at this layer.
		if messageType == websocket.TextMessage {
			return data, nil
		}
	}
}

// WriteFrame sends one text message.
func (c *WSConn) WriteFrame(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the connection.
func (c *WSConn) Close() error {
	return c.conn.Close()
}

// SetReadDeadline sets the read deadline.
func (c *WSConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *WSConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// RemoteAddr returns the remote network address.
func (c *WSConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// WSDialer connects to a chat server over WebSocket. This is the
// primary transport.
type WSDialer struct {
	// Header is sent with the upgrade request. Optional.
	Header http.Header

	// TLSConfig is used for wss addresses. Optional.
	TLSConfig *tls.Config

	// HandshakeTimeout bounds the WebSocket upgrade. Zero uses the
	// gorilla default.
	HandshakeTimeout time.Duration

	// NetDialContext overrides the underlying network dial, for example
	// to route through a SOCKS5 proxy. Optional.
	NetDialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	// MaxFrameSize bounds inbound frames. Zero means MaxFrameSizeDefault.
	MaxFrameSize int
}

// Dial connects to a ws:// or wss:// address.
func (d *WSDialer) Dial(ctx context.Context, address string) (FrameConn, error) {
	dialer := websocket.Dialer{
		TLSClientConfig:  d.TLSConfig,
		HandshakeTimeout: d.HandshakeTimeout,
		NetDialContext:   d.NetDialContext,
	}

	conn, resp, err := dialer.DialContext(ctx, address, d.Header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return NewWSConn(conn, d.MaxFrameSize), nil
}

// WSHandler upgrades HTTP requests to framed WebSocket connections and
// hands them to a callback. Mount it on any HTTP mux.
type WSHandler struct {
	upgrader     websocket.Upgrader
	maxFrameSize int
	onConn       func(FrameConn)
}

// NewWSHandler creates a WebSocket upgrade handler. Each upgraded
// connection is passed to onConn, typically Server.HandleConn.
func NewWSHandler(onConn func(FrameConn), maxFrameSize int) *WSHandler {
	return &WSHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin checking is the embedding application's concern.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		maxFrameSize: maxFrameSize,
		onConn:       onConn,
	}
}

// ServeHTTP implements http.Handler.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.onConn(NewWSConn(conn, h.maxFrameSize))
}
