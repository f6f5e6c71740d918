package chatwire

import (
	"net/http"
)

// WSServer serves the chat protocol over WebSocket. It embeds Server
// and exposes an http.Handler that upgrades requests and feeds the
// connections in.
type WSServer struct {
	*Server
	handler *WSHandler
}

// NewWSServer creates a WebSocket chat server.
func NewWSServer(opts ...ServerOption) *WSServer {
	srv := NewServer(opts...)
	ws := &WSServer{Server: srv}
	ws.handler = NewWSHandler(srv.HandleConn, srv.config.maxFrameSize)
	return ws
}

// ServeHTTP implements http.Handler for WebSocket upgrade requests.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
