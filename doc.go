// Package chatwire provides a resilient realtime chat transport for clients and servers.
//
// The package speaks a JSON frame protocol over pluggable framed transports
// (TCP, TLS, WebSocket, QUIC) and layers connection supervision on top:
// authenticated handshakes, heartbeat liveness probes, automatic reconnection
// with capped exponential backoff, and a bounded outbound queue that survives
// connection loss.
//
// # Features
//
//   - Authenticated handshake with JWT bearer tokens and one-shot refresh
//   - Heartbeat probes with grace-based liveness detection
//   - Automatic reconnection with capped exponential backoff
//   - Bounded outbound queue: in-order delivery, retry with backoff, oldest-first eviction
//   - Typed event dispatch with per-handler panic isolation
//   - Presence and typing signals with throttling and TTL expiry
//   - Transport: TCP, TLS, WebSocket, WSS, QUIC, HTTP/SOCKS5 proxies
//
// # Client
//
// Use the high-level Client API for connecting to a chat server:
//
//	client, err := chatwire.Dial(
//	    chatwire.WithServer("wss://chat.example.com/ws"),
//	    chatwire.WithToken("<jwt>"),
//	)
//	defer client.Close()
//
// Send messages through the outbound queue; delivery is confirmed via the
// callback once the server acknowledges:
//
//	id, err := client.SendMessage("user-2", "hello", func(m *chatwire.QueuedMessage, err error) {
//	    if err != nil {
//	        log.Printf("delivery failed: %v", err)
//	    }
//	})
//
// Subscribe to incoming frames by type:
//
//	sub := client.On(chatwire.FrameMessageSent, func(f *chatwire.Frame) {
//	    fmt.Println("delivered:", f.ID)
//	})
//	defer client.Off(chatwire.FrameMessageSent, sub)
//
// Connection lifecycle events are reported through the event callback:
//
//	chatwire.WithOnEvent(func(c *chatwire.Client, err error) {
//	    var rc *chatwire.ReconnectEvent
//	    if errors.As(err, &rc) {
//	        log.Printf("reconnect attempt %d in %s", rc.Attempt, rc.Delay)
//	    }
//	})
//
// # Server
//
// Use the Server API for terminating chat connections:
//
//	listener, _ := chatwire.NewTCPListener(":9000", 0)
//	srv := chatwire.NewServer(
//	    chatwire.WithServerAuth(&chatwire.JWTAuthenticator{Secret: secret}),
//	    chatwire.WithOnMessage(func(c *chatwire.ServerClient, m *chatwire.ChatMessage) { ... }),
//	)
//	srv.Serve(listener)
//
// For WebSocket serving, use WSServer as an http.Handler:
//
//	ws := chatwire.NewWSServer(
//	    chatwire.WithServerAuth(&chatwire.JWTAuthenticator{Secret: secret}),
//	)
//	http.Handle("/ws", ws)
//
// # Tokens
//
// Servers validate HS256 JWTs through JWTAuthenticator; IssueToken mints
// compatible tokens for testing and internal services:
//
//	token, err := chatwire.IssueToken(secret, "user-1", "member", time.Hour)
//
// Clients that rotate credentials implement TokenProvider; a fixed token can
// be supplied with WithToken or StaticTokenProvider.
package chatwire
