package chatwire

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// ErrTLSRequired is returned when TLS configuration is required but not provided.
var ErrTLSRequired = errors.New("TLS configuration is required for QUIC")

// quicALPN is the ALPN protocol identifier for the chat transport.
const quicALPN = "chatwire"

// quicStreamConn adapts a QUIC stream to net.Conn so it can carry
// length-prefix framing via StreamConn.
type quicStreamConn struct {
	conn   *quic.Conn
	stream *quic.Stream
	mu     sync.Mutex
}

func (c *quicStreamConn) Read(b []byte) (int, error) {
	return c.stream.Read(b)
}

func (c *quicStreamConn) Write(b []byte) (int, error) {
	return c.stream.Write(b)
}

func (c *quicStreamConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stream.Close(); err != nil {
		return err
	}
	return c.conn.CloseWithError(0, "")
}

func (c *quicStreamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *quicStreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *quicStreamConn) SetDeadline(t time.Time) error {
	if err := c.stream.SetReadDeadline(t); err != nil {
		return err
	}
	return c.stream.SetWriteDeadline(t)
}

func (c *quicStreamConn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

func (c *quicStreamConn) SetWriteDeadline(t time.Time) error {
	return c.stream.SetWriteDeadline(t)
}

// QUICDialer connects to a chat server over QUIC. Frames travel on one
// bidirectional stream with length prefixes.
type QUICDialer struct {
	// TLSConfig is the TLS configuration for the QUIC connection.
	// QUIC requires TLS 1.3, so this must be configured.
	TLSConfig *tls.Config

	// QUICConfig is the QUIC configuration.
	QUICConfig *quic.Config

	// MaxFrameSize bounds inbound frames. Zero means MaxFrameSizeDefault.
	MaxFrameSize int
}

// NewQUICDialer creates a new QUIC dialer with default configuration.
func NewQUICDialer(tlsConfig *tls.Config) *QUICDialer {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
			NextProtos: []string{quicALPN},
		}
	}
	return &QUICDialer{TLSConfig: tlsConfig}
}

// Dial connects to the QUIC address in "host:port" format.
func (d *QUICDialer) Dial(ctx context.Context, address string) (FrameConn, error) {
	tlsConfig := d.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
			NextProtos: []string{quicALPN},
		}
	}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = []string{quicALPN}
	}

	conn, err := quic.DialAddr(ctx, address, tlsConfig, d.QUICConfig)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return nil, err
	}

	return NewStreamConn(&quicStreamConn{conn: conn, stream: stream}, d.MaxFrameSize), nil
}

// QUICListener accepts framed connections over QUIC.
type QUICListener struct {
	listener     *quic.Listener
	maxFrameSize int
}

// NewQUICListener creates a QUIC listener on the given address.
func NewQUICListener(address string, tlsConfig *tls.Config, quicConfig *quic.Config, maxFrameSize int) (*QUICListener, error) {
	if tlsConfig == nil {
		return nil, ErrTLSRequired
	}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = []string{quicALPN}
	}

	l, err := quic.ListenAddr(address, tlsConfig, quicConfig)
	if err != nil {
		return nil, err
	}
	return &QUICListener{listener: l, maxFrameSize: maxFrameSize}, nil
}

// Accept waits for the next connection and its first bidirectional
// stream.
func (l *QUICListener) Accept() (FrameConn, error) {
	conn, err := l.listener.Accept(context.Background())
	if err != nil {
		return nil, err
	}

	stream, err := conn.AcceptStream(context.Background())
	if err != nil {
		conn.CloseWithError(0, "failed to accept stream")
		return nil, err
	}

	return NewStreamConn(&quicStreamConn{conn: conn, stream: stream}, l.maxFrameSize), nil
}

// Close closes the listener.
func (l *QUICListener) Close() error {
	return l.listener.Close()
}

// Addr returns the listener's network address.
func (l *QUICListener) Addr() net.Addr {
	return l.listener.Addr()
}
