package chatwire

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// FrameConn is a framed duplex connection. One call to WriteFrame emits
// exactly one frame; one call to ReadFrame returns exactly one frame.
// The transport preserves frame boundaries but does not interpret
// payloads.
type FrameConn interface {
	// ReadFrame returns the next inbound frame payload.
	ReadFrame() ([]byte, error)

	// WriteFrame sends one frame payload.
	WriteFrame(data []byte) error

	// Close closes the connection. Safe to call multiple times.
	Close() error

	// SetReadDeadline sets the deadline for future ReadFrame calls.
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline sets the deadline for future WriteFrame calls.
	SetWriteDeadline(t time.Time) error

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr
}

// Dialer establishes framed connections to a server.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (FrameConn, error)
}

// Listener accepts incoming framed connections.
type Listener interface {
	// Accept waits for and returns the next connection.
	Accept() (FrameConn, error)

	// Close closes the listener.
	Close() error

	// Addr returns the listener's network address.
	Addr() net.Addr
}

// StreamConn implements FrameConn over a byte stream using 4-byte
// big-endian length prefixes. Used by the TCP, TLS, and QUIC transports
// and by in-process test pipes. WebSocket connections keep their native
// message framing instead.
type StreamConn struct {
	conn         net.Conn
	maxFrameSize int
}

// NewStreamConn wraps a net.Conn with length-prefix framing.
// maxFrameSize bounds inbound frames; zero means MaxFrameSizeDefault.
func NewStreamConn(conn net.Conn, maxFrameSize int) *StreamConn {
	if maxFrameSize <= 0 {
		maxFrameSize = MaxFrameSizeDefault
	}
	return &StreamConn{
		conn:         conn,
		maxFrameSize: maxFrameSize,
	}
}

// ReadFrame reads one length-prefixed frame.
func (c *StreamConn) ReadFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if int(size) > c.maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFrameTooLarge, size, c.maxFrameSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame.
func (c *StreamConn) WriteFrame(data []byte) error {
	if len(data) > c.maxFrameSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFrameTooLarge, len(data), c.maxFrameSize)
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)

	_, err := c.conn.Write(buf)
	return err
}

// Close closes the underlying connection.
func (c *StreamConn) Close() error {
	return c.conn.Close()
}

// SetReadDeadline sets the read deadline.
func (c *StreamConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *StreamConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// RemoteAddr returns the remote network address.
func (c *StreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// TCPDialer connects to a chat server over plain TCP.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration

	// MaxFrameSize bounds inbound frames. Zero means MaxFrameSizeDefault.
	MaxFrameSize int
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (FrameConn, error) {
	var dialer net.Dialer
	if d.Timeout > 0 {
		dialer.Timeout = d.Timeout
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewStreamConn(conn, d.MaxFrameSize), nil
}

// TLSDialer connects to a chat server over TLS.
type TLSDialer struct {
	// Config is the TLS configuration.
	Config *tls.Config

	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration

	// MaxFrameSize bounds inbound frames. Zero means MaxFrameSizeDefault.
	MaxFrameSize int
}

// Dial connects to the address.
func (d *TLSDialer) Dial(ctx context.Context, address string) (FrameConn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{
			Timeout: d.Timeout,
		},
		Config: d.Config,
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewStreamConn(conn, d.MaxFrameSize), nil
}

// TCPListener accepts length-prefix framed connections over TCP.
type TCPListener struct {
	listener     net.Listener
	maxFrameSize int
}

// NewTCPListener creates a new TCP listener on the given address.
func NewTCPListener(address string, maxFrameSize int) (*TCPListener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: l, maxFrameSize: maxFrameSize}, nil
}

// NewTLSListener creates a new TLS listener on the given address.
func NewTLSListener(address string, config *tls.Config, maxFrameSize int) (*TCPListener, error) {
	l, err := tls.Listen("tcp", address, config)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: l, maxFrameSize: maxFrameSize}, nil
}

// Accept waits for and returns the next connection.
func (l *TCPListener) Accept() (FrameConn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	return NewStreamConn(conn, l.maxFrameSize), nil
}

// Close closes the listener.
func (l *TCPListener) Close() error {
	return l.listener.Close()
}

// Addr returns the listener's network address.
func (l *TCPListener) Addr() net.Addr {
	return l.listener.Addr()
}
