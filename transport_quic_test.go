package chatwire

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestCertificate(t testing.TB) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)

	certPool := x509.NewCertPool()
	certPool.AppendCertsFromPEM(certPEM)

	return cert, certPool
}

func TestQUICConnection(t *testing.T) {
	t.Run("listener address", func(t *testing.T) {
		cert, _ := generateTestCertificate(t)

		serverTLS := &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{quicALPN},
		}

		listener, err := NewQUICListener("127.0.0.1:0", serverTLS, nil, 0)
		require.NoError(t, err)
		defer listener.Close()

		assert.NotNil(t, listener.Addr())
	})

	t.Run("listener requires TLS", func(t *testing.T) {
		_, err := NewQUICListener("127.0.0.1:0", nil, nil, 0)
		assert.ErrorIs(t, err, ErrTLSRequired)
	})

	t.Run("listener fills in ALPN", func(t *testing.T) {
		cert, _ := generateTestCertificate(t)

		serverTLS := &tls.Config{
			Certificates: []tls.Certificate{cert},
		}

		listener, err := NewQUICListener("127.0.0.1:0", serverTLS, nil, 0)
		require.NoError(t, err)
		defer listener.Close()
	})

	t.Run("dial context cancel", func(t *testing.T) {
		clientTLS := &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{quicALPN},
		}
		dialer := NewQUICDialer(clientTLS)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := dialer.Dial(ctx, "127.0.0.1:1234")
		assert.Error(t, err)
	})

	t.Run("dial nonexistent server", func(t *testing.T) {
		clientTLS := &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{quicALPN},
		}
		dialer := NewQUICDialer(clientTLS)
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := dialer.Dial(ctx, "127.0.0.1:59999")
		assert.Error(t, err)
	})

	t.Run("dialer with nil TLS config uses default", func(t *testing.T) {
		dialer := NewQUICDialer(nil)
		assert.NotNil(t, dialer.TLSConfig)
		assert.Equal(t, uint16(tls.VersionTLS13), dialer.TLSConfig.MinVersion)
		assert.Contains(t, dialer.TLSConfig.NextProtos, quicALPN)
	})
}

func TestQUICRoundTrip(t *testing.T) {
	cert, certPool := generateTestCertificate(t)

	serverTLS := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{quicALPN},
	}

	listener, err := NewQUICListener("127.0.0.1:0", serverTLS, nil, 0)
	require.NoError(t, err)
	defer listener.Close()

	clientDone := make(chan struct{})
	serverDone := make(chan error, 1)
	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			serverDone <- acceptErr
			return
		}

		data, readErr := conn.ReadFrame()
		if readErr != nil {
			conn.Close()
			serverDone <- readErr
			return
		}

		frame, decodeErr := DecodeFrame(data, 0)
		if decodeErr != nil {
			conn.Close()
			serverDone <- decodeErr
			return
		}

		if frame.Type == FrameAuthenticate {
			reply, _ := EncodeFrame(&Frame{Type: FrameAuthenticated, UserID: "quic-user"})
			_ = conn.WriteFrame(reply)
		}

		<-clientDone
		conn.Close()
		serverDone <- nil
	}()

	clientTLS := &tls.Config{
		RootCAs:    certPool,
		ServerName: "localhost",
		NextProtos: []string{quicALPN},
	}
	dialer := NewQUICDialer(clientTLS)
	conn, err := dialer.Dial(context.Background(), listener.Addr().String())
	require.NoError(t, err)

	assert.NotNil(t, conn.RemoteAddr())

	err = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	assert.NoError(t, err)
	err = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	assert.NoError(t, err)

	data, err := EncodeFrame(&Frame{Type: FrameAuthenticate, Token: "token"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteFrame(data))

	reply, err := conn.ReadFrame()
	require.NoError(t, err)

	frame, err := DecodeFrame(reply, 0)
	require.NoError(t, err)
	assert.Equal(t, FrameAuthenticated, frame.Type)
	assert.Equal(t, "quic-user", frame.UserID)

	close(clientDone)
	conn.Close()

	select {
	case err := <-serverDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server side")
	}
}
