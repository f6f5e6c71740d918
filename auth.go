package chatwire

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Auth error reasons carried in auth_error frames.
const (
	// AuthReasonInvalidToken means the token was structurally or
	// cryptographically invalid.
	AuthReasonInvalidToken = "invalid_token"

	// AuthReasonTokenExpired means the token was valid but expired. The
	// client refreshes once and retries the handshake once.
	AuthReasonTokenExpired = "token_expired"

	// AuthReasonBanned means the account is banned. Permanent.
	AuthReasonBanned = "account_banned"

	// AuthReasonRevoked means the credential was revoked. Permanent.
	AuthReasonRevoked = "token_revoked"
)

// TokenProvider supplies and refreshes the bearer credential used in the
// authenticate handshake. The transport only reads tokens, it never
// stores them beyond a single handshake.
type TokenProvider interface {
	// Token returns the current bearer token.
	Token() (string, error)

	// Refresh obtains a fresh token after an expiry rejection. Called at
	// most once per handshake.
	Refresh() (string, error)
}

// StaticTokenProvider is a TokenProvider backed by a fixed token with no
// refresh support.
type StaticTokenProvider string

// Token returns the static token.
func (p StaticTokenProvider) Token() (string, error) {
	return string(p), nil
}

// Refresh fails: a static token cannot be refreshed.
func (p StaticTokenProvider) Refresh() (string, error) {
	return "", fmt.Errorf("%w: static token cannot be refreshed", ErrTokenExpired)
}

// ValidateTokenSyntax checks that a bearer token is structurally a JWT
// without verifying its signature. A structurally invalid token fails
// fast, before any network round trip.
func ValidateTokenSyntax(token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, jwt.MapClaims{}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// Identity is the server-assigned identity returned by a successful
// handshake.
type Identity struct {
	UserID string
	Role   string
}

// Session is an authenticated identity bound to one connection. It is
// rebuilt on every reconnect and never persisted across connections.
type Session struct {
	Identity
	AuthenticatedAt time.Time
}

// Authenticator verifies bearer tokens on the server side.
type Authenticator interface {
	// Authenticate verifies the token and returns the identity it
	// carries. Failures map to auth_error reasons: ErrTokenExpired to
	// token_expired, ErrAuthRejected to account_banned, anything else to
	// invalid_token.
	Authenticate(token string) (*Identity, error)
}

// JWTAuthenticator verifies HS256-signed JWTs against a shared secret.
type JWTAuthenticator struct {
	// Secret is the HMAC signing key.
	Secret []byte

	// Banned reports whether a user is banned. Optional.
	Banned func(userID string) bool
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticate verifies the token signature and expiry.
func (a *JWTAuthenticator) Authenticate(token string) (*Identity, error) {
	claims := &tokenClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	if a.Banned != nil && a.Banned(claims.Subject) {
		return nil, fmt.Errorf("%w: account banned", ErrAuthRejected)
	}

	return &Identity{
		UserID: claims.Subject,
		Role:   claims.Role,
	}, nil
}

// IssueToken mints an HS256-signed token for the given identity. Used by
// the examples and tests; production tokens come from the external auth
// service.
func IssueToken(secret []byte, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// authReason maps a server-side verification error to the wire reason.
func authReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return AuthReasonTokenExpired
	case errors.Is(err, ErrAuthRejected):
		return AuthReasonBanned
	default:
		return AuthReasonInvalidToken
	}
}
