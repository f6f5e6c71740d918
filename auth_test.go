package chatwire

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-signing-secret")

func TestStaticTokenProvider(t *testing.T) {
	provider := StaticTokenProvider("fixed-token")

	token, err := provider.Token()
	assert.NoError(t, err)
	assert.Equal(t, "fixed-token", token)

	_, err = provider.Refresh()
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateTokenSyntax(t *testing.T) {
	t.Run("well-formed token passes", func(t *testing.T) {
		token, err := IssueToken(testSecret, "user-1", "member", time.Hour)
		require.NoError(t, err)

		assert.NoError(t, ValidateTokenSyntax(token))
	})

	t.Run("signature is not checked", func(t *testing.T) {
		token, err := IssueToken([]byte("some other secret"), "user-1", "member", time.Hour)
		require.NoError(t, err)

		assert.NoError(t, ValidateTokenSyntax(token))
	})

	t.Run("empty token fails", func(t *testing.T) {
		assert.ErrorIs(t, ValidateTokenSyntax(""), ErrInvalidToken)
	})

	t.Run("garbage fails", func(t *testing.T) {
		assert.ErrorIs(t, ValidateTokenSyntax("not-a-jwt"), ErrInvalidToken)
		assert.ErrorIs(t, ValidateTokenSyntax("a.b"), ErrInvalidToken)
		assert.ErrorIs(t, ValidateTokenSyntax("!!.!!.!!"), ErrInvalidToken)
	})
}

func TestJWTAuthenticator(t *testing.T) {
	auth := &JWTAuthenticator{Secret: testSecret}

	t.Run("valid token", func(t *testing.T) {
		token, err := IssueToken(testSecret, "user-1", "member", time.Hour)
		require.NoError(t, err)

		identity, err := auth.Authenticate(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", identity.UserID)
		assert.Equal(t, "member", identity.Role)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := IssueToken([]byte("wrong secret"), "user-1", "member", time.Hour)
		require.NoError(t, err)

		_, err = auth.Authenticate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := IssueToken(testSecret, "user-1", "member", -time.Minute)
		require.NoError(t, err)

		_, err = auth.Authenticate(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("missing subject", func(t *testing.T) {
		token, err := IssueToken(testSecret, "", "member", time.Hour)
		require.NoError(t, err)

		_, err = auth.Authenticate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := auth.Authenticate("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("banned account", func(t *testing.T) {
		banning := &JWTAuthenticator{
			Secret: testSecret,
			Banned: func(userID string) bool { return userID == "user-bad" },
		}

		token, err := IssueToken(testSecret, "user-bad", "member", time.Hour)
		require.NoError(t, err)

		_, err = banning.Authenticate(token)
		assert.ErrorIs(t, err, ErrAuthRejected)

		token, err = IssueToken(testSecret, "user-good", "member", time.Hour)
		require.NoError(t, err)

		_, err = banning.Authenticate(token)
		assert.NoError(t, err)
	})
}

func TestAuthReason(t *testing.T) {
	assert.Equal(t, AuthReasonTokenExpired, authReason(ErrTokenExpired))
	assert.Equal(t, AuthReasonBanned, authReason(ErrAuthRejected))
	assert.Equal(t, AuthReasonInvalidToken, authReason(ErrInvalidToken))
	assert.Equal(t, AuthReasonInvalidToken, authReason(errors.New("anything else")))
}
