package authutil_test

import (
	"testing"
	"time"

	"github.com/gauntlet-ctf/gauntlet/internal/authutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims *authutil.Claims, secret []byte) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestParseTokenRoundTrip(t *testing.T) {
	token := signToken(t, &authutil.Claims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	claims, err := authutil.ParseToken(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID())
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, "alice", claims.DisplayName())
}

func TestParseTokenRejections(t *testing.T) {
	expired := signToken(t, &authutil.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}, testSecret)

	_, err := authutil.ParseToken(expired, testSecret)
	require.Error(t, err)

	wrongKey := signToken(t, &authutil.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}, []byte("other-secret"))

	_, err = authutil.ParseToken(wrongKey, testSecret)
	require.Error(t, err)

	noSubject := signToken(t, &authutil.Claims{Email: "x@example.com"}, testSecret)
	_, err = authutil.ParseToken(noSubject, testSecret)
	require.Error(t, err)

	_, err = authutil.ParseToken("not-a-token", testSecret)
	require.Error(t, err)
}

func TestDisplayNamePrefersUsernameClaim(t *testing.T) {
	claims := &authutil.Claims{Email: "alice@example.com", Username: "wizard_alice"}
	require.Equal(t, "wizard_alice", claims.DisplayName())
}

func TestTokenFromHeader(t *testing.T) {
	token, err := authutil.TokenFromHeader("Bearer abc.def.ghi")
	require.NoError(t, err)
	require.Equal(t, "abc.def.ghi", token)

	token, err = authutil.TokenFromHeader("bearer abc")
	require.NoError(t, err)
	require.Equal(t, "abc", token)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "abc"} {
		_, err := authutil.TokenFromHeader(header)
		require.ErrorIs(t, err, authutil.ErrNoToken)
	}
}

func TestIsAdmin(t *testing.T) {
	allowList := []string{"admin@example.com", "root@example.com"}

	require.True(t, authutil.IsAdmin("admin@example.com", allowList))
	require.True(t, authutil.IsAdmin("ADMIN@example.com", allowList))
	require.False(t, authutil.IsAdmin("player@example.com", allowList))
	require.False(t, authutil.IsAdmin("", nil))
}
