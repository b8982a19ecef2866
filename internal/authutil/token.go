// Package authutil verifies the access tokens minted by the external auth
// provider. The service trusts the identity inside a valid token but derives
// all authorization (team membership, the admin allow-list) itself.
package authutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("missing bearer token")

type Claims struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// UserID is the auth provider's subject for this identity.
func (c *Claims) UserID() string {
	return c.Subject
}

// DisplayName falls back to the email local part when the provider sent no
// username claim.
func (c *Claims) DisplayName() string {
	if c.Username != "" {
		return c.Username
	}
	name, _, _ := strings.Cut(c.Email, "@")
	return name
}

// TokenFromHeader extracts the token from an "Authorization: Bearer ..."
// header value.
func TokenFromHeader(header string) (string, error) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// ParseToken validates an HS256 token against the shared auth secret and
// returns its claims.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims, nil
}

// IsAdmin reports whether an email is on the admin allow-list. Comparison is
// case-insensitive.
func IsAdmin(email string, allowList []string) bool {
	for _, admin := range allowList {
		if strings.EqualFold(email, admin) {
			return true
		}
	}
	return false
}
