// Package auth verifies the credentials presented by clients. Tokens are
// minted by the member service; this package only checks them and extracts
// the member identity (the token subject, an e-mail address).
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for missing, malformed, expired or badly signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// Verifier validates HMAC-signed JWTs.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier creates a verifier for tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify checks the token and returns the identity it was issued for.
func (v *Verifier) Verify(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
