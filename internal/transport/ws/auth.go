package ws

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

// Authenticator checks the HELLO token: an HS256 JWT whose subject is the server id.
// A zero Authenticator accepts every host.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(strings.TrimSpace(secret)), now: time.Now}
}

func (a *Authenticator) Enabled() bool { return a != nil && len(a.secret) > 0 }

func (a *Authenticator) Verify(serverID, token string) error {
	if !a.Enabled() {
		return nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	key := func(*jwt.Token) (any, error) { return a.secret, nil }
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(serverID),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// IssueToken signs a host token for serverID. ttl <= 0 means no expiry.
func IssueToken(secret, serverID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  serverID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}
