package coordinator

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiryBuffer is how long before its declared expiry a token is
// already treated as expired.
const DefaultExpiryBuffer = 300 * time.Second

var unverifiedParser = jwt.NewParser()

// TokenExpiresBefore reports whether the JWT's exp claim lies before deadline.
// The signature is not verified. Tokens that fail to decode or carry no exp
// are reported as expired.
func TokenExpiresBefore(token string, deadline time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(token, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Before(deadline)
}

// IsTokenExpired reports whether token expires within the configured buffer.
func (c *Coordinator) IsTokenExpired(token string) bool {
	return TokenExpiresBefore(token, c.now().Add(c.cfg.expiryBuffer))
}
