package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the client can read from an access token without the
// signing key. Nothing here is trusted for authorization; the server is.
type Claims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token expired before now. A token without an
// exp claim never expires client-side.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ExpiresWithin reports whether the token expires within d of now.
func (c Claims) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !c.ExpiresAt.IsZero() && !now.Add(d).Before(c.ExpiresAt)
}

// ParseClaims decodes a JWT access token without verifying its signature.
// Opaque (non-JWT) tokens return an error.
func ParseClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("parsing token claims: %w", err)
	}

	var c Claims
	if sub, err := mc.GetSubject(); err == nil {
		c.Subject = sub
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	for _, key := range []string{"role", "user_role"} {
		if role, ok := mc[key].(string); ok && role != "" {
			c.Role = role
			break
		}
	}
	return c, nil
}
