package llm

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenExpiry reports the expiry of a bearer token when it is a JWT carrying
// an exp claim. The signature is not verified: the proxy cannot know the
// upstream's key and only uses the claim as a hint.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}

// TokenExpired reports whether token is a JWT whose exp claim lies before now.
func TokenExpired(token string, now time.Time) bool {
	exp, ok := TokenExpiry(token)
	return ok && exp.Before(now)
}
