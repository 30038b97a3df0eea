package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chedeval/progeval/internal/sessions"
	"github.com/chedeval/progeval/pkg/logger"
)

// ClaimsKey is the gin context key holding the verified claims map.
const ClaimsKey = "claims"

var errNoBearer = errors.New("missing Authorization header")

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

type chain []Verifier

// FirstOf accepts a token when any of vs verifies it. Nil verifiers are skipped.
func FirstOf(vs ...Verifier) Verifier {
	out := chain{}
	for _, v := range vs {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func (c chain) Verify(ctx context.Context, raw string) (Token, error) {
	err := errors.New("no token verifier configured")
	for _, v := range c {
		var tok Token
		if tok, err = v.Verify(ctx, raw); err == nil {
			return tok, nil
		}
	}
	return nil, err
}

// BearerToken returns the raw token from the Authorization header.
func BearerToken(c *gin.Context) (string, error) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return "", errNoBearer
	}
	token, ok := strings.CutPrefix(auth, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", errors.New("invalid Authorization header")
	}
	return token, nil
}

// authenticate verifies the bearer token and stores its claims on c.
func authenticate(c *gin.Context, ver Verifier, bl *sessions.Blacklist) (int, gin.H) {
	token, err := BearerToken(c)
	if err != nil {
		return http.StatusUnauthorized, gin.H{"error": err.Error()}
	}
	revoked, err := bl.IsRevoked(c.Request.Context(), token)
	if err != nil {
		logger.Warnf("blacklist lookup failed: %v", err)
	}
	if revoked {
		return http.StatusUnauthorized, gin.H{"error": "token revoked"}
	}
	tok, err := ver.Verify(c.Request.Context(), token)
	if err != nil {
		return http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()}
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return http.StatusUnauthorized, gin.H{"error": "failed to parse claims"}
	}
	c.Set(ClaimsKey, claims)
	return 0, nil
}

// AuthMiddleware rejects requests without a valid, unrevoked bearer token.
func AuthMiddleware(ver Verifier, bl *sessions.Blacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		if status, body := authenticate(c, ver, bl); status != 0 {
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Next()
	}
}

// OptionalAuth lets anonymous requests through. A token that is present but
// invalid is still rejected.
func OptionalAuth(ver Verifier, bl *sessions.Blacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		if status, body := authenticate(c, ver, bl); status != 0 {
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Next()
	}
}

// Claims returns the verified claims, if any.
func Claims(c *gin.Context) (map[string]interface{}, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

// Reviewer reports whether the request carries verified reviewer claims and
// returns the reviewer's email.
func Reviewer(c *gin.Context) (email string, ok bool) {
	claims, ok := Claims(c)
	if !ok {
		return "", false
	}
	email, _ = claims["email"].(string)
	return email, true
}

func subject(c *gin.Context) string {
	claims, ok := Claims(c)
	if !ok {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}
