package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/chedeval/progeval/internal/sessions"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier accepts exactly one token.
type fakeVerifier struct{ good, sub string }

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if raw == f.good {
		return &fakeToken{data: map[string]interface{}{"sub": f.sub, "email": f.sub + "@ched.gov.ph"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func serve(t *testing.T, h gin.HandlerFunc, header string) *httptest.ResponseRecorder {
	t.Helper()
	g := gin.New()
	g.GET("/", h, func(c *gin.Context) {
		email, ok := Reviewer(c)
		c.JSON(http.StatusOK, gin.H{"reviewer": ok, "email": email})
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func body(t *testing.T, rw *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	return got
}

func TestAuthMiddleware(t *testing.T) {
	ver := &fakeVerifier{good: "goodtoken", sub: "ana"}
	h := AuthMiddleware(ver, nil)

	require.Equal(t, http.StatusUnauthorized, serve(t, h, "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(t, h, "BadHeader").Code)
	require.Equal(t, http.StatusUnauthorized, serve(t, h, "Bearer ").Code)
	require.Equal(t, http.StatusUnauthorized, serve(t, h, "Bearer nope").Code)

	rw := serve(t, h, "Bearer goodtoken")
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, true, body(t, rw)["reviewer"])
	require.Equal(t, "ana@ched.gov.ph", body(t, rw)["email"])
}

func TestOptionalAuth(t *testing.T) {
	h := OptionalAuth(&fakeVerifier{good: "goodtoken", sub: "ana"}, nil)

	rw := serve(t, h, "")
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, false, body(t, rw)["reviewer"])

	rw = serve(t, h, "Bearer goodtoken")
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, true, body(t, rw)["reviewer"])

	require.Equal(t, http.StatusUnauthorized, serve(t, h, "Bearer expired").Code)
}

func TestAuthMiddleware_RejectsBlacklistedToken(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	bl := sessions.NewBlacklist(redis.NewClient(&redis.Options{Addr: m.Addr()}))

	token := "black-token"
	require.NoError(t, bl.Revoke(context.Background(), token, 5*time.Second))

	ver := &fakeVerifier{good: token, sub: "ana"}
	rw := serve(t, AuthMiddleware(ver, bl), "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
	require.Equal(t, "token revoked", body(t, rw)["error"])
}

func TestFirstOf(t *testing.T) {
	v := FirstOf(nil, &fakeVerifier{good: "a", sub: "one"}, &fakeVerifier{good: "b", sub: "two"})
	ctx := context.Background()

	tok, err := v.Verify(ctx, "b")
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "two", claims["sub"])

	_, err = v.Verify(ctx, "c")
	require.Error(t, err)

	_, err = FirstOf().Verify(ctx, "a")
	require.Error(t, err)
}
