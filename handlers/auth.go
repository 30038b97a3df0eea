package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chedeval/progeval/internal/config"
	"github.com/chedeval/progeval/internal/oidc"
	"github.com/chedeval/progeval/internal/reviewers"
	"github.com/chedeval/progeval/internal/sessions"
	"github.com/chedeval/progeval/internal/tokens"
	"github.com/chedeval/progeval/pkg/logger"
	"github.com/chedeval/progeval/pkg/middleware"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// LoginRequest authenticates a reviewer. Mode "password" (default) checks a
// local account; mode "keycloak" exchanges the credentials with the Keycloak
// realm and provisions the reviewer from the ID token claims.
type LoginRequest struct {
	Mode     string `json:"mode"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	reviewers   *reviewers.Service
	sessionsSvc *sessions.Service
	blacklist   *sessions.Blacklist
	idTokens    middleware.Verifier
	httpClient  *http.Client
}

// NewAuthHandler wires the login flow. idTokens verifies Keycloak ID tokens;
// nil disables keycloak mode.
func NewAuthHandler(cfg *config.Config, r *reviewers.Service, s *sessions.Service, bl *sessions.Blacklist, idTokens middleware.Verifier) *AuthHandler {
	return &AuthHandler{
		cfg:         cfg,
		reviewers:   r,
		sessionsSvc: s,
		blacklist:   bl,
		idTokens:    idTokens,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Register mounts /auth/* and GET /api/me.
func (h *AuthHandler) Register(r gin.IRouter, requireAuth gin.HandlerFunc) {
	a := r.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
	r.GET("/api/me", requireAuth, h.Me)
}

func (h *AuthHandler) accessTTL() time.Duration {
	if h.cfg.JWT.AccessTokenTTL > 0 {
		return h.cfg.JWT.AccessTokenTTL
	}
	return defaultAccessTTL
}

func (h *AuthHandler) refreshTTL() time.Duration {
	if h.cfg.JWT.RefreshTokenTTL > 0 {
		return h.cfg.JWT.RefreshTokenTTL
	}
	return defaultRefreshTTL
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	if h.cfg.JWT.Secret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reviewer login is not configured"})
		return
	}
	ctx := c.Request.Context()

	var (
		rev *reviewers.Reviewer
		err error
	)
	switch req.Mode {
	case "", "password":
		rev, err = h.reviewers.Authenticate(ctx, req.Email, req.Password)
		if errors.Is(err, reviewers.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
	case "keycloak":
		if h.idTokens == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Keycloak is not configured"})
			return
		}
		var claims map[string]interface{}
		claims, err = h.keycloakClaims(ctx, req.Email, req.Password)
		if err != nil {
			logger.Warnf("keycloak login for %s failed: %v", req.Email, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}
		rev, err = h.reviewers.UpsertFromClaims(ctx, claims)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported mode"})
		return
	}
	if err != nil {
		logger.Errorf("login for %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	rft, err := h.sessionsSvc.CreateSession(ctx, rev.ID, h.refreshTTL())
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, rev, h.accessTTL())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  access,
		"refreshToken": rft,
		"reviewer":     rev,
		"expiresIn":    int(h.accessTTL().Seconds()),
	})
}

// Refresh exchanges a refresh token for a new access token and a rotated
// refresh token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}
	ctx := c.Request.Context()
	sess, next, err := h.sessionsSvc.Rotate(ctx, req.RefreshToken, h.refreshTTL())
	if errors.Is(err, sessions.ErrInvalidRefresh) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if err != nil {
		logger.Errorf("refresh: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return
	}
	rev, err := h.reviewers.GetByID(ctx, sess.ReviewerID)
	if err != nil {
		_ = h.sessionsSvc.DeleteRefresh(ctx, next)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "reviewer no longer exists"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.cfg, rev, h.accessTTL())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "refreshToken": next, "expiresIn": int(h.accessTTL().Seconds())})
}

// Logout removes the refresh session and blacklists the bearer access token
// for the rest of its lifetime. With ?all=true every session of the token's
// reviewer is ended.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}
	ctx := c.Request.Context()
	if at, err := middleware.BearerToken(c); err == nil {
		if exp, err := tokens.ExpiresAt(at); err == nil {
			if err := h.blacklist.Revoke(ctx, at, time.Until(exp)); err != nil {
				logger.Errorf("blacklist access token: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to blacklist access token"})
				return
			}
		}
	}
	if c.Query("all") == "true" {
		sess, err := h.sessionsSvc.ValidateRefresh(ctx, req.RefreshToken)
		if errors.Is(err, sessions.ErrInvalidRefresh) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
			return
		}
		if err != nil {
			logger.Errorf("logout all: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove sessions"})
			return
		}
		n, err := h.sessionsSvc.RevokeAll(ctx, sess.ReviewerID)
		if err != nil {
			logger.Errorf("logout all for %s: %v", sess.ReviewerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "logged out", "sessionsEnded": n})
		return
	}
	if err := h.sessionsSvc.DeleteRefresh(ctx, req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me echoes the verified identity.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, _ := middleware.Claims(c)
	c.JSON(http.StatusOK, gin.H{
		"sub":      claims["sub"],
		"email":    claims["email"],
		"name":     claims["name"],
		"reviewer": true,
	})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
}

// keycloakClaims runs the resource-owner password grant against the realm's
// token endpoint and returns the verified ID token claims.
func (h *AuthHandler) keycloakClaims(ctx context.Context, username, password string) (map[string]interface{}, error) {
	kc := h.cfg.Keycloak
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {kc.ClientID},
		"username":   {username},
		"password":   {password},
		"scope":      {"openid email profile"},
	}
	if kc.ClientSecret != "" {
		form.Set("client_secret", kc.ClientSecret)
	}
	tokenURL := oidc.Issuer(kc) + "/protocol/openid-connect/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	if tr.IDToken == "" {
		return nil, errors.New("token endpoint returned no id_token")
	}
	idt, err := h.idTokens.Verify(ctx, tr.IDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	var claims map[string]interface{}
	if err := idt.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}
