// Package oidc verifies Keycloak-issued ID tokens for CHED reviewers.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/chedeval/progeval/internal/config"
	"github.com/chedeval/progeval/pkg/middleware"
)

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	issuer   string
	verifier *oidc.IDTokenVerifier
}

// Issuer returns the Keycloak realm issuer URL.
func Issuer(cfg config.KeycloakConfig) string {
	return strings.TrimRight(cfg.URL, "/") + "/realms/" + cfg.Realm
}

// NewKeycloakVerifier discovers the realm's signing keys. It returns
// (nil, nil) when Keycloak is not configured.
func NewKeycloakVerifier(ctx context.Context, cfg config.KeycloakConfig) (*Verifier, error) {
	if cfg.URL == "" || cfg.Realm == "" {
		return nil, nil
	}
	if cfg.ClientID == "" {
		return nil, errors.New("KEYCLOAK_CLIENT_ID is required when KEYCLOAK_URL is set")
	}
	issuer := Issuer(cfg)
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", issuer, err)
	}
	return &Verifier{issuer: issuer, verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})}, nil
}

// Verify checks signature, issuer, audience and expiry of raw.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
