package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/chedeval/progeval/internal/config"
	"github.com/chedeval/progeval/internal/reviewers"
	"github.com/chedeval/progeval/pkg/middleware"
)

// Issuer is stamped on every access token this service signs.
const Issuer = "progeval"

var ErrNoSecret = errors.New("JWT secret is not configured")

// Claims carried by reviewer access tokens.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// GenerateAccessToken creates a signed HS256 access token for the reviewer
func GenerateAccessToken(cfg *config.Config, r *reviewers.Reviewer, ttl time.Duration) (string, error) {
	if cfg.JWT.Secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := Claims{
		Email: r.Email,
		Name:  r.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   r.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWT.Secret))
}

// Verifier checks tokens signed by GenerateAccessToken.
type Verifier struct {
	secret []byte
}

// NewVerifier returns nil when secret is empty.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(secret)}
}

type verified struct {
	claims *Claims
}

func (t verified) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return verified{claims: claims}, nil
}

// ExpiresAt reads the exp claim without checking the signature; it sizes
// blacklist entries for tokens that already passed verification.
func ExpiresAt(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("exp claim not present")
	}
	return exp.Time, nil
}
