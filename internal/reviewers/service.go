package reviewers

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

// MinPasswordLength applies to locally registered reviewers.
const MinPasswordLength = 8

// Service encapsulates reviewer account logic
type Service struct {
	repo Repository
	cost int
}

func NewService(r Repository) *Service {
	return &Service{repo: r, cost: bcrypt.DefaultCost}
}

type registration struct {
	Email    string `validate:"required,email"`
	Name     string `validate:"required"`
	Password string `validate:"required,min=8"`
}

// Add creates or updates a local reviewer with a bcrypt password hash.
func (s *Service) Add(ctx context.Context, email, name, password string) (*Reviewer, error) {
	reg := registration{Email: normalizeEmail(email), Name: strings.TrimSpace(name), Password: password}
	if err := validate.Struct(reg); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	return s.repo.UpsertByEmail(ctx, &Reviewer{
		ID:           uuid.NewString(),
		Email:        reg.Email,
		Name:         reg.Name,
		PasswordHash: string(hash),
	})
}

// Authenticate checks a local reviewer's password. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Reviewer, error) {
	r, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if r.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return r, nil
}

// UpsertFromClaims creates or updates a reviewer using OIDC claims map
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*Reviewer, error) {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	email = normalizeEmail(email)
	if sub == "" || email == "" {
		return nil, errors.New("claims must carry sub and email")
	}
	if name == "" {
		name = email
	}
	return s.repo.UpsertByEmail(ctx, &Reviewer{ID: uuid.NewString(), Sub: sub, Email: email, Name: name})
}

func (s *Service) GetByID(ctx context.Context, id string) (*Reviewer, error) {
	return s.repo.GetByID(ctx, id)
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
