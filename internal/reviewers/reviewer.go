package reviewers

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("reviewer not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Reviewer is a CHED staff account allowed to fill in the regulator-side
// fields of an evaluation. Accounts come from local registration or from
// Keycloak claims (Sub set, no password).
type Reviewer struct {
	ID           string    `bson:"_id" json:"id"`
	Sub          string    `bson:"sub,omitempty" json:"sub,omitempty"`
	Email        string    `bson:"email" json:"email"`
	Name         string    `bson:"name" json:"name"`
	PasswordHash string    `bson:"passwordHash,omitempty" json:"-"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}
