package sessions

import (
	"errors"
	"time"
)

// ErrInvalidRefresh covers unknown, expired and revoked refresh tokens.
var ErrInvalidRefresh = errors.New("invalid refresh token")

// Session is a reviewer's refresh session. Access tokens are short lived;
// the refresh token is exchanged for new ones until ExpiresAt.
type Session struct {
	RefreshToken string    `bson:"_id" json:"refreshToken"`
	ReviewerID   string    `bson:"reviewerId" json:"reviewerId"`
	ExpiresAt    time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

func (s *Session) expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
