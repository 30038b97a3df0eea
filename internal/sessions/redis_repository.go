package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps each refresh session as a JSON string that expires
// with the session, plus a per-reviewer set of refresh tokens so every
// session of one reviewer can be revoked at once.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based session repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "progeval:session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) sessionKey(refresh string) string {
	return r.prefix + refresh
}

func (r *RedisRepository) reviewerKey(reviewerID string) string {
	return r.prefix + "reviewer:" + reviewerID
}

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	idx := r.reviewerKey(s.ReviewerID)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.sessionKey(s.RefreshToken), payload, ttl)
		p.SAdd(ctx, idx, s.RefreshToken)
		// the index lives as long as the newest session
		p.Expire(ctx, idx, ttl)
		return nil
	})
	return err
}

func (r *RedisRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	payload, err := r.client.Get(ctx, r.sessionKey(refresh)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	s, err := r.GetByRefresh(ctx, refresh)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.sessionKey(refresh))
		if s != nil {
			p.SRem(ctx, r.reviewerKey(s.ReviewerID), refresh)
		}
		return nil
	})
	return err
}

func (r *RedisRepository) DeleteByReviewer(ctx context.Context, reviewerID string) (int, error) {
	idx := r.reviewerKey(reviewerID)
	refreshes, err := r.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(refreshes)+1)
	for _, rt := range refreshes {
		keys = append(keys, r.sessionKey(rt))
	}
	keys = append(keys, idx)
	if _, err := r.client.Del(ctx, keys...).Result(); err != nil {
		return 0, err
	}
	return len(refreshes), nil
}
