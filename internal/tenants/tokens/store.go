// Package tokens provides a redis-backed store for channel connect tokens.
// Tokens are single-use and expire after a configurable TTL.
package tokens

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"inbox_crm_backend/platform/apperr"
)

const keyPrefix = "connect_token:"

// Store issues and consumes channel connect tokens.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a connect token store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Create issues a new connect token bound to a tenant.
func (s *Store) Create(ctx context.Context, tenantID uuid.UUID) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate connect token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := s.client.Set(ctx, keyPrefix+token, tenantID.String(), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store connect token: %w", err)
	}

	return token, nil
}

// Consume redeems a token exactly once and returns the bound tenant.
// A second consume of the same token fails, as does an expired one.
func (s *Store) Consume(ctx context.Context, token string) (uuid.UUID, error) {
	value, err := s.client.GetDel(ctx, keyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, apperr.NotFound("connect token invalid or expired")
		}
		return uuid.Nil, fmt.Errorf("consume connect token: %w", err)
	}

	tenantID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse connect token tenant: %w", err)
	}

	return tenantID, nil
}
