package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/adoption-client/internal/domain"
)

// ErrRefreshTokenInvalid is returned for unknown, expired or revoked tokens.
var ErrRefreshTokenInvalid = errors.New("refresh token invalid")

// RefreshTokenStore manages the stub API's long-lived refresh tokens.
// Tokens are opaque, single-use, and rotated on every redemption.
type RefreshTokenStore interface {
	Issue(ctx context.Context, accountID int64, role domain.Role, ttl time.Duration) (string, error)
	Validate(ctx context.Context, token string) (int64, domain.Role, error)
	Revoke(ctx context.Context, token string) error
}

// memoryRefreshTokenStore keeps tokens in process memory.
type memoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]refreshRecord
}

type refreshRecord struct {
	accountID int64
	role      domain.Role
	expiresAt time.Time
}

// NewMemoryRefreshTokenStore returns an in-memory implementation.
func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return &memoryRefreshTokenStore{tokens: make(map[string]refreshRecord)}
}

func (s *memoryRefreshTokenStore) Issue(_ context.Context, accountID int64, role domain.Role, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = refreshRecord{accountID: accountID, role: role, expiresAt: time.Now().Add(ttl)}
	return token, nil
}

func (s *memoryRefreshTokenStore) Validate(_ context.Context, token string) (int64, domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tokens[token]
	if !ok || time.Now().After(record.expiresAt) {
		return 0, "", ErrRefreshTokenInvalid
	}
	return record.accountID, record.role, nil
}

func (s *memoryRefreshTokenStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// redisRefreshTokenStore persists tokens in Redis with a TTL, so several
// stub instances can share the refresh state.
type redisRefreshTokenStore struct {
	client *redis.Client
}

// NewRedisRefreshTokenStore returns a Redis-backed implementation.
func NewRedisRefreshTokenStore(client *redis.Client) RefreshTokenStore {
	return &redisRefreshTokenStore{client: client}
}

func refreshKey(token string) string {
	return "refresh_token:" + token
}

func (s *redisRefreshTokenStore) Issue(ctx context.Context, accountID int64, role domain.Role, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	value := fmt.Sprintf("%d|%s", accountID, role)
	if err := s.client.Set(ctx, refreshKey(token), value, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *redisRefreshTokenStore) Validate(ctx context.Context, token string) (int64, domain.Role, error) {
	value, err := s.client.Get(ctx, refreshKey(token)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, "", ErrRefreshTokenInvalid
		}
		return 0, "", err
	}

	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 {
		return 0, "", ErrRefreshTokenInvalid
	}
	accountID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", ErrRefreshTokenInvalid
	}
	role, ok := domain.ParseRole(parts[1])
	if !ok {
		return 0, "", ErrRefreshTokenInvalid
	}
	return accountID, role, nil
}

func (s *redisRefreshTokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, refreshKey(token)).Err()
}
