package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as JSON values under "session:<token>" with a TTL
// matching the session expiry. A per-user set "session:user:<id>" indexes
// tokens so every session of one user can be revoked at once.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis backed store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "session:"}
}

func (r *RedisStore) key(token string) string      { return r.prefix + token }
func (r *RedisStore) userKey(userID string) string { return r.prefix + "user:" + userID }

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	if s == nil || s.Token == "" {
		return ErrInvalidSession
	}
	return r.write(ctx, s)
}

func (r *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	val, err := r.client.Get(ctx, r.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}

	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	if s.IsExpired() {
		return nil, ErrSessionExpired
	}
	return &s, nil
}

func (r *RedisStore) Update(ctx context.Context, s *Session) error {
	if s == nil || s.Token == "" {
		return ErrInvalidSession
	}
	n, err := r.client.Exists(ctx, r.key(s.Token)).Result()
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return r.write(ctx, s)
}

func (r *RedisStore) UpdateActivity(ctx context.Context, token string, lastActivity, expiresAt time.Time) error {
	s, err := r.Get(ctx, token)
	if err != nil {
		return err
	}
	s.LastActivityAt = lastActivity
	s.ExpiresAt = expiresAt
	return r.write(ctx, s)
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	s, err := r.Get(ctx, token)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(token))
	if err == nil && s.UserID != "" {
		pipe.SRem(ctx, r.userKey(s.UserID), token)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (r *RedisStore) DeleteByUserID(ctx context.Context, userID string) error {
	tokens, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, r.key(t))
	}
	keys = append(keys, r.userKey(userID))
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires keys on its own.
func (r *RedisStore) DeleteExpired(context.Context) error { return nil }

func (r *RedisStore) write(ctx context.Context, s *Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return ErrSessionExpired
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(s.Token), data, ttl)
	if s.UserID != "" {
		pipe.SAdd(ctx, r.userKey(s.UserID), s.Token)
		pipe.ExpireNX(ctx, r.userKey(s.UserID), ttl)
		pipe.ExpireGT(ctx, r.userKey(s.UserID), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}
