package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/florianilch/claudine-auth/internal/session"
)

// RedisStore keeps credentials under a single Redis key so that several
// ambassador instances can share one session.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// Compile-time check to ensure RedisStore implements CredentialStore
var _ CredentialStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore. A zero ttl keeps the key until cleared.
func NewRedisStore(client redis.UniversalClient, key string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("ttl cannot be negative")
	}

	return &RedisStore{
		client: client,
		key:    key,
		ttl:    ttl,
	}, nil
}

// Load returns the credentials stored under the configured key.
func (r *RedisStore) Load(ctx context.Context) (*session.Credentials, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.key, err)
	}
	return decode(data)
}

// Save overwrites the key and resets its ttl.
func (r *RedisStore) Save(ctx context.Context, creds *session.Credentials) error {
	data, err := encode(creds)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", r.key, err)
	}
	return nil
}

// Clear deletes the key.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", r.key, err)
	}
	return nil
}
