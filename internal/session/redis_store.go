package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akeditz/storefront/internal/logger"
)

const (
	sessionKeyPrefix = "storefront:session:" // storefront:session:{session_id}
	DefaultTTL       = 7 * 24 * time.Hour
)

// RedisStore keeps gateway sessions in Redis with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context, id string) (*Record, error) {
	data, err := r.client.Get(ctx, r.key(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	// sliding expiry
	if err := r.client.Expire(ctx, r.key(id), r.ttl).Err(); err != nil {
		logger.New(ctx).LogWarnf("session.load", "refresh ttl of session %s: %v", id, err)
	}
	return &rec, nil
}

func (r *RedisStore) Save(ctx context.Context, id string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteIfToken deletes the session under WATCH so a login that replaces
// the record concurrently is never removed.
func (r *RedisStore) DeleteIfToken(ctx context.Context, id, token string) (bool, error) {
	key := r.key(id)
	deleted := false

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}

		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if rec.Token != token {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = true
		return nil
	}, key)

	// the record changed under us, so it no longer holds token
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return deleted, nil
}

func (r *RedisStore) key(id string) string {
	return fmt.Sprintf("%s%s", sessionKeyPrefix, id)
}
