package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	checkoutKeyPrefix   = "checkout:"      // snapshot: checkout:{id}
	userCheckoutsPrefix = "checkout:user:" // set of checkout ids: checkout:user:{user_id}
	DefaultSnapshotTTL  = 24 * time.Hour
)

// RedisRepository persists checkout snapshots so a page reload (or another
// gateway instance) can show the last known state.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisRepository{client: client, ttl: ttl}
}

// Save writes the snapshot and indexes it under its user.
func (r *RedisRepository) Save(ctx context.Context, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal checkout: %w", err)
	}

	userKey := r.userKey(s.UserID)
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.key(s.ID), data, r.ttl)
	pipe.SAdd(ctx, userKey, s.ID)
	pipe.Expire(ctx, userKey, r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkout: %w", err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkout: %w", err)
	}
	return &s, nil
}

// ListByUser returns the ids of the user's checkouts that have not expired.
func (r *RedisRepository) ListByUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkouts for user: %w", err)
	}

	live := ids[:0]
	var stale []any
	for _, id := range ids {
		n, err := r.client.Exists(ctx, r.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check checkout: %w", err)
		}
		if n == 0 {
			stale = append(stale, id)
			continue
		}
		live = append(live, id)
	}
	if len(stale) > 0 {
		r.client.SRem(ctx, r.userKey(userID), stale...)
	}
	return live, nil
}

func (r *RedisRepository) key(id string) string {
	return fmt.Sprintf("%s%s", checkoutKeyPrefix, id)
}

func (r *RedisRepository) userKey(userID string) string {
	return fmt.Sprintf("%s%s", userCheckoutsPrefix, userID)
}
