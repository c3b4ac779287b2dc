package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKey = "ragserve:session"

// RedisStore keeps the durable projection under a single Redis key. A SET
// is atomic on the server side, which gives the same no-torn-record
// guarantee as the file store's rename.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (r *RedisStore) Load(ctx context.Context) (*DurableState, error) {
	val, err := r.client.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state DurableState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", redisKey, err)
	}
	return &state, nil
}

func (r *RedisStore) Save(ctx context.Context, state *DurableState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKey, data, 0).Err()
}

func (r *RedisStore) Delete(ctx context.Context) error {
	return r.client.Del(ctx, redisKey).Err()
}
