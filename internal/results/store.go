// Package results reads judge output written by the execution backend.
// The orchestrator never writes to the store.
package results

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Store is a read-only view of the judge's key-value output.
type Store interface {
	// Get returns the raw performance payload stored under key.
	Get(ctx context.Context, key string) (string, bool, error)
	// GetStatus returns the status metadata hash stored under key.
	GetStatus(ctx context.Context, key string) (map[string]string, bool, error)
}

// ResultKey is where the worker stores the JSON run result of a submission.
func ResultKey(submissionID string) string {
	return "run_result:" + submissionID
}

// StatusKey is the hash holding a submission's status and metadata.
func StatusKey(submissionID string) string {
	return "sub:" + submissionID
}

var _ Store = &RedisStore{}

type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Dial connects to the Redis instance at url and verifies it answers.
func Dial(ctx context.Context, url string) (*RedisStore, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "invalid redis url %q", url)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, eris.Wrap(err, "redis ping")
	}
	return NewRedisStore(client), client, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "get %s", key)
	}
	return val, true, nil
}

func (r *RedisStore) GetStatus(ctx context.Context, key string) (map[string]string, bool, error) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, eris.Wrapf(err, "hgetall %s", key)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}
