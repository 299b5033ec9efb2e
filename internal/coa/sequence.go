package coa

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Sequencer hands out monotonically increasing numbers per key. Next must
// be atomic across processes.
type Sequencer interface {
	Next(ctx context.Context, key string) (int64, error)
}

// RedisSequencer backs Sequencer with INCR.
type RedisSequencer struct {
	client *redis.Client
	prefix string
}

// NewRedisSequencer constructs the sequencer.
func NewRedisSequencer(client *redis.Client, prefix string) *RedisSequencer {
	if prefix == "" {
		prefix = "hera:docseq"
	}
	return &RedisSequencer{client: client, prefix: prefix}
}

// Next increments and returns the counter for key.
func (s *RedisSequencer) Next(ctx context.Context, key string) (int64, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("coa: sequencer not initialised")
	}
	return s.client.Incr(ctx, s.prefix+":"+key).Result()
}
