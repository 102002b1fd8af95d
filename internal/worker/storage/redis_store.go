package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/retry"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// maxTxAttempts bounds optimistic transaction retries on write conflicts
const maxTxAttempts = 10

// RedisStore keeps the state as one JSON value under a single key. Updates
// run as WATCH/MULTI transactions so concurrent writers never lose an update.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedisStore wraps client; the caller keeps ownership unless Close is used
func NewRedisStore(client *redis.Client, key string, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		key:    key,
		logger: logger,
	}
}

// Ping verifies the redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Load returns the stored state, or an empty state when the key is unset
func (s *RedisStore) Load(ctx context.Context) (domain.State, error) {
	return s.get(ctx, s.client)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter) (domain.State, error) {
	var state domain.State

	data, err := c.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to read state: %w", err)
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to decode state: %w", err)
	}
	return state, nil
}

// Update applies fn inside an optimistic transaction, retrying on conflict
func (s *RedisStore) Update(ctx context.Context, fn func(*domain.State) error) (domain.State, error) {
	var result domain.State

	policy := retry.Policy{MaxAttempts: maxTxAttempts}
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			state, err := s.get(ctx, tx)
			if err != nil {
				return err
			}

			if err := fn(&state); err != nil {
				return err
			}

			data, err := json.Marshal(&state)
			if err != nil {
				return fmt.Errorf("failed to encode state: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.key, data, 0)
				return nil
			})
			if err != nil {
				return err
			}

			result = state
			return nil
		}, s.key)

		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("State transaction conflict, retrying",
				slog.Int("attempt", attempt),
			)
			return err
		}
		return retry.Stop(err)
	})
	if err != nil {
		return domain.State{}, err
	}

	return result, nil
}

// Close closes the underlying redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
