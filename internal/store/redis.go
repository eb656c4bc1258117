package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/serenitylabs/serenity/internal/models"
)

// RedisConfig represents Redis store configuration
type RedisConfig struct {
	URL         string        // Redis URL (e.g., redis://localhost:6379)
	DB          int           // Database number (default: 0)
	KeyPrefix   string        // Key prefix (default: "serenity")
	DialTimeout time.Duration // Connection timeout (default: 5s)
}

// RedisStore stores each run under its own key with the run expiration
// as TTL. A set indexes the ids for List.
type RedisStore struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "serenity"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{
			Addr: cfg.URL,
			DB:   cfg.DB,
		}
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.DialTimeout = cfg.DialTimeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, config: cfg}, nil
}

func (s *RedisStore) runKey(id string) string {
	return fmt.Sprintf("%s:run:%s", s.config.KeyPrefix, id)
}

func (s *RedisStore) indexKey() string {
	return s.config.KeyPrefix + ":runs"
}

func (s *RedisStore) Save(ctx context.Context, run *models.Run) error {
	data, err := encodeRun(run)
	if err != nil {
		return err
	}

	ttl := time.Until(run.ExpiresAt)
	if run.ExpiresAt.IsZero() {
		ttl = 0
	} else if ttl <= 0 {
		// Already expired: make sure nothing stale is left behind.
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.runKey(run.ID))
			pipe.SRem(ctx, s.indexKey(), run.ID)
			return nil
		})
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.runKey(run.ID), data, ttl)
		pipe.SAdd(ctx, s.indexKey(), run.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save run to Redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Run, error) {
	data, err := s.client.Get(ctx, s.runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run from Redis: %w", err)
	}
	return decodeRun(data)
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Run, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs from Redis: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Run{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.runKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load runs from Redis: %w", err)
	}

	runs := make([]*models.Run, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Key expired; drop it from the index
			stale = append(stale, ids[i])
			continue
		}
		run, err := decodeRun([]byte(str))
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.indexKey(), stale...).Err()
	}

	sortRuns(runs)
	return runs, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.runKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete run from Redis: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
