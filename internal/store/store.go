// Package store persists forecast runs. Every backend stores the same
// snappy-compressed JSON payload.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/serenitylabs/serenity/internal/config"
	"github.com/serenitylabs/serenity/internal/models"
	"github.com/serenitylabs/serenity/internal/utils"
)

// ErrNotFound is returned when a run id is unknown
var ErrNotFound = errors.New("run not found")

// Store persists runs by id
type Store interface {
	// Save creates or replaces a run
	Save(ctx context.Context, run *models.Run) error

	// Get returns a run or ErrNotFound
	Get(ctx context.Context, id string) (*models.Run, error)

	// List returns every stored run ordered by creation time
	List(ctx context.Context) ([]*models.Run, error)

	// Delete removes a run or returns ErrNotFound
	Delete(ctx context.Context, id string) error

	// Ping checks the backend connection
	Ping(ctx context.Context) error

	// Close closes the connection
	Close() error
}

// New creates a Store based on configuration.
// Default is the in-memory store if type is not specified.
func New(cfg config.StoreConfig) (Store, error) {
	storeType := utils.StoreType(strings.ToLower(cfg.Type))
	if storeType == "" {
		storeType = utils.StoreTypeMemory
	}

	switch storeType {
	case utils.StoreTypeMemory:
		return NewMemoryStore(), nil

	case utils.StoreTypeRedis:
		return NewRedisStore(RedisConfig{
			URL:         cfg.URL,
			DB:          cfg.RedisDB,
			KeyPrefix:   cfg.KeyPrefix,
			DialTimeout: cfg.DialTimeout,
		})

	case utils.StoreTypeEtcd:
		return NewEtcdStore(EtcdConfig{
			Endpoints:   cfg.EtcdEndpoints,
			KeyPrefix:   cfg.KeyPrefix,
			DialTimeout: cfg.DialTimeout,
		})

	default:
		return nil, fmt.Errorf("unsupported store type: %s (supported: memory, redis, etcd)", storeType)
	}
}

// sortRuns orders runs by creation time, then id
func sortRuns(runs []*models.Run) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
}
