package store

import (
	"context"
	"fmt"
	"math"
	"path"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/serenitylabs/serenity/internal/models"
)

// EtcdConfig represents etcd store configuration
type EtcdConfig struct {
	Endpoints   []string
	KeyPrefix   string        // default: "serenity"
	DialTimeout time.Duration // default: 5s
}

// EtcdStore stores runs under /<prefix>/runs/<id>. Runs with an expiration
// are attached to a lease so etcd removes them on its own.
type EtcdStore struct {
	client *clientv3.Client
	prefix string
}

// NewEtcdStore creates a new etcd-based run store
func NewEtcdStore(cfg EtcdConfig) (*EtcdStore, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "serenity"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &EtcdStore{
		client: client,
		prefix: path.Join("/", cfg.KeyPrefix, "runs") + "/",
	}, nil
}

func (s *EtcdStore) runKey(id string) string {
	return s.prefix + id
}

func (s *EtcdStore) Save(ctx context.Context, run *models.Run) error {
	data, err := encodeRun(run)
	if err != nil {
		return err
	}

	var opts []clientv3.OpOption
	if !run.ExpiresAt.IsZero() {
		ttl := int64(math.Ceil(time.Until(run.ExpiresAt).Seconds()))
		if ttl <= 0 {
			_, err := s.client.Delete(ctx, s.runKey(run.ID))
			return err
		}
		lease, err := s.client.Grant(ctx, ttl)
		if err != nil {
			return fmt.Errorf("failed to grant etcd lease: %w", err)
		}
		opts = append(opts, clientv3.WithLease(lease.ID))
	}

	if _, err := s.client.Put(ctx, s.runKey(run.ID), string(data), opts...); err != nil {
		return fmt.Errorf("failed to store run in etcd: %w", err)
	}
	return nil
}

func (s *EtcdStore) Get(ctx context.Context, id string) (*models.Run, error) {
	resp, err := s.client.Get(ctx, s.runKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get run from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return decodeRun(resp.Kvs[0].Value)
}

func (s *EtcdStore) List(ctx context.Context) ([]*models.Run, error) {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list runs from etcd: %w", err)
	}

	runs := make([]*models.Run, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		run, err := decodeRun(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", kv.Key, err)
		}
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *EtcdStore) Delete(ctx context.Context, id string) error {
	resp, err := s.client.Delete(ctx, s.runKey(id))
	if err != nil {
		return fmt.Errorf("failed to delete run from etcd: %w", err)
	}
	if resp.Deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *EtcdStore) Ping(ctx context.Context) error {
	_, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	return err
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
