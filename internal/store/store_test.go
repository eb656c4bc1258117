package store

import (
	"context"
	"errors"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/server/v3/embed"

	"github.com/serenitylabs/serenity/internal/analytics/forecast"
	"github.com/serenitylabs/serenity/internal/config"
	"github.com/serenitylabs/serenity/internal/engine"
	"github.com/serenitylabs/serenity/internal/models"
)

func newTestRun(id string, createdAt time.Time) *models.Run {
	run := models.NewRun(id, "rows", models.RunOptions{}, models.SourceRowCounts{Target: 2, Index: 2, Commodity: 2}, time.Hour)
	run.CreatedAt = createdAt
	return run
}

func completedRun(id string) *models.Run {
	run := newTestRun(id, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	run.Status = models.RunStatusCompleted
	run.Progress = 100
	run.Result = &engine.ResultBundle{
		Summary:       engine.Summary{Observations: 2, From: "2024-01-01", To: "2024-01-02"},
		Dates:         []string{"2024-01-01", "2024-01-02"},
		Actual:        []float64{1, 2},
		ForecastDates: []string{"2024-01-03"},
		Models: []engine.ModelResult{{
			Model:  forecast.ModelLinear,
			Name:   forecast.ModelLinear.DisplayName(),
			Fitted: []forecast.NullFloat{{}, {Float64: 1.5, Valid: true}},
			Scenario: forecast.Scenario{
				Base:        []float64{2.5},
				Optimistic:  []float64{2.75},
				Pessimistic: []float64{2.25},
			},
		}},
		BestModel: forecast.ModelLinear,
	}
	return run
}

// runStoreContract exercises the behavior every backend shares
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	_, err := s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, "missing"), ErrNotFound))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := newTestRun("b", base.Add(time.Minute))
	first := newTestRun("a", base)
	require.NoError(t, s.Save(ctx, second))
	require.NoError(t, s.Save(ctx, first))

	runs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	done := completedRun("a")
	require.NoError(t, s.Save(ctx, done))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, []float64{1, 2}, got.Result.Actual)
	model, ok := got.Result.Model(forecast.ModelLinear)
	require.True(t, ok)
	assert.False(t, model.Fitted[0].Valid)
	assert.Equal(t, 1.5, model.Fitted[1].Float64)
	assert.Equal(t, []float64{2.75}, model.Scenario.Optimistic)

	// Returned runs are copies
	got.Status = models.RunStatusFailed
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, again.Status)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.True(t, errors.Is(err, ErrNotFound))

	runs, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "b", runs[0].ID)

	require.NoError(t, s.Delete(ctx, "b"))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer func() { _ = s.Close() }()

	runStoreContract(t, s)
}

func setupTestEtcd(t *testing.T) ([]string, func()) {
	tmpDir, err := os.MkdirTemp("", "etcd-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	cfg := embed.NewConfig()
	cfg.Dir = tmpDir

	clientURL, _ := url.Parse("http://127.0.0.1:0")
	peerURL, _ := url.Parse("http://127.0.0.1:0")
	cfg.ListenClientUrls = []url.URL{*clientURL}
	cfg.ListenPeerUrls = []url.URL{*peerURL}
	cfg.LogLevel = "error"
	cfg.Logger = "zap"

	e, err := embed.StartEtcd(cfg)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		t.Fatalf("Failed to start etcd: %v", err)
	}

	select {
	case <-e.Server.ReadyNotify():
	case <-time.After(5 * time.Second):
		e.Close()
		_ = os.RemoveAll(tmpDir)
		t.Fatal("Etcd server took too long to start")
	}

	endpoints := []string{e.Clients[0].Addr().String()}
	return endpoints, func() {
		e.Close()
		_ = os.RemoveAll(tmpDir)
	}
}

func TestEtcdStore(t *testing.T) {
	endpoints, cleanup := setupTestEtcd(t)
	defer cleanup()

	s, err := NewEtcdStore(EtcdConfig{Endpoints: endpoints, KeyPrefix: "serenity-test"})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	runStoreContract(t, s)
}

func TestEtcdStore_ExpiredRunIsNotStored(t *testing.T) {
	endpoints, cleanup := setupTestEtcd(t)
	defer cleanup()

	s, err := NewEtcdStore(EtcdConfig{Endpoints: endpoints})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	run := newTestRun("old", time.Now().Add(-2*time.Hour))
	run.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Save(context.Background(), run))

	_, err = s.Get(context.Background(), "old")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("SERENITY_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("SERENITY_TEST_REDIS_URL not set")
	}

	s, err := NewRedisStore(RedisConfig{URL: redisURL, KeyPrefix: "serenity-test-" + time.Now().Format("150405.000")})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	runStoreContract(t, s)
}

func TestCodec(t *testing.T) {
	run := completedRun("codec")

	data, err := encodeRun(run)
	require.NoError(t, err)

	got, err := decodeRun(data)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Result.ForecastDates, got.Result.ForecastDates)

	_, err = decodeRun(nil)
	assert.Error(t, err)
	_, err = decodeRun([]byte("not snappy"))
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	s, err := New(config.StoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(config.StoreConfig{Type: "MEMORY"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(config.StoreConfig{Type: "postgres"})
	assert.Error(t, err)
}
