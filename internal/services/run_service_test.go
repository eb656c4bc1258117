package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serenitylabs/serenity/internal/analytics"
	"github.com/serenitylabs/serenity/internal/config"
	"github.com/serenitylabs/serenity/internal/engine"
	"github.com/serenitylabs/serenity/internal/exporter"
	"github.com/serenitylabs/serenity/internal/logging"
	"github.com/serenitylabs/serenity/internal/metrics"
	"github.com/serenitylabs/serenity/internal/models"
	"github.com/serenitylabs/serenity/internal/queue"
	"github.com/serenitylabs/serenity/internal/store"
)

var testStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// buildInput creates n daily rows per source starting at offset days
func buildInput(n, offset int) engine.Input {
	in := engine.Input{}
	for i := 0; i < n; i++ {
		d := testStart.AddDate(0, 0, offset+i)
		y := 100 + 0.5*float64(i) + 5*math.Sin(2*math.Pi*float64(i)/7)
		in.Target = append(in.Target, analytics.RawRow{"Date": d.Format("2006-01-02"), "Close": fmt.Sprintf("%.4f", y)})
		in.Index = append(in.Index, analytics.RawRow{"Date": d.Format("2006-01-02"), "Value": 4000.0 + float64(i)})
		in.Commodity = append(in.Commodity, analytics.RawRow{"Date": d.Format("2006-01-02"), "Price": "75.5"})
	}
	return in
}

type eventSink struct {
	mu     sync.Mutex
	events []*queue.RunEvent
}

func (s *eventSink) handle(data []byte) error {
	ev, err := queue.ParseRunEvent(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *eventSink) snapshot() []*queue.RunEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*queue.RunEvent(nil), s.events...)
}

type testEnv struct {
	svc   *RunService
	store store.Store
	sink  *eventSink
}

func newTestEnv(t *testing.T, runStore store.Store, runsCfg config.RunsConfig) *testEnv {
	t.Helper()

	q, err := queue.NewQueue(config.QueueConfig{Type: "memory"})
	require.NoError(t, err)
	sink := &eventSink{}
	require.NoError(t, q.Subscribe("runs", sink.handle))

	defaults := engine.DefaultOptions()
	defaults.Horizon = 10
	defaults.SeasonalPeriod = 7
	defaults.Workers = 2

	svc := NewRunService(
		logging.NewNop(),
		runStore,
		queue.NewEvents(q, "runs"),
		metrics.New(prometheus.NewRegistry()),
		defaults,
		runsCfg,
	)
	t.Cleanup(func() {
		svc.Stop()
		_ = q.Close()
	})

	return &testEnv{svc: svc, store: runStore, sink: sink}
}

func defaultRunsConfig() config.RunsConfig {
	return config.RunsConfig{
		Workers:         2,
		QueueSize:       8,
		Expiration:      time.Hour,
		CleanupInterval: time.Hour,
	}
}

func serviceCode(t *testing.T, err error) *ServiceError {
	t.Helper()
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr), "expected ServiceError, got %v", err)
	return svcErr
}

func TestRunService_RunSync(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), defaultRunsConfig())
	ctx := context.Background()

	run, err := env.svc.RunSync(ctx, SourceRows, buildInput(40, 0), models.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 100, run.Progress)
	assert.Equal(t, models.SourceRowCounts{Target: 40, Index: 40, Commodity: 40}, run.Rows)
	require.NotNil(t, run.Result)
	assert.Equal(t, 40, run.Result.Summary.Observations)
	assert.Len(t, run.Result.ForecastDates, 10)
	assert.Len(t, run.Result.Models, 3)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.CompletedAt)
	assert.True(t, run.ExpiresAt.After(*run.CompletedAt))

	stored, err := env.store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)

	require.Eventually(t, func() bool { return len(env.sink.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	ev := env.sink.snapshot()[0]
	assert.Equal(t, queue.EventRunCompleted, ev.Type)
	assert.Equal(t, run.ID, ev.RunID)
	assert.Equal(t, 40, ev.Observations)
	assert.Equal(t, string(run.Result.BestModel), ev.BestModel)
}

func TestRunService_OverridesApply(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), defaultRunsConfig())

	horizon := 3
	autoFit := false
	run, err := env.svc.RunSync(context.Background(), SourceRows, buildInput(40, 0), models.RunOptions{
		Horizon: &horizon,
		AutoFit: &autoFit,
	})
	require.NoError(t, err)
	require.NotNil(t, run.Result)

	assert.Len(t, run.Result.ForecastDates, 3)
	assert.False(t, run.Result.Options.AutoFit)
	for _, m := range run.Result.Models {
		assert.Equal(t, 1, m.Trials, "manual mode fits once: %s", m.Model)
	}
}

func TestRunService_SubmitAsync(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), defaultRunsConfig())
	ctx := context.Background()

	run, err := env.svc.Submit(ctx, SourceUpload, buildInput(40, 0), models.RunOptions{})
	require.NoError(t, err)
	assert.Contains(t, []models.RunStatus{models.RunStatusPending, models.RunStatusProcessing, models.RunStatusCompleted}, run.Status)
	assert.Equal(t, SourceUpload, run.Source)

	require.Eventually(t, func() bool {
		got, err := env.svc.Get(ctx, run.ID)
		return err == nil && got.Status == models.RunStatusCompleted
	}, 10*time.Second, 20*time.Millisecond)

	bundle, err := env.svc.Result(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "2023-01-01", bundle.Summary.From)
}

func TestRunService_MissingSource(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), defaultRunsConfig())

	in := buildInput(10, 0)
	in.Index = nil

	_, err := env.svc.Submit(context.Background(), SourceRows, in, models.RunOptions{})
	svcErr := serviceCode(t, err)
	assert.Equal(t, CodeMissingSource, svcErr.Code)
	assert.Equal(t, "index", svcErr.Details["source"])
	assert.Equal(t, messageMissingSourceRU, svcErr.Details["message_ru"])

	runs, err := env.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunService_EmptyMergeFails(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), defaultRunsConfig())
	ctx := context.Background()

	in := buildInput(10, 0)
	in.Commodity = buildInput(10, 100).Commodity

	run, err := env.svc.RunSync(ctx, SourceRows, in, models.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, CodeEmptyMerge, run.Error.Code)
	assert.Equal(t, messageEmptyMergeRU, run.Error.Details["message_ru"])

	_, err = env.svc.Result(ctx, run.ID)
	svcErr := serviceCode(t, err)
	assert.Equal(t, CodeRunFailed, svcErr.Code)
	assert.Equal(t, CodeEmptyMerge, svcErr.Details["code"])

	require.Eventually(t, func() bool { return len(env.sink.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	ev := env.sink.snapshot()[0]
	assert.Equal(t, queue.EventRunFailed, ev.Type)
	assert.Equal(t, CodeEmptyMerge, ev.ErrorCode)
}

func TestRunService_NotReadyAndInProgress(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), defaultRunsConfig())
	ctx := context.Background()

	run := models.NewRun("pending-run", SourceRows, models.RunOptions{}, models.SourceRowCounts{}, time.Hour)
	env.svc.mu.Lock()
	env.svc.active[run.ID] = run
	env.svc.mu.Unlock()

	_, err := env.svc.Result(ctx, run.ID)
	assert.Equal(t, CodeRunNotReady, serviceCode(t, err).Code)

	err = env.svc.Delete(ctx, run.ID)
	assert.Equal(t, CodeRunInProgress, serviceCode(t, err).Code)

	env.svc.mu.Lock()
	delete(env.svc.active, run.ID)
	env.svc.mu.Unlock()
}

func TestRunService_ChartAndExport(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), defaultRunsConfig())
	ctx := context.Background()

	run, err := env.svc.RunSync(ctx, SourceRows, buildInput(40, 0), models.RunOptions{})
	require.NoError(t, err)

	chart, err := env.svc.Chart(ctx, run.ID, "add")
	require.NoError(t, err)
	assert.Equal(t, "additive", string(chart.Model))
	assert.Empty(t, chart.Error)
	assert.Len(t, chart.Rows, 40+10)

	_, err = env.svc.Chart(ctx, run.ID, "arima")
	assert.Equal(t, CodeInvalidModel, serviceCode(t, err).Code)

	data, format, err := env.svc.Export(ctx, run.ID, "csv")
	require.NoError(t, err)
	assert.Equal(t, exporter.FormatCSV, format)
	assert.Contains(t, string(data), "date,linear_base")

	data, format, err = env.svc.Export(ctx, run.ID, "")
	require.NoError(t, err)
	assert.Equal(t, exporter.FormatXLSX, format)
	assert.Equal(t, "PK", string(data[:2]))

	_, _, err = env.svc.Export(ctx, run.ID, "pdf")
	assert.Equal(t, CodeInvalidFormat, serviceCode(t, err).Code)
}

func TestRunService_ListAndDelete(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), defaultRunsConfig())
	ctx := context.Background()

	first, err := env.svc.RunSync(ctx, SourceRows, buildInput(40, 0), models.RunOptions{})
	require.NoError(t, err)
	failedIn := buildInput(10, 0)
	failedIn.Commodity = buildInput(10, 100).Commodity
	second, err := env.svc.RunSync(ctx, SourceRows, failedIn, models.RunOptions{})
	require.NoError(t, err)

	runs, err := env.svc.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest first")

	runs, err = env.svc.List(ctx, string(models.RunStatusCompleted), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, first.ID, runs[0].ID)

	runs, err = env.svc.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, env.svc.Delete(ctx, first.ID))
	_, err = env.svc.Get(ctx, first.ID)
	assert.Equal(t, CodeRunNotFound, serviceCode(t, err).Code)

	err = env.svc.Delete(ctx, first.ID)
	assert.Equal(t, CodeRunNotFound, serviceCode(t, err).Code)
}

func TestRunService_CleanupExpired(t *testing.T) {
	runStore := store.NewMemoryStore()
	env := newTestEnv(t, runStore, defaultRunsConfig())
	ctx := context.Background()

	old := models.NewRun("old", SourceRows, models.RunOptions{}, models.SourceRowCounts{}, time.Hour)
	old.Status = models.RunStatusCompleted
	old.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, runStore.Save(ctx, old))

	fresh := models.NewRun("fresh", SourceRows, models.RunOptions{}, models.SourceRowCounts{}, time.Hour)
	fresh.Status = models.RunStatusCompleted
	require.NoError(t, runStore.Save(ctx, fresh))

	_, err := env.svc.Result(ctx, "old")
	assert.Equal(t, CodeRunExpired, serviceCode(t, err).Code)

	assert.Equal(t, 1, env.svc.CleanupExpired())

	_, err = runStore.Get(ctx, "old")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = runStore.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestRunService_RecoversInterruptedRuns(t *testing.T) {
	runStore := store.NewMemoryStore()
	ctx := context.Background()

	stale := models.NewRun("stale", SourceUpload, models.RunOptions{}, models.SourceRowCounts{}, time.Hour)
	stale.Status = models.RunStatusProcessing
	require.NoError(t, runStore.Save(ctx, stale))

	env := newTestEnv(t, runStore, defaultRunsConfig())

	got, err := env.svc.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, CodeRunInterrupted, got.Error.Code)
}

// flakyStore rejects the saves matched by reject
type flakyStore struct {
	*store.MemoryStore
	mu     sync.Mutex
	reject func(run *models.Run) bool
}

func (s *flakyStore) setReject(fn func(run *models.Run) bool) {
	s.mu.Lock()
	s.reject = fn
	s.mu.Unlock()
}

func (s *flakyStore) Save(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	reject := s.reject
	s.mu.Unlock()
	if reject != nil && reject(run) {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.Save(ctx, run)
}

func (s *RunService) isActive(id string) bool {
	_, ok := s.snapshot(id)
	return ok
}

func TestRunService_OverflowFailsRun(t *testing.T) {
	runStore := store.NewMemoryStore()
	env := newTestEnv(t, runStore, defaultRunsConfig())
	ctx := context.Background()

	in := buildInput(40, 0)
	for i, row := range in.Target {
		row["Close"] = fmt.Sprintf("%.0f", math.Pow(-1, float64(i))*1e160)
	}

	run, err := env.svc.RunSync(ctx, SourceRows, in, models.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, CodeNoModelFitted, run.Error.Code)

	stored, err := runStore.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.False(t, env.svc.isActive(run.ID))
}

func TestRunService_FinalSaveFailure(t *testing.T) {
	runStore := &flakyStore{MemoryStore: store.NewMemoryStore()}
	runStore.setReject(func(run *models.Run) bool { return run.Status == models.RunStatusCompleted })
	env := newTestEnv(t, runStore, defaultRunsConfig())
	ctx := context.Background()

	run, err := env.svc.RunSync(ctx, SourceRows, buildInput(40, 0), models.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, CodeSaveFailed, run.Error.Code)
	assert.Nil(t, run.Result)

	stored, err := runStore.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status, "no processing snapshot is left behind")
	assert.False(t, env.svc.isActive(run.ID))

	require.Eventually(t, func() bool { return len(env.sink.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	ev := env.sink.snapshot()[0]
	assert.Equal(t, queue.EventRunFailed, ev.Type)
	assert.Equal(t, CodeSaveFailed, ev.ErrorCode)
}

func TestRunService_UnsavedRunRetried(t *testing.T) {
	runStore := &flakyStore{MemoryStore: store.NewMemoryStore()}
	runStore.setReject(func(run *models.Run) bool { return run.Status.IsTerminal() })
	env := newTestEnv(t, runStore, defaultRunsConfig())
	ctx := context.Background()

	run, err := env.svc.RunSync(ctx, SourceRows, buildInput(40, 0), models.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.True(t, env.svc.isActive(run.ID), "an unsaved finished run stays readable")

	stored, err := runStore.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusProcessing, stored.Status)

	runStore.setReject(nil)
	assert.Equal(t, 0, env.svc.CleanupExpired())
	assert.False(t, env.svc.isActive(run.ID))

	stored, err = runStore.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Equal(t, CodeSaveFailed, stored.Error.Code)
}

func TestRunService_UnsavedRunDroppedWhenExpired(t *testing.T) {
	runStore := &flakyStore{MemoryStore: store.NewMemoryStore()}
	runStore.setReject(func(run *models.Run) bool { return run.Status.IsTerminal() })
	env := newTestEnv(t, runStore, defaultRunsConfig())
	ctx := context.Background()

	run, err := env.svc.RunSync(ctx, SourceRows, buildInput(40, 0), models.RunOptions{})
	require.NoError(t, err)

	env.svc.update(run.ID, func(r *models.Run) { r.ExpiresAt = time.Now().Add(-time.Minute) })
	assert.Equal(t, 1, env.svc.CleanupExpired())
	assert.False(t, env.svc.isActive(run.ID))
	_, err = runStore.Get(ctx, run.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound), "the processing snapshot is removed too")
}

func TestRunService_DeleteUnsavedRun(t *testing.T) {
	runStore := &flakyStore{MemoryStore: store.NewMemoryStore()}
	runStore.setReject(func(run *models.Run) bool { return run.Status.IsTerminal() })
	env := newTestEnv(t, runStore, defaultRunsConfig())
	ctx := context.Background()

	run, err := env.svc.RunSync(ctx, SourceRows, buildInput(40, 0), models.RunOptions{})
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, run.ID))
	assert.False(t, env.svc.isActive(run.ID))
	_, err = env.svc.Get(ctx, run.ID)
	assert.Equal(t, CodeRunNotFound, serviceCode(t, err).Code)
}

func TestRunService_QueueFull(t *testing.T) {
	cfg := defaultRunsConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	env := newTestEnv(t, store.NewMemoryStore(), cfg)
	ctx := context.Background()

	// With the workers stopped nothing drains the queue
	env.svc.cancel()
	time.Sleep(50 * time.Millisecond)

	queued, err := env.svc.Submit(ctx, SourceRows, buildInput(40, 0), models.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, queued.Status)

	_, err = env.svc.Submit(ctx, SourceRows, buildInput(40, 0), models.RunOptions{})
	assert.Equal(t, CodeQueueFull, serviceCode(t, err).Code)

	env.svc.Stop()

	got, err := env.svc.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, CodeRunInterrupted, got.Error.Code)
}

func TestRunService_Models(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), defaultRunsConfig())

	list := env.svc.Models()
	require.Len(t, list, 3)
	assert.Equal(t, "linear", string(list[0].Model))
	assert.NotEmpty(t, list[0].Name)
	assert.NoError(t, env.svc.Ping(context.Background()))
}
