package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serenitylabs/serenity/internal/analytics/forecast"
	"github.com/serenitylabs/serenity/internal/config"
	"github.com/serenitylabs/serenity/internal/engine"
	"github.com/serenitylabs/serenity/internal/exporter"
	"github.com/serenitylabs/serenity/internal/logging"
	"github.com/serenitylabs/serenity/internal/merge"
	"github.com/serenitylabs/serenity/internal/metrics"
	"github.com/serenitylabs/serenity/internal/models"
	"github.com/serenitylabs/serenity/internal/queue"
	"github.com/serenitylabs/serenity/internal/store"
	"github.com/serenitylabs/serenity/internal/utils"
)

// Run sources
const (
	SourceUpload = "upload"
	SourceRows   = "rows"
)

// runTask is a queued run with its decoded input
type runTask struct {
	id    string
	input engine.Input
	opts  engine.Options
}

// RunService executes forecast runs on a fixed worker pool, tracks their
// progress and keeps finished runs in the store until they expire
type RunService struct {
	logger   *logging.Logger
	store    store.Store
	events   *queue.Events
	recorder *metrics.Recorder
	defaults engine.Options
	cfg      config.RunsConfig

	// Runs that are pending or processing
	active map[string]*models.Run
	mu     sync.RWMutex

	// Worker pool
	taskQueue chan *runTask
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewRunService creates a RunService and starts its workers and cleanup loop
func NewRunService(
	logger *logging.Logger,
	runStore store.Store,
	events *queue.Events,
	recorder *metrics.Recorder,
	defaults engine.Options,
	cfg config.RunsConfig,
) *RunService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &RunService{
		logger:    logger,
		store:     runStore,
		events:    events,
		recorder:  recorder,
		defaults:  defaults,
		cfg:       cfg,
		active:    make(map[string]*models.Run),
		taskQueue: make(chan *runTask, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}

	s.recoverInterrupted()
	s.startWorkers(cfg.Workers)

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

// startWorkers starts the worker pool for processing runs
func (s *RunService) startWorkers(numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.logger.Info("Run workers started", "count", numWorkers, "queue_size", s.cfg.QueueSize)
}

// worker processes runs from the queue
func (s *RunService) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.process(s.ctx, task)
		case <-s.ctx.Done():
			s.logger.Debug("Run worker stopping", "worker_id", id)
			return
		}
	}
}

// Stop cancels in-flight runs and waits for the workers to exit. Runs still
// queued are marked as interrupted.
func (s *RunService) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()

		for {
			select {
			case task := <-s.taskQueue:
				s.fail(task.id, NewServiceError(CodeRunInterrupted, "service stopped before the run started"))
			default:
				s.logger.Info("Run service stopped")
				return
			}
		}
	})
}

// DefaultOptions returns the configured engine options
func (s *RunService) DefaultOptions() engine.Options {
	return s.defaults
}

// Submit queues a run and returns it in pending state
func (s *RunService) Submit(ctx context.Context, source string, input engine.Input, overrides models.RunOptions) (*models.Run, error) {
	task, err := s.newRun(ctx, source, input, overrides)
	if err != nil {
		return nil, err
	}

	select {
	case s.taskQueue <- task:
		s.logger.Info("Run queued", "run_id", task.id, "source", source)
	default:
		svcErr := NewServiceError(CodeQueueFull, "run queue is full, please try again later")
		s.fail(task.id, svcErr)
		return nil, svcErr
	}

	return s.Get(ctx, task.id)
}

// RunSync executes a run on the calling goroutine and returns it finished
func (s *RunService) RunSync(ctx context.Context, source string, input engine.Input, overrides models.RunOptions) (*models.Run, error) {
	task, err := s.newRun(ctx, source, input, overrides)
	if err != nil {
		return nil, err
	}

	s.process(ctx, task)
	return s.Get(ctx, task.id)
}

// newRun checks the input, registers a pending run and persists it
func (s *RunService) newRun(ctx context.Context, source string, input engine.Input, overrides models.RunOptions) (*runTask, error) {
	for _, src := range []struct {
		name string
		rows int
	}{
		{merge.SourceTarget, len(input.Target)},
		{merge.SourceIndex, len(input.Index)},
		{merge.SourceCommodity, len(input.Commodity)},
	} {
		if src.rows == 0 {
			return nil, fromEngineError(&engine.ValidationError{Source: src.name})
		}
	}

	rows := models.SourceRowCounts{
		Target:    len(input.Target),
		Index:     len(input.Index),
		Commodity: len(input.Commodity),
	}
	run := models.NewRun(uuid.New().String(), source, overrides, rows, s.cfg.Expiration)

	s.mu.Lock()
	s.active[run.ID] = run
	s.mu.Unlock()

	s.persist(ctx, run.ID)

	return &runTask{id: run.ID, input: input, opts: overrides.Apply(s.defaults)}, nil
}

// process runs the engine for one task and records the outcome
func (s *RunService) process(ctx context.Context, task *runTask) {
	startTime := time.Now()
	startedAt := startTime.UTC()
	ctx = logging.WithLogger(logging.WithRunID(ctx, task.id), s.logger)

	s.update(task.id, func(r *models.Run) {
		r.Status = models.RunStatusProcessing
		r.StartedAt = &startedAt
	})
	s.persist(ctx, task.id)
	s.recorder.RunStarted()

	logging.InfoCtx(ctx, "Processing run",
		"horizon", task.opts.Horizon,
		"seasonal_period", task.opts.SeasonalPeriod,
		"auto_fit", task.opts.AutoFit,
	)

	opts := task.opts
	opts.Progress = func(percent int, stage string) {
		s.update(task.id, func(r *models.Run) {
			r.Progress = percent
			r.Stage = stage
		})
		s.persist(ctx, task.id)
	}

	runCtx, cancel := context.WithTimeout(ctx, utils.RunTimeout)
	bundle, err := engine.Run(runCtx, task.input, opts)
	cancel()

	duration := time.Since(startTime)

	if err != nil {
		svcErr := fromEngineError(err)
		logging.WarnCtx(ctx, "Run failed", "code", svcErr.Code, "error", err, "duration", duration)
		s.fail(task.id, svcErr)
		s.recorder.RunFinished(string(models.RunStatusFailed), duration.Seconds())
		return
	}

	for _, m := range bundle.Models {
		s.recorder.RecordFit(string(m.Model), m.OK(), m.Trials)
		if !m.OK() {
			logging.WarnCtx(ctx, "Model could not be fitted", "model", m.Model, "error", m.Error)
		}
	}

	completedAt := time.Now().UTC()
	s.update(task.id, func(r *models.Run) {
		r.Status = models.RunStatusCompleted
		r.Progress = engine.ProgressDone
		r.Stage = "done"
		r.Result = bundle
		r.CompletedAt = &completedAt
		r.ExpiresAt = completedAt.Add(s.cfg.Expiration)
	})
	final, err := s.finish(task.id)
	if err != nil {
		logging.ErrorCtx(ctx, "Failed to save completed run", "error", err)
		s.fail(task.id, NewServiceError(CodeSaveFailed, "run result could not be saved"))
		s.recorder.RunFinished(string(models.RunStatusFailed), duration.Seconds())
		return
	}

	logging.InfoCtx(ctx, "Run completed",
		"observations", bundle.Summary.Observations,
		"best_model", bundle.BestModel,
		"duration", duration,
	)
	s.recorder.RunFinished(string(models.RunStatusCompleted), duration.Seconds())

	s.publish(queue.RunEvent{
		Type:         queue.EventRunCompleted,
		RunID:        final.ID,
		Status:       string(final.Status),
		Observations: bundle.Summary.Observations,
		BestModel:    string(bundle.BestModel),
		Duration:     duration.String(),
	})
}

// fail marks a run as failed, persists it and publishes run.failed
func (s *RunService) fail(id string, svcErr *ServiceError) {
	completedAt := time.Now().UTC()
	s.update(id, func(r *models.Run) {
		r.Status = models.RunStatusFailed
		r.Error = svcErr.RunError()
		r.Result = nil
		r.CompletedAt = &completedAt
		r.ExpiresAt = completedAt.Add(s.cfg.Expiration)
	})
	final, _ := s.finish(id)
	if final == nil {
		return
	}

	s.publish(queue.RunEvent{
		Type:      queue.EventRunFailed,
		RunID:     final.ID,
		Status:    string(final.Status),
		ErrorCode: svcErr.Code,
		Error:     svcErr.Message,
	})
}

// update applies fn to an active run
func (s *RunService) update(id string, fn func(r *models.Run)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run, ok := s.active[id]; ok {
		fn(run)
	}
}

// snapshot returns a copy of an active run
func (s *RunService) snapshot(id string) (*models.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.active[id]
	if !ok {
		return nil, false
	}
	runCopy := *run
	return &runCopy, true
}

// persist saves the current state of an active run
func (s *RunService) persist(ctx context.Context, id string) error {
	run, ok := s.snapshot(id)
	if !ok {
		return nil
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), utils.StoreTimeout)
	defer cancel()

	if err := s.store.Save(storeCtx, run); err != nil {
		s.logger.Error("Failed to save run", "run_id", id, "error", err)
		return err
	}
	return nil
}

// finish persists a terminal run and removes it from the active set. When
// the save fails the run stays active so readers still see its final state;
// CleanupExpired retries the save later.
func (s *RunService) finish(id string) (*models.Run, error) {
	err := s.persist(context.Background(), id)

	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.active[id]
	if !ok {
		return nil, err
	}
	if err == nil {
		delete(s.active, id)
	}
	runCopy := *run
	return &runCopy, err
}

// publish sends a run event, logging failures
func (s *RunService) publish(ev queue.RunEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), utils.PublishTimeout)
	defer cancel()

	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish run event", "run_id", ev.RunID, "type", ev.Type, "error", err)
	}
}

// Get returns a run by id
func (s *RunService) Get(ctx context.Context, id string) (*models.Run, error) {
	if run, ok := s.snapshot(id); ok {
		return run, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, utils.StoreTimeout)
	defer cancel()

	run, err := s.store.Get(storeCtx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewServiceErrorWithDetails(CodeRunNotFound, "run not found", map[string]interface{}{
			"run_id": id,
		})
	}
	if err != nil {
		return nil, NewServiceError(CodeInternal, err.Error())
	}
	return run, nil
}

// List returns runs newest first, optionally filtered by status
func (s *RunService) List(ctx context.Context, status string, limit int) ([]*models.Run, error) {
	storeCtx, cancel := context.WithTimeout(ctx, utils.StoreTimeout)
	defer cancel()

	stored, err := s.store.List(storeCtx)
	if err != nil {
		return nil, NewServiceError(CodeInternal, err.Error())
	}

	byID := make(map[string]*models.Run, len(stored))
	for _, run := range stored {
		byID[run.ID] = run
	}
	s.mu.RLock()
	for id, run := range s.active {
		runCopy := *run
		byID[id] = &runCopy
	}
	s.mu.RUnlock()

	runs := make([]*models.Run, 0, len(byID))
	for _, run := range byID {
		if status != "" && string(run.Status) != status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Result returns the bundle of a completed run
func (s *RunService) Result(ctx context.Context, id string) (*engine.ResultBundle, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case run.Status == models.RunStatusFailed:
		details := map[string]interface{}{"run_id": id}
		if run.Error != nil {
			details["code"] = run.Error.Code
			for k, v := range run.Error.Details {
				details[k] = v
			}
		}
		msg := "run failed"
		if run.Error != nil {
			msg = run.Error.Message
		}
		return nil, NewServiceErrorWithDetails(CodeRunFailed, msg, details)
	case !run.Status.IsTerminal():
		return nil, NewServiceErrorWithDetails(CodeRunNotReady,
			"run is not finished yet, status: "+string(run.Status),
			map[string]interface{}{"progress": run.Progress, "stage": run.Stage},
		)
	case run.IsExpired():
		return nil, NewServiceError(CodeRunExpired, "run result has expired")
	case run.Result == nil:
		return nil, NewServiceError(CodeInternal, "completed run has no result")
	}
	return run.Result, nil
}

// Chart returns the chart rows of one model of a completed run. A model
// that failed yields no rows and its error text.
func (s *RunService) Chart(ctx context.Context, id, modelName string) (*models.ChartResponse, error) {
	model, err := forecast.ParseModel(modelName)
	if err != nil {
		return nil, NewServiceErrorWithDetails(CodeInvalidModel, err.Error(), map[string]interface{}{
			"models": forecast.Models(),
		})
	}

	bundle, err := s.Result(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &models.ChartResponse{
		RunID: id,
		Model: model,
		Name:  model.DisplayName(),
		Rows:  []engine.ChartRow{},
	}
	res, ok := bundle.Model(model)
	if ok && !res.OK() {
		resp.Error = res.Error
		return resp, nil
	}

	rows, err := engine.ChartRows(bundle, model)
	if err != nil {
		resp.Error = err.Error()
		return resp, nil
	}
	resp.Rows = rows
	return resp, nil
}

// Export renders the forecast table of a completed run
func (s *RunService) Export(ctx context.Context, id, formatName string) ([]byte, exporter.Format, error) {
	format, err := exporter.ParseFormat(formatName)
	if err != nil {
		return nil, "", NewServiceError(CodeInvalidFormat, err.Error())
	}

	bundle, err := s.Result(ctx, id)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if err := exporter.Write(&buf, bundle, format); err != nil {
		return nil, "", NewServiceError(CodeInternal, fmt.Sprintf("export failed: %v", err))
	}
	return buf.Bytes(), format, nil
}

// Delete removes a finished run
func (s *RunService) Delete(ctx context.Context, id string) error {
	run, active := s.snapshot(id)
	if active && !run.Status.IsTerminal() {
		return NewServiceError(CodeRunInProgress, "run is still in progress")
	}

	storeCtx, cancel := context.WithTimeout(ctx, utils.StoreTimeout)
	defer cancel()

	err := s.store.Delete(storeCtx, id)
	if active {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
		if errors.Is(err, store.ErrNotFound) {
			err = nil
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		return NewServiceErrorWithDetails(CodeRunNotFound, "run not found", map[string]interface{}{
			"run_id": id,
		})
	}
	if err != nil {
		return NewServiceError(CodeInternal, err.Error())
	}

	s.logger.Info("Run deleted", "run_id", id)
	return nil
}

// Models lists the available forecasting models
func (s *RunService) Models() []models.ModelInfo {
	list := forecast.Models()
	out := make([]models.ModelInfo, len(list))
	for i, m := range list {
		out[i] = models.ModelInfo{Model: m, Name: m.DisplayName()}
	}
	return out
}

// Ping checks the store connection
func (s *RunService) Ping(ctx context.Context) error {
	storeCtx, cancel := context.WithTimeout(ctx, utils.StoreTimeout)
	defer cancel()
	return s.store.Ping(storeCtx)
}

// cleanupLoop periodically removes expired runs
func (s *RunService) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanupExpired()
		case <-s.ctx.Done():
			return
		}
	}
}

// CleanupExpired deletes finished runs past their expiration. Finished runs
// whose final save failed are saved again, or dropped once expired.
func (s *RunService) CleanupExpired() int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired := s.flushUnsaved(ctx)

	runs, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list runs for cleanup", "error", err)
		return expired
	}

	for _, run := range runs {
		if !run.Status.IsTerminal() || !run.IsExpired() {
			continue
		}
		if err := s.store.Delete(ctx, run.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("Failed to delete expired run", "run_id", run.ID, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("Cleaned up expired runs", "count", expired)
	}
	return expired
}

// flushUnsaved retries the final save of finished runs still held in the
// active set and returns how many expired ones were dropped
func (s *RunService) flushUnsaved(ctx context.Context) int {
	s.mu.RLock()
	var ids []string
	for id, run := range s.active {
		if run.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	dropped := 0
	for _, id := range ids {
		run, ok := s.snapshot(id)
		if !ok {
			continue
		}
		if run.IsExpired() {
			s.mu.Lock()
			delete(s.active, id)
			s.mu.Unlock()
			if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("Failed to delete stale run snapshot", "run_id", id, "error", err)
			}
			dropped++
			continue
		}
		if _, err := s.finish(id); err == nil {
			s.logger.Info("Saved finished run on retry", "run_id", id)
		}
	}
	return dropped
}

// recoverInterrupted marks runs left pending or processing by a previous
// process as failed
func (s *RunService) recoverInterrupted() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runs, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error("Failed to load runs from store", "error", err)
		return
	}

	recovered := 0
	for _, run := range runs {
		if run.Status.IsTerminal() {
			continue
		}
		now := time.Now().UTC()
		run.Status = models.RunStatusFailed
		run.Error = NewServiceError(CodeRunInterrupted, "run was interrupted by a restart").RunError()
		run.CompletedAt = &now
		run.ExpiresAt = now.Add(s.cfg.Expiration)
		if err := s.store.Save(ctx, run); err != nil {
			s.logger.Error("Failed to mark interrupted run", "run_id", run.ID, "error", err)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Warn("Marked interrupted runs as failed", "count", recovered)
	}
}
