package models

import (
	"time"

	"github.com/serenitylabs/serenity/internal/engine"
)

// RunStatus represents the lifecycle state of a forecast run
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// IsTerminal reports whether the run will not change anymore
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RunError is the failure recorded on a run
type RunError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Run is a forecast run with its status and, once completed, its result
type Run struct {
	ID          string               `json:"run_id"`
	Status      RunStatus            `json:"status"`
	Progress    int                  `json:"progress"` // 0-100
	Stage       string               `json:"stage,omitempty"`
	Source      string               `json:"source"` // upload or rows
	Options     RunOptions           `json:"options"`
	Rows        SourceRowCounts      `json:"rows"`
	Error       *RunError            `json:"error,omitempty"`
	Result      *engine.ResultBundle `json:"result,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	ExpiresAt   time.Time            `json:"expires_at"`
}

// SourceRowCounts records how many raw rows each source contributed
type SourceRowCounts struct {
	Target    int `json:"target"`
	Index     int `json:"index"`
	Commodity int `json:"commodity"`
}

// NewRun creates a pending run that expires after the given duration
func NewRun(id, source string, opts RunOptions, rows SourceRowCounts, expiration time.Duration) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        id,
		Status:    RunStatusPending,
		Source:    source,
		Options:   opts,
		Rows:      rows,
		CreatedAt: now,
		ExpiresAt: now.Add(expiration),
	}
}

// IsExpired checks if the run has passed its expiration time
func (r *Run) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// HasResult checks if the result can be served
func (r *Run) HasResult() bool {
	return r.Status == RunStatusCompleted && r.Result != nil && !r.IsExpired()
}

// RunCreateResponse is the response when a run is accepted
type RunCreateResponse struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
	StatusURL string    `json:"status_url"`
}

// RunStatusResponse is the response for a run status check
type RunStatusResponse struct {
	RunID       string          `json:"run_id"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Stage       string          `json:"stage,omitempty"`
	Source      string          `json:"source"`
	Rows        SourceRowCounts `json:"rows"`
	Error       *RunError       `json:"error,omitempty"`
	Summary     *engine.Summary `json:"summary,omitempty"`
	BestModel   string          `json:"best_model,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ExpiresAt   time.Time       `json:"expires_at"`
	ResultURL   string          `json:"result_url,omitempty"`
	ExportURL   string          `json:"export_url,omitempty"`
}

// ToStatusResponse converts Run to RunStatusResponse
func (r *Run) ToStatusResponse(baseURL string) *RunStatusResponse {
	resp := &RunStatusResponse{
		RunID:       r.ID,
		Status:      string(r.Status),
		Progress:    r.Progress,
		Stage:       r.Stage,
		Source:      r.Source,
		Rows:        r.Rows,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		ExpiresAt:   r.ExpiresAt,
	}

	if r.HasResult() {
		summary := r.Result.Summary
		resp.Summary = &summary
		resp.BestModel = string(r.Result.BestModel)
		resp.ResultURL = baseURL + "/v1/runs/" + r.ID + "/result"
		resp.ExportURL = baseURL + "/v1/runs/" + r.ID + "/export"
	}

	return resp
}

// RunListResponse represents list runs response
type RunListResponse struct {
	Runs  []*RunStatusResponse `json:"runs"`
	Count int                  `json:"count"`
}
