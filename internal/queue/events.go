package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a run lifecycle event
type EventType string

const (
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"
)

// RunEvent is the payload published when a run finishes
type RunEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	RunID        string    `json:"run_id"`
	Status       string    `json:"status"`
	Observations int       `json:"observations,omitempty"`
	BestModel    string    `json:"best_model,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	Error        string    `json:"error,omitempty"`
	Duration     string    `json:"duration,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ParseRunEvent decodes a published event
func ParseRunEvent(data []byte) (*RunEvent, error) {
	var ev RunEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("invalid run event: %w", err)
	}
	if ev.Type == "" || ev.RunID == "" {
		return nil, fmt.Errorf("invalid run event: missing type or run_id")
	}
	return &ev, nil
}

// Events publishes run events to one subject. A nil *Events publishes nothing.
type Events struct {
	publisher Publisher
	subject   string
}

// NewEvents creates an event publisher. It returns nil when publisher is nil.
func NewEvents(publisher Publisher, subject string) *Events {
	if publisher == nil {
		return nil
	}
	return &Events{publisher: publisher, subject: subject}
}

// Subject returns the subject events are published to
func (e *Events) Subject() string {
	if e == nil {
		return ""
	}
	return e.subject
}

// Publish fills in the event id and timestamp and publishes it
func (e *Events) Publish(ctx context.Context, ev RunEvent) error {
	if e == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}
	return e.publisher.Publish(ctx, e.subject, data)
}
