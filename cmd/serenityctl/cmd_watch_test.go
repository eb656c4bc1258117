package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serenitylabs/serenity/internal/queue"
)

func marshalEvent(t *testing.T, ev queue.RunEvent) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return data
}

func TestEventPrinter(t *testing.T) {
	var out bytes.Buffer
	stopped := false
	p := &eventPrinter{out: &out, limit: 2, done: func() { stopped = true }}

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.handle(marshalEvent(t, queue.RunEvent{
		Type: queue.EventRunCompleted, RunID: "r1", Observations: 250, BestModel: "additive", Duration: "1.2s", Timestamp: ts,
	})))
	assert.False(t, stopped)

	require.NoError(t, p.handle(marshalEvent(t, queue.RunEvent{
		Type: queue.EventRunFailed, RunID: "r2", ErrorCode: "EMPTY_MERGE", Error: "no common dates", Timestamp: ts,
	})))
	assert.True(t, stopped)

	require.NoError(t, p.handle(marshalEvent(t, queue.RunEvent{Type: queue.EventRunCompleted, RunID: "r3", Timestamp: ts})))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, "events past the limit are ignored")
	assert.Contains(t, lines[0], "2024-05-01 12:00:00")
	assert.Contains(t, lines[0], "observations=250 best=additive")
	assert.Contains(t, lines[1], `code=EMPTY_MERGE error="no common dates"`)
}

func TestEventPrinter_JSON(t *testing.T) {
	var out bytes.Buffer
	p := &eventPrinter{out: &out, asJSON: true}

	require.NoError(t, p.handle(marshalEvent(t, queue.RunEvent{Type: queue.EventRunCompleted, RunID: "r1"})))

	var ev queue.RunEvent
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &ev))
	assert.Equal(t, "r1", ev.RunID)
}

func TestEventPrinter_InvalidPayload(t *testing.T) {
	p := &eventPrinter{out: &bytes.Buffer{}}
	assert.Error(t, p.handle([]byte("not json")))
	assert.Error(t, p.handle([]byte(`{"type":"run.completed"}`)))
}
