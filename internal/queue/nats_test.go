package queue

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// setupTestNATS creates an embedded NATS server with JetStream
func setupTestNATS(t *testing.T) (string, func()) {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	return ns.ClientURL(), func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	}
}

func TestNATSQueue_PublishSubscribe(t *testing.T) {
	url, cleanup := setupTestNATS(t)
	defer cleanup()

	q, err := newNATSQueue(NATSConfig{URL: url})
	if err != nil {
		t.Fatalf("Failed to create NATS queue: %v", err)
	}
	defer func() { _ = q.Close() }()

	received := make(chan []byte, 4)
	if err := q.Subscribe("serenity.runs", func(data []byte) error {
		received <- data
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Publish(ctx, "serenity.runs", []byte("hello")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "hello" {
			t.Errorf("expected hello, got %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNATSQueue_PublishCreatesStream(t *testing.T) {
	url, cleanup := setupTestNATS(t)
	defer cleanup()

	q, err := newNATSQueue(NATSConfig{URL: url})
	if err != nil {
		t.Fatalf("Failed to create NATS queue: %v", err)
	}
	defer func() { _ = q.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Publish(ctx, "runs", []byte("one")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	info, err := q.js.StreamInfo(streamNameFor("runs"))
	if err != nil {
		t.Fatalf("stream not created: %v", err)
	}
	if info.State.Msgs != 1 {
		t.Errorf("expected 1 stored message, got %d", info.State.Msgs)
	}
}

func TestNATSQueue_DurableReplays(t *testing.T) {
	url, cleanup := setupTestNATS(t)
	defer cleanup()

	pub, err := newNATSQueue(NATSConfig{URL: url})
	if err != nil {
		t.Fatalf("Failed to create NATS queue: %v", err)
	}
	defer func() { _ = pub.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pub.Publish(ctx, "runs", []byte("before")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	sub, err := newNATSQueue(NATSConfig{URL: url, Durable: "watcher.1"})
	if err != nil {
		t.Fatalf("Failed to create NATS queue: %v", err)
	}
	defer func() { _ = sub.Close() }()

	received := make(chan []byte, 1)
	if err := sub.Subscribe("runs", func(data []byte) error {
		received <- data
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "before" {
			t.Errorf("expected replayed message, got %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("durable consumer did not replay")
	}
}

func TestNATSQueue_SubscribeTwiceAndUnsubscribe(t *testing.T) {
	url, cleanup := setupTestNATS(t)
	defer cleanup()

	q, err := newNATSQueue(NATSConfig{URL: url})
	if err != nil {
		t.Fatalf("Failed to create NATS queue: %v", err)
	}
	defer func() { _ = q.Close() }()

	handler := func([]byte) error { return nil }
	if err := q.Subscribe("runs", handler); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := q.Subscribe("runs", handler); err == nil {
		t.Error("expected error on duplicate subscription")
	}
	if err := q.Unsubscribe("runs"); err != nil {
		t.Errorf("Unsubscribe failed: %v", err)
	}
	if err := q.Unsubscribe("runs"); err == nil {
		t.Error("expected error when not subscribed")
	}
}

func TestNewNATSQueue_InvalidURL(t *testing.T) {
	q, err := newNATSQueue(NATSConfig{URL: "nats://127.0.0.1:1"})
	if err == nil {
		_ = q.Close()
		t.Fatal("expected error with unreachable server")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"runs":          "runs",
		"serenity.runs": "serenity_runs",
		"a>b*c":         "a_b_c",
		"ok-name_1":     "ok-name_1",
	}
	for in, want := range tests {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
