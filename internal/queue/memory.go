package queue

import (
	"context"
	"fmt"
	"sync"
)

const memoryBufferSize = 1024

// MemoryQueue implements Queue with in-process channels. Messages go to
// the current subscriber of a subject and are dropped when there is none.
type MemoryQueue struct {
	subscriptions map[string]*memorySubscription
	closed        bool
	mu            sync.RWMutex
}

type memorySubscription struct {
	ch     chan []byte
	cancel context.CancelFunc
	done   chan struct{}
}

// newMemoryQueue creates a new in-memory queue instance
func newMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		subscriptions: make(map[string]*memorySubscription),
	}
}

// Publish hands a copy of data to the subscriber of subject
func (q *MemoryQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	sub, ok := q.subscriptions[subject]
	if !ok {
		return nil
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	select {
	case sub.ch <- dataCopy:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("channel full for subject: %s", subject)
	}
}

// Subscribe starts a goroutine delivering messages of subject to handler
func (q *MemoryQueue) Subscribe(subject string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &memorySubscription{
		ch:     make(chan []byte, memoryBufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	q.subscriptions[subject] = sub

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-sub.ch:
				// No redelivery in memory
				_ = handler(data)
			}
		}
	}()

	return nil
}

// Unsubscribe stops delivery for subject
func (q *MemoryQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	sub, exists := q.subscriptions[subject]
	if !exists {
		q.mu.Unlock()
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	delete(q.subscriptions, subject)
	q.mu.Unlock()

	sub.cancel()
	<-sub.done
	return nil
}

// Close cancels all subscriptions
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	subs := q.subscriptions
	q.subscriptions = make(map[string]*memorySubscription)
	q.closed = true
	q.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
	return nil
}

// PendingCount returns the number of undelivered messages for a subject
func (q *MemoryQueue) PendingCount(subject string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if sub, exists := q.subscriptions[subject]; exists {
		return len(sub.ch)
	}
	return 0
}
