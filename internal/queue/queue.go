// Package queue publishes run lifecycle events to a message broker.
package queue

import "context"

// Handler receives the payload of one delivered message. A returned error
// leaves the message unacknowledged on backends that redeliver.
type Handler func(data []byte) error

// Publisher is the side of a queue the run service needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// Queue is a broker connection that can both publish run events and follow
// them, as serenityctl watch does. Subscribe delivers every message on
// subject to h until Unsubscribe or Close.
type Queue interface {
	Publisher
	Subscribe(subject string, h Handler) error
	Unsubscribe(subject string) error
}
