package messaging

import (
	"context"
)

// Queue carries payloads of type T between producers and a consumer loop.
type Queue[T any] interface {
	// Publish enqueues a copy of t.
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available or ctx is done.
	Consume(ctx context.Context) (Message[T], error)
}

// Message is one delivery taken from a Queue.
type Message[T any] interface {
	ID() string

	T() *T

	// Ack marks the message processed.
	Ack() error

	// Nack marks the message failed; the queue may redeliver it.
	Nack(err error) error
}
