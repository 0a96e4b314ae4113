package event

import (
	"context"
	"log/slog"

	"go.uber.org/atomic"
)

// Listener feeds consumed events to a handler on its own goroutine.
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	logger    *slog.Logger

	started *atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewListener[T any](publisher *Publisher[T], handler func(*Event[T]), logger *slog.Logger) *Listener[T] {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		logger:    logger,
		started:   atomic.NewBool(false),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Stop cancels the listener and waits for an in-flight handler to return.
func (l *Listener[T]) Stop() {
	l.cancel()
	if l.started.Load() {
		<-l.done
	}
}

// Start launches the consume loop once.
func (l *Listener[T]) Start() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go l.run()
}

func (l *Listener[T]) run() {
	defer close(l.done)
	for {
		event, err := l.publisher.Consume(l.ctx)
		if l.ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Error("failed to consume event", "error", err)
			continue
		}
		l.handler(event)
	}
}
