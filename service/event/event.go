package event

import (
	"time"

	"github.com/viant/faultsim/internal/clock"
)

// Event types published by the harness.
const (
	TypeRunStarted    = "run.started"
	TypeRunCompleted  = "run.completed"
	TypeWatchdog      = "kernel.watchdog"
	TypeStackOverflow = "kernel.stack-overflow"
)

// Context describes where an event comes from.
type Context struct {
	RunID     string `json:"runID,omitempty"`
	Scenario  string `json:"scenario,omitempty"`
	EventType string `json:"eventType"`
	Worker    string `json:"worker,omitempty"`
	ElapsedMs int64  `json:"elapsedMs,omitempty"`
}

type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Data      T                      `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: clock.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
