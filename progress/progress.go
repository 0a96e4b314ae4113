// Package progress keeps aggregated worker counters (total, running,
// completed, failed, ...) for a single scenario run. The tracker travels in the
// run context so any component holding the context can apply a Delta without
// a global registry.

package progress

import (
	"context"
	"sync"
	"time"
)

// Delta is a signed counter change applied by the scenario runtime.
type Delta struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Killed    int
}

// Counts is a read-only view of the tracker counters.
type Counts struct {
	RunID     string    `json:"runId,omitempty"`
	Scenario  string    `json:"scenario,omitempty"`
	StartedAt time.Time `json:"startedAt"`

	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Killed    int `json:"killed"`
}

// Done reports whether every spawned worker has finished.
func (c Counts) Done() bool {
	return c.Total > 0 && c.Pending == 0 && c.Running == 0
}

// Progress keeps worker counters for one run. It is safe for concurrent use.
type Progress struct {
	mu       sync.Mutex
	counts   Counts
	onChange func(Counts)
}

// Update applies d. The onChange callback, if any, receives a copy of the
// counters outside the critical section.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.counts.Total += d.Total
	p.counts.Pending += d.Pending
	p.counts.Running += d.Running
	p.counts.Completed += d.Completed
	p.counts.Failed += d.Failed
	p.counts.Killed += d.Killed
	snapshot := p.counts
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the counters.
func (p *Progress) Snapshot() Counts {
	if p == nil {
		return Counts{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts
}

// OnChange registers a callback invoked after every Update; nil disables it.
func (p *Progress) OnChange(cb func(Counts)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.onChange = cb
	p.mu.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithNewTracker creates a tracker for a run and embeds it in a derived context.
func WithNewTracker(ctx context.Context, runID, scenario string, onChange func(Counts)) (context.Context, *Progress) {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := &Progress{
		counts:   Counts{RunID: runID, Scenario: scenario, StartedAt: time.Now()},
		onChange: onChange,
	}
	return context.WithValue(ctx, trackerKey, tr), tr
}

// FromContext extracts the tracker from ctx.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// GetSnapshot combines FromContext and Snapshot.
func GetSnapshot(ctx context.Context) (Counts, bool) {
	if tr, ok := FromContext(ctx); ok {
		return tr.Snapshot(), true
	}
	return Counts{}, false
}

// UpdateCtx applies d to the tracker carried by ctx, if any.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
