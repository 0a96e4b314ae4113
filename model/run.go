package model

import (
	"sync"
	"time"

	"github.com/viant/faultsim/progress"
)

// RunState is the lifecycle state of a scenario run.
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunAborted   RunState = "aborted"
)

// WorkerState is the state of one scenario worker.
type WorkerState string

const (
	WorkerIdle          WorkerState = "idle"
	WorkerRunning       WorkerState = "running"
	WorkerHoldingFirst  WorkerState = "holding-first-lock"
	WorkerWaitingSecond WorkerState = "waiting-on-second-lock"
	WorkerAcquiredBoth  WorkerState = "acquired-both"
	WorkerTimedOut      WorkerState = "timed-out"
	WorkerCompleted     WorkerState = "completed"
	WorkerKilled        WorkerState = "killed"
	WorkerFailed        WorkerState = "failed"
	WorkerNotStarted    WorkerState = "not-started"
)

// Terminal reports whether the worker reached a final state.
func (s WorkerState) Terminal() bool {
	switch s {
	case WorkerAcquiredBoth, WorkerTimedOut, WorkerCompleted, WorkerKilled, WorkerFailed, WorkerNotStarted:
		return true
	}
	return false
}

// Worker records one spawned worker.
type Worker struct {
	Name       string        `json:"name"`
	Priority   int           `json:"priority"`
	Core       int           `json:"core"`
	StackSize  int           `json:"stackSize"`
	StackPeak  int           `json:"stackPeak,omitempty"`
	State      WorkerState   `json:"state"`
	Iterations int           `json:"iterations,omitempty"`
	Wait       time.Duration `json:"wait,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  *time.Time    `json:"startedAt,omitempty"`
	EndedAt    *time.Time    `json:"endedAt,omitempty"`
}

// Outcome tells whether the targeted anomaly was reproduced.
type Outcome struct {
	Reproduced bool   `json:"reproduced"`
	Signal     string `json:"signal"`
}

// RaceResult carries the race scenario counters.
type RaceResult struct {
	Workers    int   `json:"workers"`
	Iterations int   `json:"iterations"`
	Expected   int64 `json:"expected"`
	Unsafe     int64 `json:"unsafe"`
	Safe       int64 `json:"safe"`
	Lost       int64 `json:"lost"`
}

// DeadlockResult carries the deadlock scenario timing.
type DeadlockResult struct {
	FirstDelay  time.Duration `json:"firstDelay"`
	SecondDelay time.Duration `json:"secondDelay"`
	Timeout     time.Duration `json:"timeout"`
	Elapsed     time.Duration `json:"elapsed"`
	LocksFree   bool          `json:"locksFree"`
}

// InversionResult carries the wait measured by the high priority worker.
type InversionResult struct {
	Protocol  string        `json:"protocol"`
	Baseline  time.Duration `json:"baseline"`
	Threshold time.Duration `json:"threshold"`
	LowHold   time.Duration `json:"lowHold,omitempty"`
	Wait      time.Duration `json:"wait"`
	TimedOut  bool          `json:"timedOut"`
	Observed  bool          `json:"observed"`
}

// StarvationResult tells how long the hog ran and what stopped it.
type StarvationResult struct {
	Iterations  int64         `json:"iterations"`
	Termination string        `json:"termination,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// StackResult counts stack overflows.
type StackResult struct {
	Workers   int `json:"workers"`
	Overflows int `json:"overflows"`
}

// Run is the record of one scenario invocation.
type Run struct {
	ID          string          `json:"id"`
	Seq         int             `json:"seq"`
	Scenario    ScenarioID      `json:"scenario"`
	State       RunState        `json:"state"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Workers     []*Worker       `json:"workers"`
	Progress    progress.Counts `json:"progress"`
	Outcome     *Outcome        `json:"outcome,omitempty"`
	Error       string          `json:"error,omitempty"`

	Race       *RaceResult       `json:"race,omitempty"`
	Deadlock   *DeadlockResult   `json:"deadlock,omitempty"`
	Inversion  *InversionResult  `json:"inversion,omitempty"`
	Starvation *StarvationResult `json:"starvation,omitempty"`
	Stack      *StackResult      `json:"stack,omitempty"`

	mu sync.RWMutex
}

// NewRun creates a running record.
func NewRun(id string, seq int, scenario ScenarioID, startedAt time.Time) *Run {
	return &Run{
		ID:        id,
		Seq:       seq,
		Scenario:  scenario,
		State:     RunRunning,
		StartedAt: startedAt,
	}
}

// Update applies fn while holding the record lock. fn must not call other
// Run methods.
func (r *Run) Update(fn func(r *Run)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// AddWorker appends a worker record.
func (r *Run) AddWorker(worker Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Workers = append(r.Workers, &worker)
}

// UpdateWorker applies fn to the named worker; it is a no-op for unknown names.
func (r *Run) UpdateWorker(name string, fn func(w *Worker)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, worker := range r.Workers {
		if worker.Name == name {
			fn(worker)
			return
		}
	}
}

// Worker returns a copy of the named worker record.
func (r *Run) Worker(name string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, worker := range r.Workers {
		if worker.Name == name {
			return *worker, true
		}
	}
	return Worker{}, false
}

// GetState returns the run state.
func (r *Run) GetState() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.State
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := &Run{
		ID:        r.ID,
		Seq:       r.Seq,
		Scenario:  r.Scenario,
		State:     r.State,
		StartedAt: r.StartedAt,
		Progress:  r.Progress,
		Error:     r.Error,
	}
	if r.CompletedAt != nil {
		completedAt := *r.CompletedAt
		ret.CompletedAt = &completedAt
	}
	for _, worker := range r.Workers {
		clone := *worker
		ret.Workers = append(ret.Workers, &clone)
	}
	ret.Outcome = clonePtr(r.Outcome)
	ret.Race = clonePtr(r.Race)
	ret.Deadlock = clonePtr(r.Deadlock)
	ret.Inversion = clonePtr(r.Inversion)
	ret.Starvation = clonePtr(r.Starvation)
	ret.Stack = clonePtr(r.Stack)
	return ret
}

func clonePtr[T any](src *T) *T {
	if src == nil {
		return nil
	}
	ret := *src
	return &ret
}
