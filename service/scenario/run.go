package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/viant/faultsim/internal/clock"
	"github.com/viant/faultsim/internal/idgen"
	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/progress"
	"github.com/viant/faultsim/tracing"
	"go.uber.org/atomic"
)

// Run tracks the workers of one scenario invocation. It completes once it is
// sealed and every spawned worker has exited.
type Run struct {
	record    *model.Run
	ctx       context.Context
	scheduler Scheduler
	logger    *slog.Logger
	progress  *progress.Progress
	onDone    func(r *Run)

	mu        sync.Mutex
	tasks     map[string]*kernel.Task
	spans     map[string]*tracing.Span
	live      int
	sealed    bool
	finished  bool
	aborted   bool
	err       error
	finishers []func(r *model.Run)
	done      chan struct{}
}

// NewRun creates a handle for record. onDone runs once, after the finishers
// and before Done is closed.
func NewRun(ctx context.Context, record *model.Run, scheduler Scheduler, logger *slog.Logger, onDone func(r *Run)) *Run {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, tracker := progress.WithNewTracker(ctx, record.ID, string(record.Scenario), func(counts progress.Counts) {
		record.Update(func(r *model.Run) { r.Progress = counts })
	})
	return &Run{
		record:    record,
		ctx:       ctx,
		scheduler: scheduler,
		logger:    logger.With("run", idgen.Short(record.ID), "scenario", string(record.Scenario)),
		progress:  tracker,
		onDone:    onDone,
		tasks:     make(map[string]*kernel.Task),
		spans:     make(map[string]*tracing.Span),
		done:      make(chan struct{}),
	}
}

func (r *Run) Record() *model.Run { return r.record }

func (r *Run) Context() context.Context { return r.ctx }

func (r *Run) Logger() *slog.Logger { return r.logger }

func (r *Run) Scheduler() Scheduler { return r.scheduler }

// Done is closed when the run completes.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err returns the abort error, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// OnFinish registers fn to compute results when the run completes. It runs
// under the record lock.
func (r *Run) OnFinish(fn func(r *model.Run)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishers = append(r.finishers, fn)
}

// UpdateWorker changes the record of a worker.
func (r *Run) UpdateWorker(name string, fn func(w *model.Worker)) {
	r.record.UpdateWorker(name, fn)
}

// SetWorkerState moves a worker to state and marks the change on its span.
func (r *Run) SetWorkerState(name string, state model.WorkerState) {
	r.record.UpdateWorker(name, func(w *model.Worker) { w.State = state })
	r.AddEvent(name, string(state), nil)
}

// AddEvent records a named event on the span of a live worker.
func (r *Run) AddEvent(worker, name string, attrs map[string]string) {
	r.mu.Lock()
	span := r.spans[worker]
	r.mu.Unlock()
	span.AddEvent(name, attrs)
}

// Spawn starts a worker owned by the run.
func (r *Run) Spawn(spec kernel.Spec, entry kernel.Entry) (*kernel.Task, error) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to spawn %s: run %s already completed", spec.Name, r.record.ID)
	}
	r.live++
	r.mu.Unlock()

	r.record.AddWorker(model.Worker{
		Name:      spec.Name,
		Priority:  int(spec.Priority),
		Core:      spec.Affinity,
		StackSize: spec.StackSize,
		State:     model.WorkerIdle,
	})
	r.progress.Update(progress.Delta{Total: 1, Pending: 1})
	_, span := tracing.StartSpan(r.ctx, "worker "+spec.Name)
	span.WithAttributes(map[string]string{
		"worker.priority": strconv.Itoa(int(spec.Priority)),
		"worker.affinity": strconv.Itoa(spec.Affinity),
	})
	r.mu.Lock()
	r.spans[spec.Name] = span
	r.mu.Unlock()

	started := atomic.NewBool(false)
	task, err := r.scheduler.Spawn(spec, func(t *kernel.Task) {
		started.Store(true)
		now := clock.Now()
		r.progress.Update(progress.Delta{Pending: -1, Running: 1})
		r.record.UpdateWorker(spec.Name, func(w *model.Worker) {
			w.Core = t.Core()
			w.StackSize = t.StackSize()
			w.StartedAt = &now
			if w.State == model.WorkerIdle {
				w.State = model.WorkerRunning
			}
		})
		entry(t)
	})
	if err != nil {
		r.progress.Update(progress.Delta{Pending: -1, Failed: 1})
		r.record.UpdateWorker(spec.Name, func(w *model.Worker) {
			w.State = model.WorkerNotStarted
			w.Error = err.Error()
		})
		r.mu.Lock()
		delete(r.spans, spec.Name)
		r.mu.Unlock()
		tracing.EndSpan(span, err)
		r.exited()
		return nil, err
	}

	r.mu.Lock()
	r.tasks[spec.Name] = task
	r.mu.Unlock()
	go r.watch(task, spec.Name, span, started)
	return task, nil
}

func (r *Run) watch(task *kernel.Task, name string, span *tracing.Span, started *atomic.Bool) {
	<-task.Done()
	err := task.Err()
	now := clock.Now()

	delta := progress.Delta{Pending: -1}
	if started.Load() {
		delta = progress.Delta{Running: -1}
	}
	state := model.WorkerCompleted
	switch {
	case err == nil:
		delta.Completed = 1
	case errors.Is(err, kernel.ErrTaskPanic):
		delta.Failed = 1
		state = model.WorkerFailed
	default:
		delta.Killed = 1
		state = model.WorkerKilled
	}
	r.progress.Update(delta)
	r.record.UpdateWorker(name, func(w *model.Worker) {
		w.EndedAt = &now
		w.StackPeak = task.StackPeak()
		if err != nil {
			w.Error = err.Error()
		}
		switch w.State {
		case model.WorkerTimedOut, model.WorkerAcquiredBoth:
		default:
			w.State = state
		}
	})
	if err != nil {
		r.logger.Warn("worker ended abnormally", "task", name, "error", err)
	}
	r.mu.Lock()
	delete(r.tasks, name)
	delete(r.spans, name)
	r.mu.Unlock()
	tracing.EndSpan(span, err)

	r.exited()
}

// Seal declares that no further workers will be spawned by Start. Workers
// that are still alive may spawn more.
func (r *Run) Seal() {
	r.mu.Lock()
	r.sealed = true
	ready := r.live == 0 && !r.finished
	if ready {
		r.finished = true
	}
	r.mu.Unlock()
	if ready {
		r.finish()
	}
}

// Abort records err, marks the run aborted and seals it. Workers already
// running are left alone.
func (r *Run) Abort(err error) {
	r.mu.Lock()
	r.aborted = true
	r.err = errors.Join(r.err, err)
	r.mu.Unlock()
	r.logger.Error("scenario aborted", "error", err)
	r.Seal()
}

// Stop kills every live worker with cause (ErrStopped when nil) and returns
// how many were asked to stop.
func (r *Run) Stop(cause error) int {
	if cause == nil {
		cause = ErrStopped
	}
	r.mu.Lock()
	tasks := make([]*kernel.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	r.mu.Unlock()
	stopped := 0
	for _, task := range tasks {
		if r.scheduler.Kill(task, cause) {
			stopped++
		}
	}
	return stopped
}

func (r *Run) exited() {
	r.mu.Lock()
	r.live--
	ready := r.live == 0 && r.sealed && !r.finished
	if ready {
		r.finished = true
	}
	r.mu.Unlock()
	if ready {
		r.finish()
	}
}

func (r *Run) finish() {
	r.mu.Lock()
	finishers := r.finishers
	aborted := r.aborted
	runErr := r.err
	r.mu.Unlock()

	now := clock.Now()
	counts := r.progress.Snapshot()
	r.record.Update(func(record *model.Run) {
		for _, fn := range finishers {
			fn(record)
		}
		record.State = model.RunCompleted
		if aborted {
			record.State = model.RunAborted
		}
		if runErr != nil {
			record.Error = runErr.Error()
		}
		record.CompletedAt = &now
		record.Progress = counts
	})
	if r.onDone != nil {
		r.onDone(r)
	}
	close(r.done)
}
