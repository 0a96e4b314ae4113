// Package deadlock drives two workers into a lock-order deadlock: each takes
// its first mutex, pauses, then requests the mutex the other one holds with
// a bounded timeout.
package deadlock

import (
	"fmt"
	"time"

	"github.com/viant/faultsim/internal/clock"
	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/scenario"
)

// Config controls the deadlock scenario.
type Config struct {
	// FirstDelay is how long worker 1 holds A before requesting B.
	FirstDelay time.Duration `json:"firstDelay" yaml:"firstDelay"`
	// SecondDelay is how long worker 2 holds B before requesting A; it must
	// exceed FirstDelay so worker 1 requests first.
	SecondDelay time.Duration   `json:"secondDelay" yaml:"secondDelay"`
	Timeout     time.Duration   `json:"timeout" yaml:"timeout"`
	Priority    kernel.Priority `json:"priority" yaml:"priority"`
	StackSize   int             `json:"stackSize" yaml:"stackSize"`
}

// DefaultConfig returns d1=100ms, d2=150ms and a 5s acquisition timeout.
func DefaultConfig() Config {
	return Config{
		FirstDelay:  100 * time.Millisecond,
		SecondDelay: 150 * time.Millisecond,
		Timeout:     5 * time.Second,
		Priority:    2,
		StackSize:   2048,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.FirstDelay <= 0 {
		return fmt.Errorf("deadlock.firstDelay must be positive, got %s", c.FirstDelay)
	}
	if c.SecondDelay <= c.FirstDelay {
		return fmt.Errorf("deadlock.secondDelay %s must exceed firstDelay %s", c.SecondDelay, c.FirstDelay)
	}
	if c.Timeout <= c.SecondDelay {
		return fmt.Errorf("deadlock.timeout %s must exceed secondDelay %s", c.Timeout, c.SecondDelay)
	}
	return nil
}

// Service runs the deadlock scenario over mutexes A and B.
type Service struct {
	config    Config
	scheduler scenario.Scheduler
	lockA     *kernel.Mutex
	lockB     *kernel.Mutex
}

// leg is the plan of one worker.
type leg struct {
	name    string
	first   *kernel.Mutex
	second  *kernel.Mutex
	delay   time.Duration
	core    int
	settled *kernel.Event
	peer    *kernel.Event
}

func New(scheduler scenario.Scheduler, config Config) *Service {
	return &Service{
		config:    config,
		scheduler: scheduler,
		lockA:     scheduler.NewMutex("deadlock.A"),
		lockB:     scheduler.NewMutex("deadlock.B"),
	}
}

func (s *Service) ID() model.ScenarioID { return model.ScenarioDeadlock }

// Locks returns mutexes A and B.
func (s *Service) Locks() (a, b *kernel.Mutex) { return s.lockA, s.lockB }

// Start spawns both workers.
func (s *Service) Start(run *scenario.Run) error {
	if !s.lockA.IsFree() || !s.lockB.IsFree() {
		return scenario.ErrBusy
	}
	run.Record().Update(func(r *model.Run) {
		r.Deadlock = &model.DeadlockResult{
			FirstDelay:  s.config.FirstDelay,
			SecondDelay: s.config.SecondDelay,
			Timeout:     s.config.Timeout,
		}
	})
	run.OnFinish(s.finish)
	run.Logger().Info("starting deadlock", "firstDelay", s.config.FirstDelay, "secondDelay", s.config.SecondDelay, "timeout", s.config.Timeout)

	settled1 := s.scheduler.NewEvent("Deadlock1.settled")
	settled2 := s.scheduler.NewEvent("Deadlock2.settled")
	legs := []leg{
		{name: "Deadlock1", first: s.lockA, second: s.lockB, delay: s.config.FirstDelay, core: 0, settled: settled1, peer: settled2},
		{name: "Deadlock2", first: s.lockB, second: s.lockA, delay: s.config.SecondDelay, core: 1, settled: settled2, peer: settled1},
	}
	for _, l := range legs {
		spec := kernel.Spec{Name: l.name, Priority: s.config.Priority, StackSize: s.config.StackSize, Affinity: l.core}
		if _, err := run.Spawn(spec, s.worker(run, l)); err != nil {
			run.Abort(err)
			return fmt.Errorf("deadlock: %w", err)
		}
	}
	run.Seal()
	return nil
}

func (s *Service) worker(run *scenario.Run, l leg) kernel.Entry {
	logger := run.Logger().With("task", l.name)
	return func(t *kernel.Task) {
		defer l.settled.Set()
		if !l.first.Acquire(t, kernel.Forever) {
			return
		}
		run.SetWorkerState(l.name, model.WorkerHoldingFirst)
		logger.Info("took first lock", "lock", l.first.Name())
		if err := t.Sleep(l.delay); err != nil {
			_ = l.first.Release(t)
			return
		}

		run.SetWorkerState(l.name, model.WorkerWaitingSecond)
		logger.Info("trying second lock", "lock", l.second.Name(), "timeout", s.config.Timeout)
		requested := clock.Now()
		if l.second.Acquire(t, s.config.Timeout) {
			waited := clock.Since(requested)
			run.UpdateWorker(l.name, func(w *model.Worker) {
				w.State = model.WorkerAcquiredBoth
				w.Wait = waited
			})
			run.AddEvent(l.name, string(model.WorkerAcquiredBoth), map[string]string{"wait": waited.String()})
			logger.Warn("took both locks, no deadlock", "wait", waited)
			_ = l.second.Release(t)
			_ = l.first.Release(t)
			return
		}

		waited := clock.Since(requested)
		run.UpdateWorker(l.name, func(w *model.Worker) {
			w.State = model.WorkerTimedOut
			w.Wait = waited
		})
		run.AddEvent(l.name, string(model.WorkerTimedOut), map[string]string{"lock": l.second.Name(), "wait": waited.String()})
		logger.Error("deadlock detected, timed out on second lock", "lock", l.second.Name(), "wait", waited)
		// keep the first lock until the peer has observed the circular wait too
		l.settled.Set()
		l.peer.Wait(t, s.config.Timeout)
		if err := l.first.Release(t); err != nil {
			logger.Error("failed to release first lock", "error", err)
		}
	}
}

func (s *Service) finish(r *model.Run) {
	result := r.Deadlock
	result.LocksFree = s.lockA.IsFree() && s.lockB.IsFree()
	result.Elapsed = clock.Since(r.StartedAt)
	timedOut := 0
	for _, worker := range r.Workers {
		if worker.State == model.WorkerTimedOut {
			timedOut++
		}
	}
	reproduced := len(r.Workers) == 2 && timedOut == 2 && result.LocksFree
	signal := "no-deadlock"
	if timedOut > 0 {
		signal = "deadlock-timeout"
	}
	r.Outcome = &model.Outcome{Reproduced: reproduced, Signal: signal}
}
