// Package race reproduces lost updates on a shared counter by racing
// workers through an unguarded read/sleep/write sequence, next to the same
// sequence serialized by a mutex.
package race

import (
	"fmt"
	"time"

	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/scenario"
)

// Config controls the race scenario.
type Config struct {
	Workers    int `json:"workers" yaml:"workers"`
	Iterations int `json:"iterations" yaml:"iterations"`
	// Window is the pause between reading and writing a counter.
	Window time.Duration `json:"window" yaml:"window"`
	// Pause is the sleep after each iteration.
	Pause       time.Duration   `json:"pause" yaml:"pause"`
	Priority    kernel.Priority `json:"priority" yaml:"priority"`
	StackSize   int             `json:"stackSize" yaml:"stackSize"`
	ReportEvery int             `json:"reportEvery" yaml:"reportEvery"`
}

// DefaultConfig returns three workers of twenty iterations with a 1ms window.
func DefaultConfig() Config {
	return Config{
		Workers:     3,
		Iterations:  20,
		Window:      time.Millisecond,
		Pause:       10 * time.Millisecond,
		Priority:    2,
		StackSize:   2048,
		ReportEvery: 5,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("race.workers must be positive, got %d", c.Workers)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("race.iterations must be positive, got %d", c.Iterations)
	}
	if c.Window <= 0 {
		return fmt.Errorf("race.window must be positive, got %s", c.Window)
	}
	return nil
}

// Service runs the race scenario. The counters and the mutex are shared by
// every run and reset when a run starts.
type Service struct {
	config Config
	lock   *kernel.Mutex
	unsafe *model.Counter
	safe   *model.Counter
}

// New creates the scenario with its own mutex and counters.
func New(scheduler scenario.Scheduler, config Config) *Service {
	return &Service{
		config: config,
		lock:   scheduler.NewMutex("race"),
		unsafe: &model.Counter{},
		safe:   &model.Counter{},
	}
}

func (s *Service) ID() model.ScenarioID { return model.ScenarioRace }

// Lock returns the mutex guarding the safe counter.
func (s *Service) Lock() *kernel.Mutex { return s.lock }

// Counters returns the current unsafe and safe counter values.
func (s *Service) Counters() (unsafe, safe int64) {
	return s.unsafe.Load(), s.safe.Load()
}

// Start resets the counters and spawns the workers.
func (s *Service) Start(run *scenario.Run) error {
	if !s.lock.IsFree() {
		return scenario.ErrBusy
	}
	s.unsafe.Reset()
	s.safe.Reset()
	expected := int64(s.config.Workers * s.config.Iterations)
	run.Record().Update(func(r *model.Run) {
		r.Race = &model.RaceResult{Workers: s.config.Workers, Iterations: s.config.Iterations, Expected: expected}
	})
	run.OnFinish(s.finish)
	run.Logger().Info("starting race condition", "workers", s.config.Workers, "iterations", s.config.Iterations)

	for i := 0; i < s.config.Workers; i++ {
		spec := kernel.Spec{
			Name:      fmt.Sprintf("RaceTask_%d", i),
			Priority:  s.config.Priority,
			StackSize: s.config.StackSize,
			Affinity:  i % 2,
		}
		if _, err := run.Spawn(spec, s.worker(run, spec.Name)); err != nil {
			run.Abort(err)
			return fmt.Errorf("race: %w", err)
		}
	}
	run.Seal()
	return nil
}

func (s *Service) worker(run *scenario.Run, name string) kernel.Entry {
	logger := run.Logger().With("task", name)
	return func(t *kernel.Task) {
		for i := 0; i < s.config.Iterations; i++ {
			if err := s.increment(t); err != nil {
				return
			}
			unsafe, safe := s.Counters()
			run.Record().Update(func(r *model.Run) {
				r.Race.Unsafe = unsafe
				r.Race.Safe = safe
				r.Race.Lost = safe - unsafe
			})
			run.UpdateWorker(name, func(w *model.Worker) { w.Iterations = i + 1 })
			if s.config.ReportEvery > 0 && i%s.config.ReportEvery == 0 {
				logger.Info("race progress", "iteration", i, "unsafe", unsafe, "safe", safe, "difference", safe-unsafe)
			}
			if err := t.Sleep(s.config.Pause); err != nil {
				return
			}
		}
		unsafe, safe := s.Counters()
		logger.Info("race worker finished", "unsafe", unsafe, "safe", safe)
	}
}

// increment bumps the unsafe counter without protection and the safe one
// under the mutex, both with the same widened window.
func (s *Service) increment(t *kernel.Task) error {
	value := s.unsafe.Load()
	if err := t.Sleep(s.config.Window); err != nil {
		return err
	}
	s.unsafe.Store(value + 1)

	if !s.lock.Acquire(t, kernel.Forever) {
		return kernel.ErrKilled
	}
	value = s.safe.Load()
	if err := t.Sleep(s.config.Window); err != nil {
		_ = s.lock.Release(t)
		return err
	}
	s.safe.Store(value + 1)
	return s.lock.Release(t)
}

func (s *Service) finish(r *model.Run) {
	unsafe, safe := s.Counters()
	result := r.Race
	result.Unsafe = unsafe
	result.Safe = safe
	result.Lost = safe - unsafe

	complete := true
	for _, worker := range r.Workers {
		if worker.State != model.WorkerCompleted {
			complete = false
		}
	}
	if complete && safe != result.Expected {
		r.Error = fmt.Sprintf("safe path lost updates: %d of %d", safe, result.Expected)
	}
	signal := "no-lost-updates"
	if unsafe < safe {
		signal = "lost-updates"
	}
	r.Outcome = &model.Outcome{Reproduced: complete && unsafe < result.Expected, Signal: signal}
}
