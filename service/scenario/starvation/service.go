// Package starvation spins a worker that never suspends, keeping its core
// from lower priority work and from the idle task that feeds the watchdog.
package starvation

import (
	"errors"
	"fmt"
	"time"

	"github.com/viant/faultsim/internal/clock"
	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/scenario"
)

const (
	TerminationWatchdog = "watchdog"
	TerminationStopped  = "stopped"
	TerminationShutdown = "shutdown"
	TerminationKilled   = "killed"
)

// Config controls the starvation scenario.
type Config struct {
	Priority kernel.Priority `json:"priority" yaml:"priority"`
	Affinity int             `json:"affinity" yaml:"affinity"`
	// Slice is the CPU time burnt per loop iteration.
	Slice       time.Duration `json:"slice" yaml:"slice"`
	ReportEvery int64         `json:"reportEvery" yaml:"reportEvery"`
	StackSize   int           `json:"stackSize" yaml:"stackSize"`
}

// DefaultConfig returns a priority 1 hog on core 0.
func DefaultConfig() Config {
	return Config{
		Priority:    1,
		Affinity:    0,
		Slice:       time.Millisecond,
		ReportEvery: 1000,
		StackSize:   2048,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Slice <= 0 {
		return fmt.Errorf("starvation.slice must be positive, got %s", c.Slice)
	}
	if c.Priority <= kernel.IdlePriority {
		return fmt.Errorf("starvation.priority must be above the idle priority, got %d", c.Priority)
	}
	return nil
}

// Service runs the starvation scenario.
type Service struct {
	config Config
}

func New(config Config) *Service {
	return &Service{config: config}
}

func (s *Service) ID() model.ScenarioID { return model.ScenarioStarvation }

// Start spawns the hog.
func (s *Service) Start(run *scenario.Run) error {
	run.Record().Update(func(r *model.Run) { r.Starvation = &model.StarvationResult{} })
	run.OnFinish(func(r *model.Run) {
		r.Starvation.Elapsed = clock.Since(r.StartedAt)
		r.Outcome = &model.Outcome{
			Reproduced: r.Starvation.Termination == TerminationWatchdog,
			Signal:     r.Starvation.Termination,
		}
	})
	run.Logger().Warn("starting infinite loop, only the watchdog or a stop ends it")

	spec := kernel.Spec{Name: "InfiniteLoop", Priority: s.config.Priority, StackSize: s.config.StackSize, Affinity: s.config.Affinity}
	if _, err := run.Spawn(spec, s.hog(run, spec.Name)); err != nil {
		run.Abort(err)
		return fmt.Errorf("starvation: %w", err)
	}
	run.Seal()
	return nil
}

func (s *Service) hog(run *scenario.Run, name string) kernel.Entry {
	logger := run.Logger().With("task", name)
	return func(t *kernel.Task) {
		var iterations int64
		for {
			iterations++
			err := t.Work(s.config.Slice)
			if err != nil {
				termination := Termination(err)
				run.Record().Update(func(r *model.Run) {
					r.Starvation.Iterations = iterations
					r.Starvation.Termination = termination
				})
				run.UpdateWorker(name, func(w *model.Worker) { w.Iterations = int(iterations) })
				logger.Warn("infinite loop terminated", "iterations", iterations, "by", termination)
				return
			}
			if s.config.ReportEvery > 0 && iterations%s.config.ReportEvery == 0 {
				run.Record().Update(func(r *model.Run) { r.Starvation.Iterations = iterations })
				logger.Info("still looping", "iterations", iterations)
			}
		}
	}
}

// Termination names what ended the hog.
func Termination(err error) string {
	switch {
	case errors.Is(err, kernel.ErrWatchdog):
		return TerminationWatchdog
	case errors.Is(err, scenario.ErrStopped):
		return TerminationStopped
	case errors.Is(err, kernel.ErrShutdown):
		return TerminationShutdown
	default:
		return TerminationKilled
	}
}
