// Package stack exhausts task stack budgets: one worker asks for a frame
// larger than its whole budget, another recurses until it runs out.
package stack

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/scenario"
)

// Config controls the stack overflow scenario.
type Config struct {
	Priority kernel.Priority `json:"priority" yaml:"priority"`
	// TinyStack is the budget of the worker that allocates one large frame.
	TinyStack int `json:"tinyStack" yaml:"tinyStack"`
	TinyFrame int `json:"tinyFrame" yaml:"tinyFrame"`
	// Budget is the stack of the recursive worker.
	Budget   int `json:"budget" yaml:"budget"`
	Frame    int `json:"frame" yaml:"frame"`
	MaxDepth int `json:"maxDepth" yaml:"maxDepth"`
}

// DefaultConfig returns a 64 byte task asking for 2KiB and a 2KiB task
// recursing 256 bytes per level.
func DefaultConfig() Config {
	return Config{
		Priority:  1,
		TinyStack: 64,
		TinyFrame: 2048,
		Budget:    2048,
		Frame:     256,
		MaxDepth:  100,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.TinyStack <= 0 || c.Budget <= 0 {
		return fmt.Errorf("stack budgets must be positive")
	}
	if c.Frame <= 0 || c.TinyFrame <= 0 {
		return fmt.Errorf("stack frames must be positive")
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("stack.maxDepth must be positive, got %d", c.MaxDepth)
	}
	return nil
}

// Service runs the stack overflow scenario.
type Service struct {
	config Config
}

func New(config Config) *Service {
	return &Service{config: config}
}

func (s *Service) ID() model.ScenarioID { return model.ScenarioStack }

// Start spawns both workers.
func (s *Service) Start(run *scenario.Run) error {
	run.Record().Update(func(r *model.Run) { r.Stack = &model.StackResult{Workers: 2} })
	run.OnFinish(func(r *model.Run) {
		r.Outcome = &model.Outcome{
			Reproduced: r.Stack.Overflows == r.Stack.Workers,
			Signal:     fmt.Sprintf("%d of %d overflowed", r.Stack.Overflows, r.Stack.Workers),
		}
	})

	workers := []struct {
		spec  kernel.Spec
		entry kernel.Entry
	}{
		{kernel.Spec{Name: "StackHungry", Priority: s.config.Priority, StackSize: s.config.TinyStack, Affinity: kernel.AnyCore}, s.hungry(run, "StackHungry")},
		{kernel.Spec{Name: "StackBlower", Priority: s.config.Priority, StackSize: s.config.Budget, Affinity: kernel.AnyCore}, s.blower(run, "StackBlower")},
	}
	for _, worker := range workers {
		if _, err := run.Spawn(worker.spec, worker.entry); err != nil {
			run.Abort(err)
			return fmt.Errorf("stack: %w", err)
		}
	}
	run.Seal()
	return nil
}

func (s *Service) hungry(run *scenario.Run, name string) kernel.Entry {
	logger := run.Logger().With("task", name)
	return func(t *kernel.Task) {
		logger.Info("allocating frame larger than the stack", "frame", s.config.TinyFrame, "budget", t.StackSize())
		err := t.Push(s.config.TinyFrame)
		s.record(run, err)
		if err == nil {
			t.Pop(s.config.TinyFrame)
		}
	}
}

func (s *Service) blower(run *scenario.Run, name string) kernel.Entry {
	logger := run.Logger().With("task", name)
	return func(t *kernel.Task) {
		depth, err := s.recurse(t, 1, logger)
		run.UpdateWorker(name, func(w *model.Worker) { w.Iterations = depth })
		s.record(run, err)
	}
}

func (s *Service) recurse(t *kernel.Task, depth int, logger *slog.Logger) (int, error) {
	if err := t.Push(s.config.Frame); err != nil {
		return depth, err
	}
	defer t.Pop(s.config.Frame)
	if depth%10 == 0 {
		logger.Info("recursion", "depth", depth, "stackUsed", depth*s.config.Frame)
	}
	if depth >= s.config.MaxDepth {
		logger.Warn("recursion finished without overflow", "depth", depth)
		return depth, nil
	}
	return s.recurse(t, depth+1, logger)
}

func (s *Service) record(run *scenario.Run, err error) {
	if !errors.Is(err, kernel.ErrStackOverflow) {
		return
	}
	run.Record().Update(func(r *model.Run) { r.Stack.Overflows++ })
}
