// Package inversion constructs a priority inversion: a low priority worker
// holds a mutex a high priority worker needs while an unrelated medium
// priority worker keeps the core busy.
package inversion

import (
	"fmt"
	"strconv"
	"time"

	"github.com/viant/faultsim/internal/clock"
	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/scenario"
)

const (
	SignalObserved    = "inversion-observed"
	SignalNotObserved = "no-inversion"
)

// Config controls the priority inversion scenario.
type Config struct {
	LowPriority    kernel.Priority `json:"lowPriority" yaml:"lowPriority"`
	MediumPriority kernel.Priority `json:"mediumPriority" yaml:"mediumPriority"`
	HighPriority   kernel.Priority `json:"highPriority" yaml:"highPriority"`
	// Affinity pins the three workers to one core so they compete for it.
	Affinity int `json:"affinity" yaml:"affinity"`

	HoldSteps int           `json:"holdSteps" yaml:"holdSteps"`
	StepWork  time.Duration `json:"stepWork" yaml:"stepWork"`
	StepRest  time.Duration `json:"stepRest" yaml:"stepRest"`

	HighDelay   time.Duration `json:"highDelay" yaml:"highDelay"`
	HighTimeout time.Duration `json:"highTimeout" yaml:"highTimeout"`
	HighHold    time.Duration `json:"highHold" yaml:"highHold"`

	MediumSteps int           `json:"mediumSteps" yaml:"mediumSteps"`
	MediumStep  time.Duration `json:"mediumStep" yaml:"mediumStep"`

	// Protocol is applied to the scenario mutex; none reproduces the inversion.
	Protocol kernel.Protocol `json:"protocol" yaml:"protocol"`
	// Margin is added to the threshold to absorb scheduling jitter.
	Margin    time.Duration `json:"margin" yaml:"margin"`
	StackSize int           `json:"stackSize" yaml:"stackSize"`
}

// DefaultConfig returns priorities 1, 2, 3 on core 0 with a 10s low hold.
func DefaultConfig() Config {
	return Config{
		LowPriority:    1,
		MediumPriority: 2,
		HighPriority:   3,
		Affinity:       0,
		HoldSteps:      10,
		StepWork:       100 * time.Millisecond,
		StepRest:       900 * time.Millisecond,
		HighDelay:      500 * time.Millisecond,
		HighTimeout:    15 * time.Second,
		HighHold:       100 * time.Millisecond,
		MediumSteps:    8,
		MediumStep:     500 * time.Millisecond,
		Protocol:       kernel.ProtocolNone,
		Margin:         500 * time.Millisecond,
		StackSize:      2048,
	}
}

// Baseline is the time the low priority worker holds the mutex undisturbed.
func (c *Config) Baseline() time.Duration {
	return time.Duration(c.HoldSteps) * (c.StepWork + c.StepRest)
}

// Threshold is the high priority wait above which inversion is reported.
func (c *Config) Threshold() time.Duration {
	return c.Baseline() - c.HighDelay + c.Margin
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !(c.LowPriority < c.MediumPriority && c.MediumPriority < c.HighPriority) {
		return fmt.Errorf("inversion priorities must satisfy low < medium < high, got %d, %d, %d", c.LowPriority, c.MediumPriority, c.HighPriority)
	}
	if c.HoldSteps <= 0 || c.StepWork <= 0 {
		return fmt.Errorf("inversion.holdSteps and inversion.stepWork must be positive")
	}
	if c.HighDelay <= 0 || c.HighDelay >= c.Baseline() {
		return fmt.Errorf("inversion.highDelay %s must be positive and shorter than the %s hold", c.HighDelay, c.Baseline())
	}
	if c.HighTimeout <= 0 {
		return fmt.Errorf("inversion.highTimeout must be positive, got %s", c.HighTimeout)
	}
	if !c.Protocol.Valid() {
		return fmt.Errorf("inversion.protocol %q is not supported", c.Protocol)
	}
	return nil
}

// Service runs the priority inversion scenario.
type Service struct {
	config Config
	lock   *kernel.Mutex
}

func New(scheduler scenario.Scheduler, config Config) *Service {
	return &Service{
		config: config,
		lock: scheduler.NewMutex("inversion",
			kernel.WithProtocol(config.Protocol),
			kernel.WithCeiling(config.HighPriority)),
	}
}

func (s *Service) ID() model.ScenarioID { return model.ScenarioInversion }

// Lock returns the contended mutex.
func (s *Service) Lock() *kernel.Mutex { return s.lock }

// Start spawns the low priority holder and a launcher that brings in the
// high and medium priority workers after HighDelay.
func (s *Service) Start(run *scenario.Run) error {
	if !s.lock.IsFree() {
		return scenario.ErrBusy
	}
	run.Record().Update(func(r *model.Run) {
		r.Inversion = &model.InversionResult{
			Protocol:  string(s.lock.Protocol()),
			Baseline:  s.config.Baseline(),
			Threshold: s.config.Threshold(),
		}
	})
	run.OnFinish(s.finish)
	run.Logger().Info("starting priority inversion", "protocol", s.lock.Protocol(), "baseline", s.config.Baseline(), "threshold", s.config.Threshold())

	low := s.spec("PI_Low", s.config.LowPriority, s.config.Affinity)
	if _, err := run.Spawn(low, s.low(run, low.Name)); err != nil {
		run.Abort(err)
		return fmt.Errorf("inversion: %w", err)
	}
	launcher := s.spec("PI_Launcher", s.config.HighPriority, kernel.AnyCore)
	if _, err := run.Spawn(launcher, s.launcher(run)); err != nil {
		run.Abort(err)
		return fmt.Errorf("inversion: %w", err)
	}
	run.Seal()
	return nil
}

func (s *Service) spec(name string, priority kernel.Priority, affinity int) kernel.Spec {
	return kernel.Spec{Name: name, Priority: priority, StackSize: s.config.StackSize, Affinity: affinity}
}

func (s *Service) launcher(run *scenario.Run) kernel.Entry {
	return func(t *kernel.Task) {
		if err := t.Sleep(s.config.HighDelay); err != nil {
			return
		}
		high := s.spec("PI_High", s.config.HighPriority, s.config.Affinity)
		if _, err := run.Spawn(high, s.high(run, high.Name)); err != nil {
			run.Abort(err)
			return
		}
		medium := s.spec("PI_Medium", s.config.MediumPriority, s.config.Affinity)
		if _, err := run.Spawn(medium, s.medium(run, medium.Name)); err != nil {
			run.Abort(err)
		}
	}
}

func (s *Service) low(run *scenario.Run, name string) kernel.Entry {
	logger := run.Logger().With("task", name)
	return func(t *kernel.Task) {
		if !s.lock.Acquire(t, kernel.Forever) {
			return
		}
		heldAt := clock.Now()
		logger.Info("low priority task took the lock")
		defer func() {
			held := clock.Since(heldAt)
			run.Record().Update(func(r *model.Run) { r.Inversion.LowHold = held })
			logger.Info("low priority task releasing the lock", "held", held)
			_ = s.lock.Release(t)
		}()
		for i := 0; i < s.config.HoldSteps; i++ {
			logger.Debug("low priority task working", "step", i+1, "of", s.config.HoldSteps)
			if err := t.Work(s.config.StepWork); err != nil {
				return
			}
			if err := t.Sleep(s.config.StepRest); err != nil {
				return
			}
			run.UpdateWorker(name, func(w *model.Worker) { w.Iterations = i + 1 })
		}
	}
}

func (s *Service) high(run *scenario.Run, name string) kernel.Entry {
	logger := run.Logger().With("task", name)
	return func(t *kernel.Task) {
		logger.Info("high priority task needs the lock")
		requested := clock.Now()
		acquired := s.lock.Acquire(t, s.config.HighTimeout)
		waited := clock.Since(requested)
		observed := !acquired || waited > s.config.Threshold()
		run.UpdateWorker(name, func(w *model.Worker) { w.Wait = waited })
		run.Record().Update(func(r *model.Run) {
			r.Inversion.Wait = waited
			r.Inversion.TimedOut = !acquired
			r.Inversion.Observed = observed
		})
		run.AddEvent(name, "lock-wait", map[string]string{
			"wait":      waited.String(),
			"acquired":  strconv.FormatBool(acquired),
			"inversion": strconv.FormatBool(observed),
		})
		if !acquired {
			if !t.Killed() {
				logger.Error("high priority task never got the lock", "wait", waited)
			}
			return
		}
		logger.Info("high priority task got the lock", "wait", waited, "inversion", observed)
		_ = t.Sleep(s.config.HighHold)
		_ = s.lock.Release(t)
	}
}

func (s *Service) medium(run *scenario.Run, name string) kernel.Entry {
	logger := run.Logger().With("task", name)
	return func(t *kernel.Task) {
		for i := 0; i < s.config.MediumSteps; i++ {
			logger.Debug("medium priority task busy", "step", i+1, "of", s.config.MediumSteps)
			if err := t.Work(s.config.MediumStep); err != nil {
				return
			}
			run.UpdateWorker(name, func(w *model.Worker) { w.Iterations = i + 1 })
		}
		logger.Info("medium priority task finished")
	}
}

func (s *Service) finish(r *model.Run) {
	result := r.Inversion
	var high *model.Worker
	for _, worker := range r.Workers {
		if worker.Name == "PI_High" {
			high = worker
		}
	}
	signal := SignalNotObserved
	if result.Observed {
		signal = SignalObserved
	}
	reproduced := high != nil && high.State != model.WorkerKilled && result.Observed
	r.Outcome = &model.Outcome{Reproduced: reproduced, Signal: signal}
}
