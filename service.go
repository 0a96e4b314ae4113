package faultsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viant/faultsim/internal/clock"
	"github.com/viant/faultsim/internal/idgen"
	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/dao"
	runfs "github.com/viant/faultsim/service/dao/run/fs"
	runmemory "github.com/viant/faultsim/service/dao/run/memory"
	"github.com/viant/faultsim/service/event"
	"github.com/viant/faultsim/service/reporter"
	"github.com/viant/faultsim/service/scenario"
	"github.com/viant/faultsim/service/scenario/deadlock"
	"github.com/viant/faultsim/service/scenario/inversion"
	"github.com/viant/faultsim/service/scenario/race"
	"github.com/viant/faultsim/service/scenario/stack"
	"github.com/viant/faultsim/service/scenario/starvation"
	"github.com/viant/faultsim/tracing"
	"go.uber.org/atomic"
)

// Service orchestrates scenario runs on a shared simulated kernel.
type Service struct {
	config    *Config
	logger    *slog.Logger
	kernel    *kernel.Kernel
	scenarios map[model.ScenarioID]scenario.Scenario
	runs      dao.Service[string, model.Run]
	journal   dao.Service[string, model.Run]
	events    *event.Service
	sampler   *reporter.Sampler
	startedAt time.Time
	reports   *atomic.Int64

	mu      sync.Mutex
	seq     int
	active  map[model.ScenarioID]*scenario.Run
	handles map[string]*scenario.Run
	last    string
}

// New builds the kernel, the scenario primitives and the run store.
func New(ctx context.Context, options ...Option) (*Service, error) {
	ret := &Service{
		config:    DefaultConfig(),
		logger:    slog.Default(),
		startedAt: clock.Now(),
		reports:   atomic.NewInt64(0),
		active:    make(map[model.ScenarioID]*scenario.Run),
		handles:   make(map[string]*scenario.Run),
	}
	for _, opt := range options {
		opt(ret)
	}
	if err := ret.config.Validate(); err != nil {
		return nil, err
	}
	if ret.runs == nil {
		ret.runs = runmemory.New()
	}
	if ret.events == nil {
		ret.events = event.New(event.WithLogger(ret.logger))
	}
	if ret.sampler == nil {
		ret.sampler = reporter.NewSampler(ret.config.Report.LowMemoryThreshold, nil)
	}
	if ret.journal == nil && ret.config.Journal.URL != "" {
		journal, err := runfs.New(ctx, ret.config.Journal.URL, ret.logger)
		if err != nil {
			return nil, err
		}
		ret.journal = journal
	}

	var err error
	ret.kernel, err = kernel.New(ret.config.Kernel, kernel.WithLogger(ret.logger), kernel.WithHooks(kernel.Hooks{
		OnWatchdog:      ret.onWatchdog,
		OnStackOverflow: ret.onStackOverflow,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to start kernel: %w", err)
	}
	ret.scenarios = map[model.ScenarioID]scenario.Scenario{}
	for _, sc := range []scenario.Scenario{
		race.New(ret.kernel, ret.config.Race),
		deadlock.New(ret.kernel, ret.config.Deadlock),
		inversion.New(ret.kernel, ret.config.Inversion),
		starvation.New(ret.config.Starvation),
		stack.New(ret.config.Stack),
	} {
		ret.scenarios[sc.ID()] = sc
	}
	ret.logger.Info("fault simulator started", "cores", ret.config.Kernel.Cores, "watchdog", ret.config.Kernel.Watchdog.Enabled)
	return ret, nil
}

func (s *Service) Config() *Config { return s.config }

func (s *Service) Kernel() *kernel.Kernel { return s.kernel }

func (s *Service) Events() *event.Service { return s.events }

// Scenarios returns the registered scenario ids in dispatch order.
func (s *Service) Scenarios() []model.ScenarioID {
	var result []model.ScenarioID
	for _, id := range model.Scenarios {
		if _, ok := s.scenarios[id]; ok {
			result = append(result, id)
		}
	}
	return result
}

// Run starts scenario id and returns a snapshot of its record without waiting
// for it. A spawn failure aborts the run; workers already spawned keep going
// and the failure is returned alongside the record.
func (s *Service) Run(ctx context.Context, id model.ScenarioID) (*model.Run, error) {
	sc, ok := s.scenarios[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, id)
	}
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if _, busy := s.active[id]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrScenarioBusy, id)
	}
	s.seq++
	record := model.NewRun(idgen.New(), s.seq, id, clock.Now())
	ctx, span := tracing.StartSpan(ctx, "scenario "+string(id))
	span.WithAttributes(map[string]string{"run.id": record.ID, "scenario": string(id)})
	run := scenario.NewRun(ctx, record, s.kernel, s.logger, func(r *scenario.Run) {
		s.completed(r, span)
	})
	s.active[id] = run
	s.handles[record.ID] = run
	s.mu.Unlock()

	if err := s.runs.Save(ctx, record); err != nil {
		s.mu.Lock()
		delete(s.active, id)
		delete(s.handles, record.ID)
		s.mu.Unlock()
		tracing.EndSpan(span, err)
		return nil, fmt.Errorf("failed to save run %s: %w", record.ID, err)
	}
	s.mu.Lock()
	s.last = record.ID
	s.mu.Unlock()
	s.publishRun(ctx, event.TypeRunStarted, record)
	run.Logger().Info("scenario started", "seq", record.Seq)

	if err := sc.Start(run); err != nil {
		if run.Err() == nil {
			run.Abort(err)
		}
		if errors.Is(err, scenario.ErrBusy) {
			err = fmt.Errorf("%w: %v", ErrScenarioBusy, err)
		}
		return record.Clone(), err
	}
	return record.Clone(), nil
}

func (s *Service) completed(run *scenario.Run, span *tracing.Span) {
	record := run.Record()
	snapshot := record.Clone()
	s.mu.Lock()
	if s.active[snapshot.Scenario] == run {
		delete(s.active, snapshot.Scenario)
	}
	delete(s.handles, snapshot.ID)
	s.mu.Unlock()

	logger := run.Logger()
	if outcome := snapshot.Outcome; outcome != nil {
		span.WithAttributes(map[string]string{"outcome.signal": outcome.Signal})
		logger.Info("scenario completed", "state", string(snapshot.State), "reproduced", outcome.Reproduced, "signal", outcome.Signal)
	} else {
		logger.Info("scenario completed", "state", string(snapshot.State))
	}
	var runErr error
	if snapshot.Error != "" {
		runErr = errors.New(snapshot.Error)
	}
	tracing.EndSpan(span, runErr)

	ctx := context.Background()
	if s.journal != nil {
		if err := s.journal.Save(ctx, record); err != nil {
			logger.Error("failed to journal run", "error", err)
		}
	}
	s.publishRun(ctx, event.TypeRunCompleted, record)
}

// Wait blocks until runID completes and returns its final record.
func (s *Service) Wait(ctx context.Context, runID string) (*model.Run, error) {
	s.mu.Lock()
	run := s.handles[runID]
	s.mu.Unlock()
	if run != nil {
		select {
		case <-run.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.runs.Load(ctx, runID)
}

// Stop kills the live workers of runID and returns how many were stopped.
// Stopping a completed run is a no-op.
func (s *Service) Stop(ctx context.Context, runID string) (int, error) {
	s.mu.Lock()
	run := s.handles[runID]
	s.mu.Unlock()
	if run == nil {
		if _, err := s.runs.Load(ctx, runID); err != nil {
			return 0, err
		}
		return 0, nil
	}
	stopped := run.Stop(nil)
	run.Logger().Warn("scenario stopped", "workers", stopped)
	return stopped, nil
}

// Runs lists run records, filterable by criteria.State and criteria.Scenario.
func (s *Service) Runs(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Run, error) {
	return s.runs.List(ctx, parameters...)
}

// Report returns the next status report. Last is a snapshot of the most
// recently started run, live counters included while it is still running.
func (s *Service) Report(ctx context.Context) (*model.Report, error) {
	ret := &model.Report{
		Sequence: s.reports.Inc(),
		Uptime:   clock.Since(s.startedAt),
		Tasks:    s.kernel.Count(),
	}
	memory, err := s.sampler.Sample(ctx)
	if err != nil {
		s.logger.Debug("system memory unavailable", "error", err)
	}
	ret.Memory = memory

	s.mu.Lock()
	for _, id := range model.Scenarios {
		if _, ok := s.active[id]; ok {
			ret.Active = append(ret.Active, id)
		}
	}
	last := s.last
	s.mu.Unlock()

	runs, err := s.runs.List(ctx)
	if err != nil {
		return nil, err
	}
	ret.Runs = len(runs)
	if last != "" {
		if ret.Last, err = s.runs.Load(ctx, last); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// Shutdown kills every task, waits for active runs to settle and stops the
// event listeners.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.kernel.Shutdown(ctx)
	s.mu.Lock()
	var pending []*scenario.Run
	for _, run := range s.handles {
		pending = append(pending, run)
	}
	s.mu.Unlock()
	for _, run := range pending {
		select {
		case <-run.Done():
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
		}
	}
	s.events.Close()
	s.logger.Info("fault simulator stopped")
	return err
}

func (s *Service) publishRun(ctx context.Context, eventType string, record *model.Run) {
	snapshot := record.Clone()
	evt := event.NewEvent(&event.Context{
		RunID:     snapshot.ID,
		Scenario:  string(snapshot.Scenario),
		EventType: eventType,
	}, snapshot)
	if snapshot.CompletedAt != nil {
		evt.Context.ElapsedMs = snapshot.CompletedAt.Sub(snapshot.StartedAt).Milliseconds()
	}
	if err := event.PublisherOf[*model.Run](s.events).Publish(ctx, evt); err != nil {
		s.logger.Debug("run event dropped", "event", eventType, "error", err)
	}
}

func (s *Service) onWatchdog(core int, t *kernel.Task) {
	s.publishFault(event.TypeWatchdog, model.Fault{Kind: "watchdog", Task: t.Name(), Core: core})
}

func (s *Service) onStackOverflow(t *kernel.Task, requested int) {
	s.publishFault(event.TypeStackOverflow, model.Fault{
		Kind:   "stack-overflow",
		Task:   t.Name(),
		Core:   t.Core(),
		Detail: fmt.Sprintf("%d of %d bytes", requested, t.StackSize()),
	})
}

func (s *Service) publishFault(eventType string, fault model.Fault) {
	evt := event.NewEvent(&event.Context{EventType: eventType, Worker: fault.Task}, fault)
	if err := event.PublisherOf[model.Fault](s.events).Publish(context.Background(), evt); err != nil {
		s.logger.Debug("fault event dropped", "event", eventType, "error", err)
	}
}
