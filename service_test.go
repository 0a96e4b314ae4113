package faultsim_test

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/faultsim"
	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/dao"
	"github.com/viant/faultsim/service/dao/criteria"
	runfs "github.com/viant/faultsim/service/dao/run/fs"
	runmemory "github.com/viant/faultsim/service/dao/run/memory"
	"github.com/viant/faultsim/service/event"
	"github.com/viant/faultsim/service/reporter"
	"github.com/viant/faultsim/service/scenario/starvation"
)

func newService(t *testing.T, options ...faultsim.Option) *faultsim.Service {
	config := faultsim.DefaultConfig()
	sampler := reporter.NewSampler(1024, func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Available: 4096}, nil
	})
	options = append([]faultsim.Option{faultsim.WithConfig(config), faultsim.WithSampler(sampler)}, options...)
	srv, err := faultsim.New(context.Background(), options...)
	require.NoError(t, err)
	return srv
}

func TestService_Run(t *testing.T) {
	testCases := []struct {
		description string
		scenario    model.ScenarioID
		signal      string
	}{
		{description: "race loses updates", scenario: model.ScenarioRace, signal: "lost-updates"},
		{description: "deadlock times out", scenario: model.ScenarioDeadlock, signal: "deadlock-timeout"},
		{description: "inversion without protocol", scenario: model.ScenarioInversion, signal: "inversion-observed"},
		{description: "watchdog resets the hog", scenario: model.ScenarioStarvation, signal: starvation.TerminationWatchdog},
		{description: "stacks overflow", scenario: model.ScenarioStack, signal: "2 of 2 overflowed"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				srv := newService(t)
				defer srv.Shutdown(context.Background())
				ctx := context.Background()

				started, err := srv.Run(ctx, testCase.scenario)
				require.NoError(t, err)
				assert.Equal(t, model.RunRunning, started.State)
				assert.Equal(t, 1, started.Seq)

				final, err := srv.Wait(ctx, started.ID)
				require.NoError(t, err)
				assert.Equal(t, model.RunCompleted, final.State)
				require.NotNil(t, final.Outcome)
				assert.True(t, final.Outcome.Reproduced)
				assert.Equal(t, testCase.signal, final.Outcome.Signal)
				assert.True(t, final.Progress.Done())
			})
		})
	}
}

func TestService_Busy(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		srv := newService(t)
		defer srv.Shutdown(context.Background())
		ctx := context.Background()

		first, err := srv.Run(ctx, model.ScenarioDeadlock)
		require.NoError(t, err)
		_, err = srv.Run(ctx, model.ScenarioDeadlock)
		assert.ErrorIs(t, err, faultsim.ErrScenarioBusy)
		raced, err := srv.Run(ctx, model.ScenarioRace)
		require.NoError(t, err)

		report, err := srv.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.ScenarioID{model.ScenarioRace, model.ScenarioDeadlock}, report.Active)

		_, err = srv.Wait(ctx, first.ID)
		require.NoError(t, err)
		_, err = srv.Wait(ctx, raced.ID)
		require.NoError(t, err)
		second, err := srv.Run(ctx, model.ScenarioDeadlock)
		require.NoError(t, err)
		assert.Equal(t, 3, second.Seq)
		_, err = srv.Wait(ctx, second.ID)
		require.NoError(t, err)

		_, err = srv.Run(ctx, "meltdown")
		assert.ErrorIs(t, err, faultsim.ErrUnknownScenario)
	})
}

func TestService_Stop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		config := faultsim.DefaultConfig()
		config.Kernel.Watchdog.Enabled = false
		srv, err := faultsim.New(context.Background(), faultsim.WithConfig(config))
		require.NoError(t, err)
		defer srv.Shutdown(context.Background())
		ctx := context.Background()

		run, err := srv.Run(ctx, model.ScenarioStarvation)
		require.NoError(t, err)
		time.Sleep(time.Second)
		stopped, err := srv.Stop(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stopped)

		final, err := srv.Wait(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, starvation.TerminationStopped, final.Starvation.Termination)
		assert.False(t, final.Outcome.Reproduced)

		stopped, err = srv.Stop(ctx, run.ID)
		require.NoError(t, err)
		assert.Zero(t, stopped)
		_, err = srv.Stop(ctx, "missing")
		assert.ErrorIs(t, err, dao.ErrNotFound)
	})
}

func TestService_ReportAndRuns(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		srv := newService(t)
		defer srv.Shutdown(context.Background())
		ctx := context.Background()

		report, err := srv.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), report.Sequence)
		assert.Nil(t, report.Last)
		assert.Equal(t, 2, report.Tasks)
		assert.True(t, report.Memory.Available > 0)
		assert.False(t, report.Memory.LowMemory)

		for _, id := range []model.ScenarioID{model.ScenarioStack, model.ScenarioRace} {
			run, err := srv.Run(ctx, id)
			require.NoError(t, err)
			_, err = srv.Wait(ctx, run.ID)
			require.NoError(t, err)
		}

		report, err = srv.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), report.Sequence)
		assert.Equal(t, 2, report.Runs)
		require.NotNil(t, report.Last)
		assert.Equal(t, model.ScenarioRace, report.Last.Scenario)
		assert.Empty(t, report.Active)

		runs, err := srv.Runs(ctx, dao.NewParameter(criteria.Scenario, string(model.ScenarioStack)))
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, 1, runs[0].Seq)
	})
}

func TestService_JournalAndEvents(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		journal, err := runfs.New(ctx, t.TempDir(), nil)
		require.NoError(t, err)
		events := event.New()
		received := make(chan *event.Event[*model.Run], 4)
		faults := make(chan *event.Event[model.Fault], 4)
		event.SetListenerOf[*model.Run](events, func(e *event.Event[*model.Run]) { received <- e })
		event.SetListenerOf[model.Fault](events, func(e *event.Event[model.Fault]) { faults <- e })

		srv := newService(t, faultsim.WithJournal(journal), faultsim.WithEventService(events))
		defer srv.Shutdown(ctx)

		run, err := srv.Run(ctx, model.ScenarioStack)
		require.NoError(t, err)
		_, err = srv.Wait(ctx, run.ID)
		require.NoError(t, err)
		synctest.Wait()

		var types []string
		for len(received) > 0 {
			types = append(types, (<-received).Context.EventType)
		}
		assert.Equal(t, []string{event.TypeRunStarted, event.TypeRunCompleted}, types)
		assert.Len(t, faults, 2)

		journaled, err := journal.Load(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunCompleted, journaled.State)
		assert.Equal(t, 2, journaled.Stack.Overflows)
	})
}

func TestService_InvalidConfig(t *testing.T) {
	config := faultsim.DefaultConfig()
	config.Kernel.Cores = 0
	_, err := faultsim.New(context.Background(), faultsim.WithConfig(config))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, faultsim.ErrScenarioBusy))
}

func TestService_ReportLiveRun(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		srv := newService(t)
		defer srv.Shutdown(context.Background())
		ctx := context.Background()

		run, err := srv.Run(ctx, model.ScenarioRace)
		require.NoError(t, err)
		time.Sleep(150 * time.Millisecond)

		report, err := srv.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.ScenarioID{model.ScenarioRace}, report.Active)
		require.NotNil(t, report.Last)
		assert.Equal(t, run.ID, report.Last.ID)
		assert.Equal(t, model.RunRunning, report.Last.State)
		require.NotNil(t, report.Last.Race)
		assert.Greater(t, report.Last.Race.Safe, int64(0))
		assert.LessOrEqual(t, report.Last.Race.Unsafe, report.Last.Race.Safe)

		_, err = srv.Wait(ctx, run.ID)
		require.NoError(t, err)
	})
}

func TestService_SpawnFailureAborts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		config := faultsim.DefaultConfig()
		// two idle tasks plus a single worker
		config.Kernel.MaxTasks = config.Kernel.Cores + 1
		srv := newService(t, faultsim.WithConfig(config))
		defer srv.Shutdown(context.Background())
		ctx := context.Background()

		started, err := srv.Run(ctx, model.ScenarioRace)
		require.ErrorIs(t, err, kernel.ErrTaskLimit)
		require.NotNil(t, started)

		final, err := srv.Wait(ctx, started.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunAborted, final.State)
		assert.Contains(t, final.Error, kernel.ErrTaskLimit.Error())
		require.Len(t, final.Workers, 2)
		assert.Equal(t, model.WorkerCompleted, final.Workers[0].State)
		assert.Equal(t, config.Race.Iterations, final.Workers[0].Iterations)
		assert.Equal(t, model.WorkerNotStarted, final.Workers[1].State)
		assert.True(t, final.Progress.Done())

		report, err := srv.Report(ctx)
		require.NoError(t, err)
		assert.Empty(t, report.Active)
	})
}

type flakyStore struct {
	*runmemory.Service
	failures int
}

func (s *flakyStore) Save(ctx context.Context, run *model.Run) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("store unavailable")
	}
	return s.Service.Save(ctx, run)
}

func TestService_SaveFailureReleasesScenario(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &flakyStore{Service: runmemory.New(), failures: 1}
		srv := newService(t, faultsim.WithRunStore(store))
		defer srv.Shutdown(context.Background())
		ctx := context.Background()

		_, err := srv.Run(ctx, model.ScenarioStack)
		require.Error(t, err)
		report, err := srv.Report(ctx)
		require.NoError(t, err)
		assert.Empty(t, report.Active)
		assert.Nil(t, report.Last)

		run, err := srv.Run(ctx, model.ScenarioStack)
		require.NoError(t, err)
		final, err := srv.Wait(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunCompleted, final.State)
	})
}
