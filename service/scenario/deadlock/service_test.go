package deadlock

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/scenario"
	"github.com/viant/faultsim/tracing"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestService_Start(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		config := kernel.DefaultConfig()
		config.Watchdog.Enabled = false
		k, err := kernel.New(config)
		require.NoError(t, err)
		defer k.Shutdown(context.Background())
		srv := New(k, DefaultConfig())

		record := model.NewRun("deadlock-1", 1, srv.ID(), time.Now())
		run := scenario.NewRun(context.Background(), record, k, nil, nil)
		require.NoError(t, srv.Start(run))

		time.Sleep(time.Second)
		first, _ := record.Worker("Deadlock1")
		second, _ := record.Worker("Deadlock2")
		assert.Equal(t, model.WorkerWaitingSecond, first.State)
		assert.Equal(t, model.WorkerWaitingSecond, second.State)
		a, b := srv.Locks()
		assert.Equal(t, "Deadlock1", a.Holder())
		assert.Equal(t, "Deadlock2", b.Holder())
		assert.ErrorIs(t, srv.Start(scenario.NewRun(context.Background(), model.NewRun("deadlock-2", 2, srv.ID(), time.Now()), k, nil, nil)), scenario.ErrBusy)

		<-run.Done()
		snapshot := record.Clone()
		require.NotNil(t, snapshot.Deadlock)
		assert.True(t, snapshot.Deadlock.LocksFree)
		assert.GreaterOrEqual(t, snapshot.Deadlock.Elapsed, 5*time.Second)
		assert.Less(t, snapshot.Deadlock.Elapsed, 5200*time.Millisecond)
		for _, worker := range snapshot.Workers {
			assert.Equal(t, model.WorkerTimedOut, worker.State, worker.Name)
			assert.Equal(t, 5*time.Second, worker.Wait, worker.Name)
		}
		assert.True(t, snapshot.Outcome.Reproduced)
		assert.Equal(t, "deadlock-timeout", snapshot.Outcome.Signal)
		assert.True(t, a.IsFree())
		assert.True(t, b.IsFree())
	})
}

func TestService_WorkerSpanEvents(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	require.NoError(t, tracing.InitWithExporter("faultsim", "test", exporter))

	synctest.Test(t, func(t *testing.T) {
		config := kernel.DefaultConfig()
		config.Watchdog.Enabled = false
		k, err := kernel.New(config)
		require.NoError(t, err)
		defer k.Shutdown(context.Background())
		srv := New(k, DefaultConfig())

		exporter.Reset()
		run := scenario.NewRun(context.Background(), model.NewRun("deadlock-3", 1, srv.ID(), time.Now()), k, nil, nil)
		require.NoError(t, srv.Start(run))
		<-run.Done()

		events := map[string][]string{}
		for _, span := range exporter.GetSpans() {
			for _, event := range span.Events {
				events[span.Name] = append(events[span.Name], event.Name)
			}
		}
		expected := []string{string(model.WorkerHoldingFirst), string(model.WorkerWaitingSecond), string(model.WorkerTimedOut)}
		assert.Equal(t, expected, events["worker Deadlock1"])
		assert.Equal(t, expected, events["worker Deadlock2"])
	})
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		description string
		mutate      func(c *Config)
		expectErr   bool
	}{
		{description: "defaults", mutate: func(c *Config) {}},
		{description: "second before first", mutate: func(c *Config) { c.SecondDelay = c.FirstDelay }, expectErr: true},
		{description: "timeout too short", mutate: func(c *Config) { c.Timeout = c.SecondDelay }, expectErr: true},
		{description: "no first delay", mutate: func(c *Config) { c.FirstDelay = 0 }, expectErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			config := DefaultConfig()
			testCase.mutate(&config)
			err := config.Validate()
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
