package scenario

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/model"
)

func newKernel(t *testing.T, maxTasks int) *kernel.Kernel {
	config := kernel.DefaultConfig()
	config.Watchdog.Enabled = false
	config.MaxTasks = maxTasks
	k, err := kernel.New(config)
	require.NoError(t, err)
	return k
}

func TestRun_CompletesAfterSeal(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		k := newKernel(t, 8)
		defer k.Shutdown(context.Background())

		var completed *model.Run
		record := model.NewRun("run-1", 1, model.ScenarioRace, time.Now())
		run := NewRun(context.Background(), record, k, nil, func(r *Run) {
			completed = r.Record().Clone()
		})
		run.OnFinish(func(r *model.Run) {
			r.Outcome = &model.Outcome{Reproduced: true, Signal: "done"}
		})

		for _, name := range []string{"first", "second"} {
			_, err := run.Spawn(kernel.Spec{Name: name, Priority: 1, Affinity: kernel.AnyCore}, func(task *kernel.Task) {
				_ = task.Sleep(10 * time.Millisecond)
			})
			require.NoError(t, err)
		}
		time.Sleep(20 * time.Millisecond)
		select {
		case <-run.Done():
			t.Fatal("run completed before seal")
		default:
		}

		run.Seal()
		<-run.Done()
		require.NotNil(t, completed)
		assert.Equal(t, model.RunCompleted, completed.State)
		assert.Equal(t, "done", completed.Outcome.Signal)
		assert.Equal(t, 2, completed.Progress.Completed)
		assert.True(t, completed.Progress.Done())
		for _, worker := range completed.Workers {
			assert.Equal(t, model.WorkerCompleted, worker.State)
			assert.NotNil(t, worker.EndedAt)
		}
	})
}

func TestRun_AbortOnSpawnFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		k := newKernel(t, 1)
		defer k.Shutdown(context.Background())

		record := model.NewRun("run-2", 1, model.ScenarioDeadlock, time.Now())
		run := NewRun(context.Background(), record, k, nil, nil)

		_, err := run.Spawn(kernel.Spec{Name: "first"}, func(task *kernel.Task) {
			_ = task.Sleep(5 * time.Millisecond)
		})
		require.NoError(t, err)
		_, err = run.Spawn(kernel.Spec{Name: "second"}, func(task *kernel.Task) {})
		require.ErrorIs(t, err, kernel.ErrTaskLimit)
		run.Abort(err)

		<-run.Done()
		assert.Equal(t, model.RunAborted, record.GetState())
		assert.ErrorIs(t, run.Err(), kernel.ErrTaskLimit)
		first, _ := record.Worker("first")
		second, _ := record.Worker("second")
		assert.Equal(t, model.WorkerCompleted, first.State)
		assert.Equal(t, model.WorkerNotStarted, second.State)
		assert.NotEmpty(t, second.Error)

		_, err = run.Spawn(kernel.Spec{Name: "late"}, func(task *kernel.Task) {})
		assert.Error(t, err)
	})
}

func TestRun_Stop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		k := newKernel(t, 4)
		defer k.Shutdown(context.Background())

		record := model.NewRun("run-3", 1, model.ScenarioStarvation, time.Now())
		run := NewRun(context.Background(), record, k, nil, nil)
		var loopErr error
		_, err := run.Spawn(kernel.Spec{Name: "hog", Priority: 1}, func(task *kernel.Task) {
			for loopErr == nil {
				loopErr = task.Work(time.Millisecond)
			}
		})
		require.NoError(t, err)
		run.Seal()

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, run.Stop(nil))
		<-run.Done()
		assert.True(t, errors.Is(loopErr, ErrStopped))
		hog, _ := record.Worker("hog")
		assert.Equal(t, model.WorkerKilled, hog.State)
		assert.Equal(t, 1, record.Clone().Progress.Killed)
	})
}
