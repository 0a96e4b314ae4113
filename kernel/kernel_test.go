package kernel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trace collects ordered markers from tasks.
type trace struct {
	mu    sync.Mutex
	marks []string
}

func (tr *trace) add(mark string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.marks = append(tr.marks, mark)
}

func (tr *trace) list() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.marks...)
}

func newTestKernel(t *testing.T, cores int) *Kernel {
	config := DefaultConfig()
	config.Cores = cores
	config.Watchdog.Enabled = false
	k, err := New(config)
	require.NoError(t, err)
	return k
}

func waitAll(tasks ...*Task) {
	for _, task := range tasks {
		<-task.Done()
	}
}

func TestKernel_ReadyOrder(t *testing.T) {
	testCases := []struct {
		description string
		priorities  map[string]Priority
		spawnOrder  []string
		expected    []string
	}{
		{
			description: "highest priority first",
			priorities:  map[string]Priority{"low": 1, "high": 3, "mid": 2},
			spawnOrder:  []string{"low", "high", "mid"},
			expected:    []string{"high", "mid", "low"},
		},
		{
			description: "equal priorities in ready order",
			priorities:  map[string]Priority{"a": 2, "b": 2, "c": 2},
			spawnOrder:  []string{"a", "b", "c"},
			expected:    []string{"a", "b", "c"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				k := newTestKernel(t, 1)
				defer k.Shutdown(context.Background())

				tr := &trace{}
				gate, err := k.Spawn(Spec{Name: "gate", Priority: 10}, func(task *Task) {
					_ = task.Work(5 * time.Millisecond)
				})
				require.NoError(t, err)
				tasks := []*Task{gate}
				for _, name := range testCase.spawnOrder {
					name := name
					task, err := k.Spawn(Spec{Name: name, Priority: testCase.priorities[name]}, func(task *Task) {
						tr.add(name)
					})
					require.NoError(t, err)
					tasks = append(tasks, task)
				}
				waitAll(tasks...)
				assert.Equal(t, testCase.expected, tr.list())
			})
		})
	}
}

func TestKernel_Preemption(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		k := newTestKernel(t, 1)
		defer k.Shutdown(context.Background())

		tr := &trace{}
		low, err := k.Spawn(Spec{Name: "low", Priority: 1}, func(task *Task) {
			tr.add("low-start")
			_ = task.Work(10 * time.Millisecond)
			tr.add("low-end")
		})
		require.NoError(t, err)

		time.Sleep(3 * time.Millisecond)
		high, err := k.Spawn(Spec{Name: "high", Priority: 3}, func(task *Task) {
			tr.add("high")
		})
		require.NoError(t, err)

		waitAll(low, high)
		assert.Equal(t, []string{"low-start", "high", "low-end"}, tr.list())
		assert.Equal(t, 10*time.Millisecond, low.CPU())
		assert.Equal(t, 1, low.Info().Preemptions)
	})
}

func TestKernel_EqualPriorityDoesNotPreempt(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		k := newTestKernel(t, 1)
		defer k.Shutdown(context.Background())

		tr := &trace{}
		first, err := k.Spawn(Spec{Name: "first", Priority: 2}, func(task *Task) {
			_ = task.Work(10 * time.Millisecond)
			tr.add("first")
		})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		second, err := k.Spawn(Spec{Name: "second", Priority: 2}, func(task *Task) {
			tr.add("second")
		})
		require.NoError(t, err)

		waitAll(first, second)
		assert.Equal(t, []string{"first", "second"}, tr.list())
	})
}

func TestKernel_SleepReleasesCore(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		k := newTestKernel(t, 1)
		defer k.Shutdown(context.Background())

		tr := &trace{}
		sleeper, err := k.Spawn(Spec{Name: "sleeper", Priority: 5}, func(task *Task) {
			tr.add("sleeper-start")
			assert.NoError(t, task.Sleep(20*time.Millisecond))
			tr.add("sleeper-end")
		})
		require.NoError(t, err)
		worker, err := k.Spawn(Spec{Name: "worker", Priority: 1}, func(task *Task) {
			tr.add("worker-start")
			_ = task.Work(50 * time.Millisecond)
			tr.add("worker-end")
		})
		require.NoError(t, err)

		waitAll(sleeper, worker)
		assert.Equal(t, []string{"sleeper-start", "worker-start", "sleeper-end", "worker-end"}, tr.list())
	})
}

func TestKernel_Affinity(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		k := newTestKernel(t, 2)
		defer k.Shutdown(context.Background())

		block := k.NewEvent("block")
		entry := func(task *Task) { block.Wait(task, Forever) }
		pinned, err := k.Spawn(Spec{Name: "pinned", Affinity: 3}, entry)
		require.NoError(t, err)
		assert.Equal(t, 1, pinned.Core())

		floating, err := k.Spawn(Spec{Name: "floating", Affinity: AnyCore}, entry)
		require.NoError(t, err)
		assert.Equal(t, 0, floating.Core())

		assert.Equal(t, 2, k.Count())
		block.Set()
		waitAll(pinned, floating)
		assert.Equal(t, 0, k.Count())
	})
}

func TestKernel_TaskLimit(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		config := DefaultConfig()
		config.Watchdog.Enabled = false
		config.MaxTasks = 2
		k, err := New(config)
		require.NoError(t, err)
		defer k.Shutdown(context.Background())

		block := k.NewEvent("block")
		entry := func(task *Task) { block.Wait(task, Forever) }
		first, err := k.Spawn(Spec{Name: "first"}, entry)
		require.NoError(t, err)
		second, err := k.Spawn(Spec{Name: "second", Affinity: 1}, entry)
		require.NoError(t, err)

		_, err = k.Spawn(Spec{Name: "third"}, entry)
		assert.ErrorIs(t, err, ErrTaskLimit)

		block.Set()
		waitAll(first, second)
		third, err := k.Spawn(Spec{Name: "third"}, entry)
		require.NoError(t, err)
		waitAll(third)
	})
}

func TestKernel_Kill(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		k := newTestKernel(t, 1)
		defer k.Shutdown(context.Background())

		var sleepErr error
		task, err := k.Spawn(Spec{Name: "sleeper", Priority: 1}, func(task *Task) {
			sleepErr = task.Sleep(time.Hour)
		})
		require.NoError(t, err)

		time.Sleep(time.Millisecond)
		assert.True(t, k.Kill(task, nil))
		<-task.Done()
		assert.ErrorIs(t, sleepErr, ErrKilled)
		assert.ErrorIs(t, task.Err(), ErrKilled)
		assert.False(t, k.Kill(task, nil))
	})
}

func TestKernel_PanicRecovered(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		k := newTestKernel(t, 1)
		defer k.Shutdown(context.Background())

		task, err := k.Spawn(Spec{Name: "faulty"}, func(task *Task) {
			panic("boom")
		})
		require.NoError(t, err)
		<-task.Done()
		assert.ErrorIs(t, task.Err(), ErrTaskPanic)
		assert.Equal(t, StateDeleted, task.State())
	})
}

func TestKernel_StackOverflow(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var overflowed []string
		config := DefaultConfig()
		config.Watchdog.Enabled = false
		k, err := New(config, WithHooks(Hooks{OnStackOverflow: func(task *Task, requested int) {
			overflowed = append(overflowed, task.Name())
		}}))
		require.NoError(t, err)
		defer k.Shutdown(context.Background())

		var pushErr, afterErr error
		task, err := k.Spawn(Spec{Name: "tiny", StackSize: 64}, func(task *Task) {
			assert.NoError(t, task.Push(48))
			task.Pop(48)
			pushErr = task.Push(128)
			afterErr = task.Sleep(time.Millisecond)
		})
		require.NoError(t, err)
		<-task.Done()

		assert.ErrorIs(t, pushErr, ErrStackOverflow)
		assert.ErrorIs(t, afterErr, ErrStackOverflow)
		assert.ErrorIs(t, task.Err(), ErrStackOverflow)
		assert.Equal(t, 48, task.StackPeak())
		assert.Equal(t, []string{"tiny"}, overflowed)
	})
}

func TestKernel_Watchdog(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var resetCore = -1
		config := DefaultConfig()
		config.Cores = 1
		config.Watchdog = WatchdogConfig{Enabled: true, Timeout: time.Second, FeedInterval: 100 * time.Millisecond}
		k, err := New(config, WithHooks(Hooks{OnWatchdog: func(core int, task *Task) {
			resetCore = core
		}}))
		require.NoError(t, err)
		defer k.Shutdown(context.Background())
		assert.Equal(t, 1, k.Count())

		started := time.Now()
		var loopErr error
		hog, err := k.Spawn(Spec{Name: "hog", Priority: 1}, func(task *Task) {
			for {
				if loopErr = task.Work(time.Millisecond); loopErr != nil {
					return
				}
			}
		})
		require.NoError(t, err)
		<-hog.Done()

		elapsed := time.Since(started)
		assert.ErrorIs(t, loopErr, ErrWatchdog)
		assert.ErrorIs(t, hog.Err(), ErrWatchdog)
		assert.GreaterOrEqual(t, elapsed, time.Second)
		assert.Less(t, elapsed, 1200*time.Millisecond)
		assert.Equal(t, 0, resetCore)
	})
}

func TestKernel_Shutdown(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		k := newTestKernel(t, 2)
		var errs []error
		var mu sync.Mutex
		for i := 0; i < 3; i++ {
			_, err := k.Spawn(Spec{Name: "looper", Priority: 1, Affinity: AnyCore}, func(task *Task) {
				for {
					if err := task.Sleep(10 * time.Millisecond); err != nil {
						mu.Lock()
						errs = append(errs, err)
						mu.Unlock()
						return
					}
				}
			})
			require.NoError(t, err)
		}
		time.Sleep(25 * time.Millisecond)
		require.NoError(t, k.Shutdown(context.Background()))
		assert.Equal(t, 0, k.Count())
		require.Len(t, errs, 3)
		for _, err := range errs {
			assert.True(t, errors.Is(err, ErrShutdown))
		}
		_, err := k.Spawn(Spec{Name: "late"}, func(task *Task) {})
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		description string
		mutate      func(c *Config)
		shouldError bool
	}{
		{description: "default", mutate: func(c *Config) {}},
		{description: "no cores", mutate: func(c *Config) { c.Cores = 0 }, shouldError: true},
		{description: "no quantum", mutate: func(c *Config) { c.Quantum = 0 }, shouldError: true},
		{description: "watchdog timeout below feed", mutate: func(c *Config) { c.Watchdog.Timeout = time.Millisecond }, shouldError: true},
		{description: "watchdog disabled ignores timing", mutate: func(c *Config) {
			c.Watchdog = WatchdogConfig{}
		}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			config := DefaultConfig()
			testCase.mutate(&config)
			err := config.Validate()
			if testCase.shouldError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTask_WorkTracksWallClock(t *testing.T) {
	k := newTestKernel(t, 1)
	defer k.Shutdown(context.Background())

	const work = 300 * time.Millisecond
	var elapsed time.Duration
	task, err := k.Spawn(Spec{Name: "busy"}, func(task *Task) {
		started := time.Now()
		assert.NoError(t, task.Work(work))
		elapsed = time.Since(started)
	})
	require.NoError(t, err)
	<-task.Done()

	assert.GreaterOrEqual(t, task.CPU(), work)
	assert.GreaterOrEqual(t, elapsed, work)
	assert.Less(t, elapsed, work+25*time.Millisecond)
}
