package kernel

import (
	"time"

	"go.uber.org/atomic"
)

// Spec describes a task to spawn.
type Spec struct {
	Name     string
	Priority Priority
	// StackSize is the stack budget in bytes; zero selects Config.DefaultStackSize.
	StackSize int
	// Affinity pins the task to a core; AnyCore picks the least loaded one.
	Affinity int

	system bool
}

// Entry is the body of a task. It runs on the task's own goroutine.
type Entry func(t *Task)

// Task is a schedulable unit of execution. Work, Sleep, Yield, Push and Pop
// may only be called from the task's own entry.
type Task struct {
	id        int
	name      string
	base      Priority
	core      int
	stackSize int
	system    bool
	kernel    *Kernel

	// guarded by kernel.mu
	effective   Priority
	state       State
	readySeq    uint64
	held        []*Mutex
	waitingOn   *Mutex
	killed      bool
	cause       error
	err         error
	preemptions int

	cpu       atomic.Duration
	stackUsed atomic.Int64
	stackPeak atomic.Int64

	grant  chan struct{}
	killCh chan struct{}
	done   chan struct{}
}

// TaskInfo is a point in time snapshot of a task.
type TaskInfo struct {
	ID          int           `json:"id"`
	Name        string        `json:"name"`
	Priority    Priority      `json:"priority"`
	Effective   Priority      `json:"effective"`
	Core        int           `json:"core"`
	State       State         `json:"state"`
	System      bool          `json:"system,omitempty"`
	CPU         time.Duration `json:"cpu"`
	StackSize   int           `json:"stackSize"`
	StackPeak   int           `json:"stackPeak"`
	Preemptions int           `json:"preemptions"`
}

func (t *Task) ID() int { return t.id }

func (t *Task) Name() string { return t.name }

// Priority returns the base priority.
func (t *Task) Priority() Priority { return t.base }

func (t *Task) Core() int { return t.core }

// StackSize returns the stack budget in bytes.
func (t *Task) StackSize() int { return t.stackSize }

// StackPeak returns the highest stack usage observed.
func (t *Task) StackPeak() int { return int(t.stackPeak.Load()) }

// CPU returns the simulated CPU time consumed by Work.
func (t *Task) CPU() time.Duration { return t.cpu.Load() }

// Done is closed once the task has exited and released its core.
func (t *Task) Done() <-chan struct{} { return t.done }

// EffectivePriority returns the priority including any inherited boost.
func (t *Task) EffectivePriority() Priority {
	t.kernel.mu.Lock()
	defer t.kernel.mu.Unlock()
	return t.effective
}

func (t *Task) State() State {
	t.kernel.mu.Lock()
	defer t.kernel.mu.Unlock()
	return t.state
}

// Killed reports whether the task has been asked to terminate.
func (t *Task) Killed() bool {
	t.kernel.mu.Lock()
	defer t.kernel.mu.Unlock()
	return t.killed
}

// Err returns why the task ended: nil after a normal return, the kill cause,
// or an ErrTaskPanic wrapper.
func (t *Task) Err() error {
	t.kernel.mu.Lock()
	defer t.kernel.mu.Unlock()
	return t.err
}

// Info returns a snapshot of the task.
func (t *Task) Info() TaskInfo {
	t.kernel.mu.Lock()
	defer t.kernel.mu.Unlock()
	return t.info()
}

func (t *Task) info() TaskInfo {
	return TaskInfo{
		ID:          t.id,
		Name:        t.name,
		Priority:    t.base,
		Effective:   t.effective,
		Core:        t.core,
		State:       t.state,
		System:      t.system,
		CPU:         t.cpu.Load(),
		StackSize:   t.stackSize,
		StackPeak:   int(t.stackPeak.Load()),
		Preemptions: t.preemptions,
	}
}

// Work consumes d of simulated CPU time while holding the core. It checks for
// preemption and kill requests every quantum. Each slice is charged with the
// time actually slept, so timer overshoot does not accumulate.
func (t *Task) Work(d time.Duration) error {
	quantum := t.kernel.config.Quantum
	for d > 0 {
		if err := t.checkpoint(); err != nil {
			return err
		}
		slice := min(quantum, d)
		started := time.Now()
		time.Sleep(slice)
		spent := max(time.Since(started), slice)
		t.cpu.Add(spent)
		d -= spent
	}
	return t.checkpoint()
}

// Sleep releases the core for d. A non positive duration yields.
func (t *Task) Sleep(d time.Duration) error {
	if d <= 0 {
		return t.Yield()
	}
	k := t.kernel
	k.mu.Lock()
	if t.killed {
		k.mu.Unlock()
		return t.cause
	}
	k.suspend(t, StateSuspended)
	k.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-t.killCh:
		return t.abandon()
	}

	k.mu.Lock()
	k.makeReady(t)
	k.mu.Unlock()
	return t.waitCore()
}

// Yield moves the task behind ready tasks of equal priority.
func (t *Task) Yield() error {
	k := t.kernel
	k.mu.Lock()
	if t.killed {
		k.mu.Unlock()
		return t.cause
	}
	c := k.cores[t.core]
	if c.running == t {
		c.running = nil
	}
	k.enqueue(c, t)
	k.dispatch(c)
	k.mu.Unlock()
	return t.waitCore()
}

// Push accounts a stack frame of the given size.
func (t *Task) Push(frame int) error {
	used := t.stackUsed.Load() + int64(frame)
	if used > int64(t.stackSize) {
		return t.kernel.stackOverflow(t, int(used))
	}
	t.stackUsed.Store(used)
	if used > t.stackPeak.Load() {
		t.stackPeak.Store(used)
	}
	return nil
}

// Pop releases a stack frame pushed earlier.
func (t *Task) Pop(frame int) {
	used := t.stackUsed.Load() - int64(frame)
	if used < 0 {
		used = 0
	}
	t.stackUsed.Store(used)
}

// checkpoint yields the core when a strictly higher priority task is ready.
func (t *Task) checkpoint() error {
	k := t.kernel
	k.mu.Lock()
	if t.killed {
		k.mu.Unlock()
		return t.cause
	}
	c := k.cores[t.core]
	next := c.peek()
	if c.running != t || next == nil || next.effective <= t.effective {
		k.mu.Unlock()
		return nil
	}
	c.running = nil
	t.preemptions++
	k.enqueue(c, t)
	k.dispatch(c)
	k.mu.Unlock()
	return t.waitCore()
}

// waitCore blocks until the core is granted or the task is killed.
func (t *Task) waitCore() error {
	select {
	case <-t.grant:
		return nil
	case <-t.killCh:
		return t.abandon()
	}
}

// abandon drops any claim on the core after a kill.
func (t *Task) abandon() error {
	k := t.kernel
	k.mu.Lock()
	defer k.mu.Unlock()
	c := k.cores[t.core]
	c.remove(t)
	if c.running == t {
		c.running = nil
		k.dispatch(c)
	}
	return t.cause
}
