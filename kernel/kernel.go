package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Kernel is a simulated preemptive multi-core scheduler.
type Kernel struct {
	config Config
	logger *slog.Logger
	hooks  Hooks

	mu       sync.Mutex
	cores    []*core
	tasks    map[int]*Task
	nextID   int
	seq      uint64
	closed   bool
	wg       sync.WaitGroup
	watchdog *watchdog
}

// Hooks are invoked on notable kernel events. They run on the affected
// task's goroutine or on the watchdog goroutine and must not block.
type Hooks struct {
	OnStackOverflow func(t *Task, requested int)
	OnWatchdog      func(core int, t *Task)
	OnExit          func(t *Task)
}

// core is one execution unit.
type core struct {
	id       int
	running  *Task
	ready    []*Task
	assigned int
	fedAt    time.Time
}

// peek returns the best ready task: highest effective priority, then the
// earliest to become ready.
func (c *core) peek() *Task {
	var best *Task
	for _, t := range c.ready {
		if best == nil || t.effective > best.effective ||
			(t.effective == best.effective && t.readySeq < best.readySeq) {
			best = t
		}
	}
	return best
}

func (c *core) remove(t *Task) bool {
	for i, candidate := range c.ready {
		if candidate == t {
			c.ready = append(c.ready[:i], c.ready[i+1:]...)
			return true
		}
	}
	return false
}

// New creates a kernel and, when the watchdog is enabled, its idle tasks.
func New(config Config, options ...Option) (*Kernel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	k := &Kernel{
		config: config,
		logger: slog.Default(),
		tasks:  make(map[int]*Task),
	}
	for _, opt := range options {
		opt(k)
	}
	now := time.Now()
	for i := 0; i < config.Cores; i++ {
		k.cores = append(k.cores, &core{id: i, fedAt: now})
	}
	if config.Watchdog.Enabled {
		for i := range k.cores {
			spec := Spec{Name: fmt.Sprintf("IDLE%d", i), Priority: IdlePriority, Affinity: i, system: true}
			if _, err := k.Spawn(spec, k.idle); err != nil {
				return nil, err
			}
		}
		k.watchdog = newWatchdog(k, config.Watchdog)
		go k.watchdog.run()
	}
	return k, nil
}

// Config returns the kernel configuration.
func (k *Kernel) Config() Config { return k.config }

// Cores returns the number of execution units.
func (k *Kernel) Cores() int { return len(k.cores) }

// Spawn creates a task and makes it ready on its core.
func (k *Kernel) Spawn(spec Spec, entry Entry) (*Task, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilEntry, spec.Name)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, fmt.Errorf("failed to spawn %s: %w", spec.Name, ErrClosed)
	}
	if len(k.tasks) >= k.config.MaxTasks {
		return nil, fmt.Errorf("failed to spawn %s with %d live tasks: %w", spec.Name, len(k.tasks), ErrTaskLimit)
	}
	stackSize := spec.StackSize
	if stackSize <= 0 {
		stackSize = k.config.DefaultStackSize
	}
	k.nextID++
	t := &Task{
		id:        k.nextID,
		name:      spec.Name,
		base:      spec.Priority,
		effective: spec.Priority,
		core:      k.placement(spec.Affinity),
		stackSize: stackSize,
		system:    spec.system,
		kernel:    k,
		grant:     make(chan struct{}, 1),
		killCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if t.name == "" {
		t.name = fmt.Sprintf("task%d", t.id)
	}
	k.tasks[t.id] = t
	k.cores[t.core].assigned++
	k.wg.Add(1)
	go k.run(t, entry)
	k.makeReady(t)
	k.logger.Debug("task spawned", "task", t.name, "priority", int(t.base), "core", t.core)
	return t, nil
}

func (k *Kernel) placement(affinity int) int {
	if affinity != AnyCore {
		if affinity < 0 {
			affinity = -affinity
		}
		return affinity % len(k.cores)
	}
	best := k.cores[0]
	for _, c := range k.cores[1:] {
		if c.assigned < best.assigned {
			best = c
		}
	}
	return best.id
}

func (k *Kernel) run(t *Task, entry Entry) {
	defer k.exit(t)
	if err := t.waitCore(); err != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			k.logger.Error("task panicked", "task", t.name, "panic", r)
			k.mu.Lock()
			t.err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
			k.mu.Unlock()
		}
	}()
	entry(t)
}

func (k *Kernel) exit(t *Task) {
	k.mu.Lock()
	c := k.cores[t.core]
	c.remove(t)
	if c.running == t {
		c.running = nil
	}
	for len(t.held) > 0 {
		m := t.held[0]
		k.logger.Warn("task exited holding mutex, releasing it", "task", t.name, "mutex", m.name)
		m.release()
	}
	if t.waitingOn != nil {
		t.waitingOn = nil
	}
	if t.killed && t.err == nil {
		t.err = t.cause
	}
	t.state = StateDeleted
	delete(k.tasks, t.id)
	c.assigned--
	k.dispatch(c)
	hook := k.hooks.OnExit
	k.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	close(t.done)
	k.wg.Done()
}

// Kill asks a task to terminate with cause (ErrKilled when nil). It returns
// false when the task already ended or was already killed.
func (k *Kernel) Kill(t *Task, cause error) bool {
	if cause == nil {
		cause = ErrKilled
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if t.killed || t.state == StateDeleted {
		return false
	}
	t.killed = true
	t.cause = cause
	close(t.killCh)
	return true
}

// Count returns the number of live tasks, idle tasks included.
func (k *Kernel) Count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.tasks)
}

// Tasks returns snapshots of all live tasks ordered by id.
func (k *Kernel) Tasks() []TaskInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	result := make([]TaskInfo, 0, len(k.tasks))
	for _, t := range k.tasks {
		result = append(result, t.info())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Running returns the name of the task owning core id, or "".
func (k *Kernel) Running(id int) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if id < 0 || id >= len(k.cores) || k.cores[id].running == nil {
		return ""
	}
	return k.cores[id].running.name
}

// Shutdown kills every task and waits for all of them to exit.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	tasks := make([]*Task, 0, len(k.tasks))
	for _, t := range k.tasks {
		tasks = append(tasks, t)
	}
	k.mu.Unlock()

	if k.watchdog != nil {
		k.watchdog.stop()
	}
	for _, t := range tasks {
		k.Kill(t, ErrShutdown)
	}
	done := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kernel shutdown: %w", ctx.Err())
	}
}

// enqueue appends t to the ready queue of c. Caller holds k.mu.
func (k *Kernel) enqueue(c *core, t *Task) {
	k.seq++
	t.readySeq = k.seq
	t.state = StateReady
	c.ready = append(c.ready, t)
}

// makeReady enqueues t on its core and dispatches. Caller holds k.mu.
func (k *Kernel) makeReady(t *Task) {
	c := k.cores[t.core]
	k.enqueue(c, t)
	k.dispatch(c)
}

// dispatch grants an idle core to its best ready task. Caller holds k.mu.
func (k *Kernel) dispatch(c *core) {
	if c.running != nil {
		return
	}
	next := c.peek()
	if next == nil {
		return
	}
	c.remove(next)
	c.running = next
	next.state = StateRunning
	select {
	case next.grant <- struct{}{}:
	default:
	}
}

// suspend takes the core away from t. Caller holds k.mu.
func (k *Kernel) suspend(t *Task, state State) {
	c := k.cores[t.core]
	t.state = state
	if c.running == t {
		c.running = nil
		k.dispatch(c)
	}
}

func (k *Kernel) stackOverflow(t *Task, requested int) error {
	err := fmt.Errorf("%w in task %s: %d of %d bytes", ErrStackOverflow, t.name, requested, t.stackSize)
	k.logger.Error("stack overflow", "task", t.name, "requested", requested, "budget", t.stackSize)
	if hook := k.hooks.OnStackOverflow; hook != nil {
		hook(t, requested)
	}
	k.Kill(t, err)
	return err
}

// idle feeds the watchdog whenever it gets its core.
func (k *Kernel) idle(t *Task) {
	for {
		k.mu.Lock()
		k.cores[t.core].fedAt = time.Now()
		k.mu.Unlock()
		if err := t.Sleep(k.config.Watchdog.FeedInterval); err != nil {
			return
		}
	}
}
