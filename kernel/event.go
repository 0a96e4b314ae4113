package kernel

import "time"

// Event is a manual reset flag tasks can block on.
type Event struct {
	name    string
	kernel  *Kernel
	set     bool
	waiters []*waiter
}

// NewEvent creates a cleared event.
func (k *Kernel) NewEvent(name string) *Event {
	return &Event{name: name, kernel: k}
}

func (e *Event) Name() string { return e.name }

// Set raises the flag and wakes every waiter. It may be called from any goroutine.
func (e *Event) Set() {
	e.kernel.mu.Lock()
	defer e.kernel.mu.Unlock()
	e.set = true
	for _, w := range e.waiters {
		w.notify()
	}
	e.waiters = nil
}

// Reset clears the flag.
func (e *Event) Reset() {
	e.kernel.mu.Lock()
	defer e.kernel.mu.Unlock()
	e.set = false
}

func (e *Event) IsSet() bool {
	e.kernel.mu.Lock()
	defer e.kernel.mu.Unlock()
	return e.set
}

// Wait blocks t until the flag is raised or timeout elapses.
func (e *Event) Wait(t *Task, timeout time.Duration) bool {
	k := e.kernel
	k.mu.Lock()
	if t.killed {
		k.mu.Unlock()
		return false
	}
	if e.set {
		k.mu.Unlock()
		return true
	}
	if timeout == 0 {
		k.mu.Unlock()
		return false
	}
	w := k.newWaiter(t)
	e.waiters = append(e.waiters, w)
	signalled := k.park(t, w, timeout, func() {
		e.waiters = removeWaiter(e.waiters, w)
	})
	return signalled && !t.Killed()
}
