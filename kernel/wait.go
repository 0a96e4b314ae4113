package kernel

import "time"

// waiter is a task parked on a Mutex or an Event.
type waiter struct {
	task      *Task
	seq       uint64
	signal    chan struct{}
	signalled bool
}

func (k *Kernel) newWaiter(t *Task) *waiter {
	k.seq++
	return &waiter{task: t, seq: k.seq, signal: make(chan struct{}, 1)}
}

// notify wakes the waiter. Caller holds k.mu.
func (w *waiter) notify() {
	w.signalled = true
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func removeWaiter(waiters []*waiter, w *waiter) []*waiter {
	for i, candidate := range waiters {
		if candidate == w {
			return append(waiters[:i], waiters[i+1:]...)
		}
	}
	return waiters
}

// park blocks t until w is notified, timeout elapses or t is killed. It is
// called with k.mu held and returns with k.mu released. withdraw runs under
// k.mu when the wait ends without a notification.
func (k *Kernel) park(t *Task, w *waiter, timeout time.Duration, withdraw func()) bool {
	k.suspend(t, StateBlocked)
	k.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-w.signal:
	case <-expired:
	case <-t.killCh:
	}

	k.mu.Lock()
	signalled := w.signalled
	if !signalled {
		withdraw()
	}
	if t.killed {
		k.mu.Unlock()
		return signalled
	}
	k.makeReady(t)
	k.mu.Unlock()
	_ = t.waitCore()
	return signalled
}
