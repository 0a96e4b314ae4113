package kernel

import (
	"fmt"
	"time"
)

// Protocol selects how a Mutex adjusts the priority of its holder.
type Protocol string

const (
	// ProtocolNone never boosts the holder.
	ProtocolNone Protocol = "none"
	// ProtocolInheritance runs the holder at the highest waiter priority.
	ProtocolInheritance Protocol = "inheritance"
	// ProtocolCeiling runs the holder at the mutex ceiling priority.
	ProtocolCeiling Protocol = "ceiling"
)

// maxBoostDepth bounds priority propagation along chains of blocked holders.
const maxBoostDepth = 8

// Valid reports whether p names a known protocol; empty means none.
func (p Protocol) Valid() bool {
	switch p {
	case "", ProtocolNone, ProtocolInheritance, ProtocolCeiling:
		return true
	}
	return false
}

// MutexOption customises a Mutex.
type MutexOption func(m *Mutex)

// WithProtocol sets the priority protocol.
func WithProtocol(protocol Protocol) MutexOption {
	return func(m *Mutex) {
		if protocol == "" {
			protocol = ProtocolNone
		}
		m.protocol = protocol
	}
}

// WithCeiling sets the ceiling priority used by ProtocolCeiling.
func WithCeiling(ceiling Priority) MutexOption {
	return func(m *Mutex) {
		m.ceiling = ceiling
	}
}

// Mutex is a non reentrant binary ownership token. Ownership is handed
// directly to the best waiter on release: highest effective priority first,
// then arrival order.
type Mutex struct {
	name     string
	kernel   *Kernel
	protocol Protocol
	ceiling  Priority

	holder  *Task
	waiters []*waiter
	stats   MutexStats
}

// MutexStats counts mutex activity.
type MutexStats struct {
	Acquisitions int `json:"acquisitions"`
	Contentions  int `json:"contentions"`
	Timeouts     int `json:"timeouts"`
}

// NewMutex creates a free mutex.
func (k *Kernel) NewMutex(name string, options ...MutexOption) *Mutex {
	m := &Mutex{name: name, kernel: k, protocol: ProtocolNone}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *Mutex) Name() string { return m.name }

func (m *Mutex) Protocol() Protocol { return m.protocol }

// Acquire takes the mutex for t, waiting up to timeout. A zero timeout only
// tries; Forever waits until the mutex is granted or t is killed.
func (m *Mutex) Acquire(t *Task, timeout time.Duration) bool {
	k := m.kernel
	k.mu.Lock()
	if t.killed {
		k.mu.Unlock()
		return false
	}
	if m.holder == nil {
		m.grant(t)
		k.mu.Unlock()
		return true
	}
	m.stats.Contentions++
	if timeout == 0 {
		k.mu.Unlock()
		return false
	}
	w := k.newWaiter(t)
	m.waiters = append(m.waiters, w)
	t.waitingOn = m
	k.reprioritize(m.holder, 0)
	granted := k.park(t, w, timeout, func() {
		m.waiters = removeWaiter(m.waiters, w)
		t.waitingOn = nil
		m.stats.Timeouts++
		k.reprioritize(m.holder, 0)
	})
	if granted && t.Killed() {
		_ = m.releaseBy(t)
		return false
	}
	return granted
}

// Release frees the mutex. Only the holder may release it.
func (m *Mutex) Release(t *Task) error {
	if err := m.releaseBy(t); err != nil {
		return err
	}
	// a woken waiter of higher priority takes the core right away
	_ = t.checkpoint()
	return nil
}

func (m *Mutex) releaseBy(t *Task) error {
	k := m.kernel
	k.mu.Lock()
	defer k.mu.Unlock()
	if m.holder != t {
		return fmt.Errorf("%w: %s released by %s", ErrNotOwner, m.name, t.name)
	}
	m.release()
	return nil
}

// Holder returns the name of the holding task, or "" when free.
func (m *Mutex) Holder() string {
	m.kernel.mu.Lock()
	defer m.kernel.mu.Unlock()
	if m.holder == nil {
		return ""
	}
	return m.holder.name
}

// IsFree reports whether nobody holds the mutex.
func (m *Mutex) IsFree() bool {
	m.kernel.mu.Lock()
	defer m.kernel.mu.Unlock()
	return m.holder == nil
}

// Waiters returns the number of blocked waiters.
func (m *Mutex) Waiters() int {
	m.kernel.mu.Lock()
	defer m.kernel.mu.Unlock()
	return len(m.waiters)
}

func (m *Mutex) Stats() MutexStats {
	m.kernel.mu.Lock()
	defer m.kernel.mu.Unlock()
	return m.stats
}

// grant makes t the holder. Caller holds k.mu.
func (m *Mutex) grant(t *Task) {
	m.holder = t
	m.stats.Acquisitions++
	t.held = append(t.held, m)
	m.kernel.reprioritize(t, 0)
}

// release hands the mutex to the next waiter. Caller holds k.mu.
func (m *Mutex) release() {
	previous := m.holder
	for i, held := range previous.held {
		if held == m {
			previous.held = append(previous.held[:i], previous.held[i+1:]...)
			break
		}
	}
	m.holder = nil
	if w := m.next(); w != nil {
		m.waiters = removeWaiter(m.waiters, w)
		w.task.waitingOn = nil
		m.grant(w.task)
		w.notify()
	}
	m.kernel.reprioritize(previous, 0)
}

func (m *Mutex) next() *waiter {
	var best *waiter
	for _, w := range m.waiters {
		if best == nil || w.task.effective > best.task.effective ||
			(w.task.effective == best.task.effective && w.seq < best.seq) {
			best = w
		}
	}
	return best
}

// reprioritize recomputes the effective priority of t from the mutexes it
// holds and propagates a change to the holder t is blocked on. Caller holds k.mu.
func (k *Kernel) reprioritize(t *Task, depth int) {
	if t == nil || depth > maxBoostDepth {
		return
	}
	priority := t.base
	for _, m := range t.held {
		switch m.protocol {
		case ProtocolInheritance:
			for _, w := range m.waiters {
				if w.task.effective > priority {
					priority = w.task.effective
				}
			}
		case ProtocolCeiling:
			if m.ceiling > priority {
				priority = m.ceiling
			}
		}
	}
	if priority == t.effective {
		return
	}
	k.logger.Debug("task priority changed", "task", t.name, "from", int(t.effective), "to", int(priority))
	t.effective = priority
	if t.waitingOn != nil {
		k.reprioritize(t.waitingOn.holder, depth+1)
	}
}
