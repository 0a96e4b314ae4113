package kernel

import "time"

// watchdog resets tasks that keep a core away from its idle task for longer
// than the configured timeout.
type watchdog struct {
	kernel  *Kernel
	config  WatchdogConfig
	stopCh  chan struct{}
	stopped chan struct{}
}

type watchdogVictim struct {
	core int
	task *Task
}

func newWatchdog(k *Kernel, config WatchdogConfig) *watchdog {
	return &watchdog{
		kernel:  k,
		config:  config,
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (w *watchdog) run() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.config.FeedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case now := <-ticker.C:
			w.check(now)
		}
	}
}

func (w *watchdog) check(now time.Time) {
	k := w.kernel
	var victims []watchdogVictim
	k.mu.Lock()
	for _, c := range k.cores {
		if now.Sub(c.fedAt) < w.config.Timeout {
			continue
		}
		c.fedAt = now
		if t := c.running; t != nil && !t.system {
			victims = append(victims, watchdogVictim{core: c.id, task: t})
		}
	}
	k.mu.Unlock()

	for _, victim := range victims {
		k.logger.Error("task watchdog got triggered", "core", victim.core, "task", victim.task.name, "timeout", w.config.Timeout)
		if hook := k.hooks.OnWatchdog; hook != nil {
			hook(victim.core, victim.task)
		}
		k.Kill(victim.task, ErrWatchdog)
	}
}

func (w *watchdog) stop() {
	close(w.stopCh)
	<-w.stopped
}
