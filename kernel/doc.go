// Package kernel simulates a preemptive, priority-based, multi-core task
// scheduler on top of goroutines.
//
// Every task runs on its own goroutine but may only execute while it owns
// the core it is pinned to. Cores hand ownership to the ready task with the
// highest effective priority; tasks give it back when they sleep, block on a
// Mutex or Event, or exit. A running task is preempted at the next Work
// quantum once a strictly higher priority task becomes ready on its core.
//
//	k, _ := kernel.New(kernel.DefaultConfig())
//	defer k.Shutdown(ctx)
//	lock := k.NewMutex("shared")
//	k.Spawn(kernel.Spec{Name: "worker", Priority: 2, Affinity: 0}, func(t *kernel.Task) {
//		if lock.Acquire(t, time.Second) {
//			_ = t.Work(10 * time.Millisecond)
//			_ = lock.Release(t)
//		}
//	})
package kernel
