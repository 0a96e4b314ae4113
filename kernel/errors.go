package kernel

import "errors"

var (
	// ErrClosed is returned by Spawn once the kernel has been shut down.
	ErrClosed = errors.New("kernel: closed")

	// ErrTaskLimit is returned by Spawn when MaxTasks tasks are alive.
	ErrTaskLimit = errors.New("kernel: task limit reached")

	// ErrNilEntry is returned by Spawn when no entry function is supplied.
	ErrNilEntry = errors.New("kernel: nil entry")

	// ErrKilled is the default cause reported to a killed task.
	ErrKilled = errors.New("kernel: task killed")

	// ErrShutdown is the cause reported to tasks killed by Shutdown.
	ErrShutdown = errors.New("kernel: shutdown")

	// ErrWatchdog is the cause reported to a task reset by the watchdog.
	ErrWatchdog = errors.New("kernel: watchdog reset")

	// ErrStackOverflow is reported when a task exceeds its stack budget.
	ErrStackOverflow = errors.New("kernel: stack overflow")

	// ErrTaskPanic wraps a value recovered from a panicking entry.
	ErrTaskPanic = errors.New("kernel: task panicked")

	// ErrNotOwner is returned when a task releases a mutex it does not hold.
	ErrNotOwner = errors.New("kernel: mutex not held by caller")
)
