package kernel

import "time"

// Priority orders tasks; a higher value preempts a lower one.
type Priority int

// IdlePriority is the priority of the per-core idle tasks.
const IdlePriority Priority = 0

// AnyCore lets Spawn place a task on the least loaded core.
const AnyCore = -1

// Forever makes a blocking call wait without a timeout.
const Forever time.Duration = -1

// State is the scheduling state of a task.
type State string

const (
	StateReady     State = "ready"
	StateRunning   State = "running"
	StateSuspended State = "suspended"
	StateBlocked   State = "blocked"
	StateDeleted   State = "deleted"
)
