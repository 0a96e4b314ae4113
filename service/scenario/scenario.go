// Package scenario defines the contract fault scenarios implement and the
// Run handle that tracks the workers a scenario spawns.
package scenario

import (
	"errors"

	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/model"
)

// ErrBusy is returned by Start when the scenario primitives are still held
// by a previous run.
var ErrBusy = errors.New("scenario: primitives still held by a previous run")

// ErrStopped is the cause given to workers killed by Run.Stop.
var ErrStopped = errors.New("scenario: run stopped")

// Scheduler is the part of the kernel scenarios depend on.
type Scheduler interface {
	Spawn(spec kernel.Spec, entry kernel.Entry) (*kernel.Task, error)
	Kill(task *kernel.Task, cause error) bool
	NewMutex(name string, options ...kernel.MutexOption) *kernel.Mutex
	NewEvent(name string) *kernel.Event
	Count() int
}

// Scenario spawns the workers of one fault scenario. Start must not block:
// it spawns, seals the run and returns.
type Scenario interface {
	ID() model.ScenarioID
	Start(run *Run) error
}

var _ Scheduler = (*kernel.Kernel)(nil)
