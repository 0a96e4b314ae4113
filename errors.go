package faultsim

import "errors"

var (
	// ErrUnknownScenario is returned by Run for an unregistered scenario id.
	ErrUnknownScenario = errors.New("faultsim: unknown scenario")

	// ErrScenarioBusy is returned by Run while a run of the same scenario is
	// still active.
	ErrScenarioBusy = errors.New("faultsim: scenario busy")
)
