// Package model holds the records shared by the scenario runtime, the
// orchestrator and its collaborators: scenario identifiers, run records with
// their per-worker state and results, status reports and the shared counters
// the race scenario mutates.
package model
