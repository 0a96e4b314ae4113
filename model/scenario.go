package model

import (
	"fmt"
	"sort"
	"strings"
)

// ScenarioID identifies a fault scenario.
type ScenarioID string

const (
	ScenarioRace       ScenarioID = "race"
	ScenarioDeadlock   ScenarioID = "deadlock"
	ScenarioInversion  ScenarioID = "priority-inversion"
	ScenarioStarvation ScenarioID = "starvation"
	ScenarioStack      ScenarioID = "stack-overflow"
)

// Scenarios lists every scenario in dispatch order.
var Scenarios = []ScenarioID{ScenarioRace, ScenarioDeadlock, ScenarioInversion, ScenarioStarvation, ScenarioStack}

var aliases = map[string]ScenarioID{
	"race":               ScenarioRace,
	"race-condition":     ScenarioRace,
	"deadlock":           ScenarioDeadlock,
	"inversion":          ScenarioInversion,
	"priority-inversion": ScenarioInversion,
	"starvation":         ScenarioStarvation,
	"watchdog":           ScenarioStarvation,
	"infinite-loop":      ScenarioStarvation,
	"stack":              ScenarioStack,
	"stack-overflow":     ScenarioStack,
}

// Aliases returns the names accepted for id.
func (id ScenarioID) Aliases() []string {
	var result []string
	for alias, candidate := range aliases {
		if candidate == id && alias != string(id) {
			result = append(result, alias)
		}
	}
	sort.Strings(result)
	return result
}

// ParseScenario resolves a scenario name or alias, case insensitively.
func ParseScenario(name string) (ScenarioID, error) {
	id, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown scenario: %q", name)
	}
	return id, nil
}
