package criteria

import (
	"github.com/viant/faultsim/service/dao"
)

const (
	State    = "State"
	Scenario = "Scenario"
)

// FilterByState reports whether state satisfies the State parameters.
func FilterByState(state string, parameters []*dao.Parameter) bool {
	return Match(State, state, parameters)
}

// FilterByScenario reports whether scenario satisfies the Scenario parameters.
func FilterByScenario(scenario string, parameters []*dao.Parameter) bool {
	return Match(Scenario, scenario, parameters)
}

// Match reports whether actual satisfies every parameter called name.
// Parameters with other names are ignored.
func Match(name, actual string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != name {
			continue
		}
		switch expected := parameter.Value.(type) {
		case string:
			if actual != expected {
				return false
			}
		case []string:
			if !contains(expected, actual) {
				return false
			}
		}
	}
	return true
}

func contains(values []string, actual string) bool {
	for _, value := range values {
		if value == actual {
			return true
		}
	}
	return false
}
