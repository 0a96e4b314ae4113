package dispatcher

import (
	"fmt"
	"strings"

	"github.com/viant/faultsim/model"
	"github.com/viant/parsly"
)

// Kind classifies a console command.
type Kind string

const (
	KindRun         Kind = "run"
	KindReport      Kind = "report"
	KindHelp        Kind = "help"
	KindUnsupported Kind = "unsupported"
)

// Command is one parsed console instruction.
type Command struct {
	Kind     Kind             `json:"kind"`
	Scenario model.ScenarioID `json:"scenario,omitempty"`
	Text     string           `json:"text"`
}

var letters = map[byte]Command{
	'r': {Kind: KindRun, Scenario: model.ScenarioRace},
	'd': {Kind: KindRun, Scenario: model.ScenarioDeadlock},
	'p': {Kind: KindRun, Scenario: model.ScenarioInversion},
	'w': {Kind: KindRun, Scenario: model.ScenarioStarvation},
	's': {Kind: KindRun, Scenario: model.ScenarioStack},
	'i': {Kind: KindReport},
	'h': {Kind: KindHelp},
	'?': {Kind: KindHelp},
	'm': {Kind: KindUnsupported},
	'c': {Kind: KindUnsupported},
}

var words = map[string]Command{
	"report": {Kind: KindReport},
	"info":   {Kind: KindReport},
	"help":   {Kind: KindHelp},
	"memory": {Kind: KindUnsupported},
	"crash":  {Kind: KindUnsupported},
}

// Parse splits a console line into commands. Words are separated by
// whitespace, ',' or ';'. A word naming a scenario or a command is taken as
// one command; any other word is read letter by letter.
func Parse(input []byte) ([]Command, error) {
	cursor := parsly.NewCursor("", input, 0)
	var result []Command
	for {
		matched := cursor.MatchAny(whitespaceToken, separatorToken, wordToken)
		switch matched.Code {
		case whitespaceCode, separatorCode:
			continue
		case wordCode:
			commands, err := resolve(matched.Text(cursor))
			if err != nil {
				return nil, err
			}
			result = append(result, commands...)
		case parsly.EOF:
			return result, nil
		default:
			return nil, cursor.NewError(wordToken, separatorToken)
		}
	}
}

func resolve(word string) ([]Command, error) {
	lower := strings.ToLower(word)
	if len(lower) > 1 {
		if id, err := model.ParseScenario(lower); err == nil {
			return []Command{{Kind: KindRun, Scenario: id, Text: word}}, nil
		}
		if command, ok := words[lower]; ok {
			command.Text = word
			return []Command{command}, nil
		}
	}
	result := make([]Command, 0, len(lower))
	for i := 0; i < len(lower); i++ {
		command, ok := letters[lower[i]]
		if !ok {
			return nil, fmt.Errorf("unknown command %q in %q", string(word[i]), word)
		}
		command.Text = string(word[i])
		result = append(result, command)
	}
	return result, nil
}

// Usage describes the console commands.
func Usage() string {
	builder := &strings.Builder{}
	builder.WriteString("commands (combine letters or separate with spaces, ',' or ';'):\n")
	for _, line := range []struct{ key, description string }{
		{"r", "race condition on a shared counter"},
		{"d", "deadlock between two locks"},
		{"p", "priority inversion"},
		{"w", "starvation until the watchdog resets the task"},
		{"s", "stack overflow"},
		{"i", "system report"},
		{"h", "this help"},
		{"m", "memory corruption (unsupported)"},
		{"c", "manual crash (unsupported)"},
	} {
		fmt.Fprintf(builder, "  %s  %s\n", line.key, line.description)
	}
	builder.WriteString("scenario names and aliases are accepted too, e.g. \"deadlock\" or \"stack-overflow\"\n")
	return builder.String()
}
