package idgen

import "github.com/google/uuid"

// NewFunc generates an identifier.
var NewFunc = func() string { return uuid.New().String() }

// New returns a fresh identifier.
func New() string { return NewFunc() }

// Short returns the first eight characters of id, used in log lines.
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
