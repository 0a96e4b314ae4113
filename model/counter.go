package model

import "go.uber.org/atomic"

// Counter is a shared integer exposed only through separate load and store
// calls. A read-modify-write built from them is not atomic, which is what the
// unsafe path of the race scenario relies on.
type Counter struct {
	value atomic.Int64
}

func (c *Counter) Load() int64 { return c.value.Load() }

func (c *Counter) Store(v int64) { c.value.Store(v) }

// Reset zeroes the counter.
func (c *Counter) Reset() { c.value.Store(0) }
