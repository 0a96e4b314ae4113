// Package clock is the time seam for run records and events.
package clock

import "time"

// NowFunc is swapped by tests that need fixed timestamps.
var NowFunc = time.Now

// Now returns NowFunc().
func Now() time.Time { return NowFunc() }

// Since returns the time elapsed since t according to NowFunc.
func Since(t time.Time) time.Duration { return Now().Sub(t) }
