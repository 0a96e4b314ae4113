package kernel

import (
	"fmt"
	"time"
)

// Config controls the simulated scheduler.
type Config struct {
	// Cores is the number of execution units.
	Cores int `json:"cores" yaml:"cores"`

	// MaxTasks bounds the number of live tasks, idle tasks included.
	MaxTasks int `json:"maxTasks" yaml:"maxTasks"`

	// Quantum is the unit of simulated CPU work between preemption checks.
	Quantum time.Duration `json:"quantum" yaml:"quantum"`

	// DefaultStackSize applies to specs without a stack budget, in bytes.
	DefaultStackSize int `json:"defaultStackSize" yaml:"defaultStackSize"`

	Watchdog WatchdogConfig `json:"watchdog" yaml:"watchdog"`
}

// WatchdogConfig controls the per-core task watchdog.
type WatchdogConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	FeedInterval time.Duration `json:"feedInterval" yaml:"feedInterval"`
}

// DefaultConfig returns a dual core kernel with the task watchdog enabled.
func DefaultConfig() Config {
	return Config{
		Cores:            2,
		MaxTasks:         32,
		Quantum:          time.Millisecond,
		DefaultStackSize: 2048,
		Watchdog: WatchdogConfig{
			Enabled:      true,
			Timeout:      10 * time.Second,
			FeedInterval: 100 * time.Millisecond,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Cores <= 0 {
		return fmt.Errorf("kernel.cores must be positive, got %d", c.Cores)
	}
	if c.MaxTasks <= 0 {
		return fmt.Errorf("kernel.maxTasks must be positive, got %d", c.MaxTasks)
	}
	if c.Quantum <= 0 {
		return fmt.Errorf("kernel.quantum must be positive, got %s", c.Quantum)
	}
	if c.DefaultStackSize <= 0 {
		return fmt.Errorf("kernel.defaultStackSize must be positive, got %d", c.DefaultStackSize)
	}
	if c.Watchdog.Enabled {
		if c.Watchdog.FeedInterval <= 0 {
			return fmt.Errorf("kernel.watchdog.feedInterval must be positive, got %s", c.Watchdog.FeedInterval)
		}
		if c.Watchdog.Timeout <= c.Watchdog.FeedInterval {
			return fmt.Errorf("kernel.watchdog.timeout %s must exceed feedInterval %s", c.Watchdog.Timeout, c.Watchdog.FeedInterval)
		}
	}
	return nil
}
