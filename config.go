package faultsim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/faultsim/kernel"
	"github.com/viant/faultsim/service/scenario/deadlock"
	"github.com/viant/faultsim/service/scenario/inversion"
	"github.com/viant/faultsim/service/scenario/race"
	"github.com/viant/faultsim/service/scenario/stack"
	"github.com/viant/faultsim/service/scenario/starvation"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the harness configuration.
// Fields left out of a loaded document keep their DefaultConfig values.
type Config struct {
	Kernel     kernel.Config     `json:"kernel" yaml:"kernel"`
	Race       race.Config       `json:"race" yaml:"race"`
	Deadlock   deadlock.Config   `json:"deadlock" yaml:"deadlock"`
	Inversion  inversion.Config  `json:"inversion" yaml:"inversion"`
	Starvation starvation.Config `json:"starvation" yaml:"starvation"`
	Stack      stack.Config      `json:"stack" yaml:"stack"`
	Report     ReportConfig      `json:"report" yaml:"report"`
	Journal    JournalConfig     `json:"journal" yaml:"journal"`
}

// ReportConfig controls the periodic status report.
type ReportConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
	// LowMemoryThreshold flags reports whose available memory falls under it,
	// in bytes; zero disables the check.
	LowMemoryThreshold uint64 `json:"lowMemoryThreshold" yaml:"lowMemoryThreshold"`
}

// JournalConfig locates the completed run journal; an empty URL disables it.
type JournalConfig struct {
	URL string `json:"url" yaml:"url"`
}

// DefaultConfig returns the package defaults of every component.
func DefaultConfig() *Config {
	return &Config{
		Kernel:     kernel.DefaultConfig(),
		Race:       race.DefaultConfig(),
		Deadlock:   deadlock.DefaultConfig(),
		Inversion:  inversion.DefaultConfig(),
		Starvation: starvation.DefaultConfig(),
		Stack:      stack.DefaultConfig(),
		Report: ReportConfig{
			Interval:           10 * time.Second,
			LowMemoryThreshold: 1 << 20,
		},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, validate := range []func() error{
		c.Kernel.Validate,
		c.Race.Validate,
		c.Deadlock.Validate,
		c.Inversion.Validate,
		c.Starvation.Validate,
		c.Stack.Validate,
	} {
		if err := validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Report.Interval <= 0 {
		errs = append(errs, fmt.Errorf("report.interval must be positive, got %s", c.Report.Interval))
	}
	if c.Starvation.Affinity >= c.Kernel.Cores || c.Inversion.Affinity >= c.Kernel.Cores {
		errs = append(errs, fmt.Errorf("scenario affinity must address one of %d cores", c.Kernel.Cores))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML document from URL over DefaultConfig.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return ret, nil
}
