package faultsim_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/faultsim"
	"github.com/viant/faultsim/kernel"
)

func TestLoadConfig(t *testing.T) {
	testCases := []struct {
		description string
		document    string
		expectErr   bool
		check       func(t *testing.T, config *faultsim.Config)
	}{
		{
			description: "overrides keep defaults",
			document: `
kernel:
  cores: 4
  watchdog:
    timeout: 2s
inversion:
  protocol: inheritance
report:
  interval: 1m
journal:
  url: mem://localhost/faultsim/journal
`,
			check: func(t *testing.T, config *faultsim.Config) {
				assert.Equal(t, 4, config.Kernel.Cores)
				assert.Equal(t, 2*time.Second, config.Kernel.Watchdog.Timeout)
				assert.Equal(t, 100*time.Millisecond, config.Kernel.Watchdog.FeedInterval)
				assert.True(t, config.Kernel.Watchdog.Enabled)
				assert.Equal(t, kernel.ProtocolInheritance, config.Inversion.Protocol)
				assert.Equal(t, time.Minute, config.Report.Interval)
				assert.Equal(t, 3, config.Race.Workers)
				assert.Equal(t, "mem://localhost/faultsim/journal", config.Journal.URL)
			},
		},
		{
			description: "invalid deadlock delays",
			document: `
deadlock:
  firstDelay: 200ms
  secondDelay: 100ms
`,
			expectErr: true,
		},
		{
			description: "malformed document",
			document:    "kernel: [",
			expectErr:   true,
		},
	}

	ctx := context.Background()
	fs := afs.New()
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			URL := "mem://localhost/faultsim/" + t.Name() + "/config.yaml"
			require.NoError(t, fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader([]byte(testCase.document))))
			config, err := faultsim.LoadConfig(ctx, URL)
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			testCase.check(t, config)
		})
	}

	_, err := faultsim.LoadConfig(ctx, "mem://localhost/faultsim/missing.yaml")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		description string
		mutate      func(c *faultsim.Config)
		expectErr   bool
	}{
		{description: "defaults", mutate: func(c *faultsim.Config) {}},
		{description: "nil config", mutate: nil},
		{description: "zero report interval", mutate: func(c *faultsim.Config) { c.Report.Interval = 0 }, expectErr: true},
		{description: "affinity beyond cores", mutate: func(c *faultsim.Config) { c.Starvation.Affinity = 2 }, expectErr: true},
		{description: "bad race workers", mutate: func(c *faultsim.Config) { c.Race.Workers = 0 }, expectErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			var config *faultsim.Config
			if testCase.mutate != nil {
				config = faultsim.DefaultConfig()
				testCase.mutate(config)
			}
			err := config.Validate()
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
