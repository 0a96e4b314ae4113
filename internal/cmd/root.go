package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/viant/faultsim"
)

var rootCmd = &cobra.Command{
	Use:   "faultsim",
	Short: "Fault injection harness for a simulated real-time kernel",
	Long: `faultsim reproduces concurrency faults on demand on a simulated
preemptive multi-core kernel: lost updates, deadlock, priority inversion,
starvation reset by the watchdog and stack overflow.`,
	SilenceUsage: true,
}

var (
	configURL  string
	logLevel   string
	journalURL string
	traceFile  string
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configURL, "config", "c", "", "YAML config URL (file path, mem://, s3://, gs://)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&journalURL, "journal", "", "location receiving one JSON document per completed run")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "write OpenTelemetry spans to this file")
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
	})), nil
}

// newService builds the orchestrator from the persistent flags.
func newService(ctx context.Context) (*faultsim.Service, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	config := faultsim.DefaultConfig()
	if configURL != "" {
		if config, err = faultsim.LoadConfig(ctx, configURL); err != nil {
			return nil, err
		}
	}
	if journalURL != "" {
		config.Journal.URL = journalURL
	}
	options := []faultsim.Option{faultsim.WithConfig(config), faultsim.WithLogger(logger)}
	if traceFile != "" {
		options = append(options, faultsim.WithTracing("faultsim", "0.1.0", traceFile))
	}
	return faultsim.New(ctx, options...)
}

func shutdown(srv *faultsim.Service) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
