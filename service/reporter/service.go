// Package reporter periodically logs the orchestrator status report.
package reporter

import (
	"context"
	"log/slog"
	"time"

	"github.com/viant/faultsim/model"
)

// Source produces status reports.
type Source interface {
	Report(ctx context.Context) (*model.Report, error)
}

// Service logs a report every interval.
type Service struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
}

func New(source Source, interval time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, interval: interval, logger: logger}
}

// Start logs reports until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Log(ctx)
		}
	}
}

// Log fetches one report and logs it.
func (s *Service) Log(ctx context.Context) {
	report, err := s.source.Report(ctx)
	if err != nil {
		s.logger.Error("failed to build report", "error", err)
		return
	}
	s.logger.Info("system report",
		"report", report.Sequence,
		"uptime", report.Uptime.Round(time.Second),
		"runs", report.Runs,
		"tasks", report.Tasks,
		"active", report.Active,
		"heapAlloc", report.Memory.HeapAlloc,
		"available", report.Memory.Available,
		"minAvailable", report.Memory.MinAvailable,
	)
	if report.Memory.LowMemory {
		s.logger.Warn("low memory", "available", report.Memory.Available)
	}
	if last := report.Last; last != nil && last.Outcome != nil {
		s.logger.Info("last run", "run", last.ID, "scenario", string(last.Scenario), "state", string(last.State),
			"reproduced", last.Outcome.Reproduced, "signal", last.Outcome.Signal)
	}
}
