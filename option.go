package faultsim

import (
	"log/slog"

	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/dao"
	"github.com/viant/faultsim/service/event"
	"github.com/viant/faultsim/service/reporter"
	"github.com/viant/faultsim/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises a Service.
type Option func(s *Service)

// WithConfig replaces the default configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithLogger sets the logger shared by the kernel, scenarios and listeners.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRunStore replaces the in-memory run store. Reports read live counters
// only from a store that keeps the saved record itself.
func WithRunStore(runs dao.Service[string, model.Run]) Option {
	return func(s *Service) {
		s.runs = runs
	}
}

// WithJournal sets the store that receives completed runs. It takes
// precedence over Config.Journal.URL.
func WithJournal(journal dao.Service[string, model.Run]) Option {
	return func(s *Service) {
		s.journal = journal
	}
}

// WithEventService sets the event service.
func WithEventService(service *event.Service) Option {
	return func(s *Service) {
		s.events = service
	}
}

// WithSampler sets the memory sampler used by Report.
func WithSampler(sampler *reporter.Sampler) Option {
	return func(s *Service) {
		s.sampler = sampler
	}
}

// WithTracing configures OpenTelemetry tracing. If outputFile is empty the
// stdout exporter is used; otherwise spans are written to the file.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		if err := tracing.Init(serviceName, serviceVersion, outputFile); err != nil {
			s.logger.Warn("failed to initialise tracing", "error", err)
		}
	}
}

// WithTracingExporter configures OpenTelemetry tracing with a custom exporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		if err := tracing.InitWithExporter(serviceName, serviceVersion, exporter); err != nil {
			s.logger.Warn("failed to initialise tracing", "error", err)
		}
	}
}
