// Package dispatcher turns console input into scenario runs. Lines are parsed
// into commands, queued, and executed by a single consumer loop.
package dispatcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/messaging"
	"github.com/viant/faultsim/service/messaging/memory"
)

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, id model.ScenarioID) (*model.Run, error)
	Report(ctx context.Context) (*model.Report, error)
}

// Service dispatches console commands to a Runner.
type Service struct {
	runner Runner
	queue  messaging.Queue[Command]
	logger *slog.Logger
	out    io.Writer
}

// New creates a dispatcher writing help text to out.
func New(runner Runner, out io.Writer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	config := memory.DefaultConfig()
	config.MaxRetries = 0
	config.DeadLetter = false
	return &Service{
		runner: runner,
		queue:  memory.NewQueue[Command](config),
		logger: logger,
		out:    out,
	}
}

// Submit parses line and queues its commands.
func (s *Service) Submit(ctx context.Context, line string) error {
	commands, err := Parse([]byte(line))
	if err != nil {
		return err
	}
	for i := range commands {
		if err = s.queue.Publish(ctx, &commands[i]); err != nil {
			return fmt.Errorf("failed to queue %q: %w", commands[i].Text, err)
		}
	}
	return nil
}

// Read submits every line of reader until EOF or ctx is done. Parse errors
// are logged and the line skipped.
func (s *Service) Read(ctx context.Context, reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.Submit(ctx, scanner.Text()); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			s.logger.Warn("ignoring input", "line", scanner.Text(), "error", err)
			fmt.Fprintln(s.out, "unknown command, press h for help")
		}
	}
	return scanner.Err()
}

// Start executes queued commands until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	for {
		message, err := s.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.Execute(ctx, *message.T())
		_ = message.Ack()
	}
}

// Execute runs one command.
func (s *Service) Execute(ctx context.Context, command Command) {
	switch command.Kind {
	case KindRun:
		run, err := s.runner.Run(ctx, command.Scenario)
		if err != nil {
			s.logger.Error("failed to start scenario", "scenario", string(command.Scenario), "error", err)
			return
		}
		s.logger.Info("scenario started", "scenario", string(command.Scenario), "run", run.ID)
	case KindReport:
		report, err := s.runner.Report(ctx)
		if err != nil {
			s.logger.Error("failed to build report", "error", err)
			return
		}
		s.logger.Info("system report", "report", report.Sequence, "runs", report.Runs, "tasks", report.Tasks,
			"active", report.Active, "available", report.Memory.Available)
	case KindHelp:
		fmt.Fprint(s.out, Usage())
	case KindUnsupported:
		s.logger.Warn("command is not supported by the simulator", "command", command.Text)
	}
}
