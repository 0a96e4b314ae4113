package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/viant/faultsim/model"
	"github.com/viant/faultsim/service/event"
	"github.com/viant/faultsim/service/dispatcher"
	"github.com/viant/faultsim/service/reporter"
	"golang.org/x/sync/errgroup"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Read single key commands from stdin and report status periodically",
	Args:  cobra.NoArgs,
	RunE:  runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	srv, err := newService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(srv) }()

	logEvents(srv.Events(), slog.Default())
	out := cmd.OutOrStdout()
	fmt.Fprint(out, dispatcher.Usage())
	commands := dispatcher.New(srv, out, nil)
	reports := reporter.New(srv, srv.Config().Report.Interval, nil)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return commands.Start(ctx) })
	group.Go(func() error { return reports.Start(ctx) })
	group.Go(func() error {
		// stdin EOF ends the console
		err := commands.Read(ctx, cmd.InOrStdin())
		stop()
		return err
	})
	if err = group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// logEvents drains run and kernel events into logger.
func logEvents(events *event.Service, logger *slog.Logger) {
	event.SetListenerOf[*model.Run](events, func(e *event.Event[*model.Run]) {
		attrs := []any{"run", e.Context.RunID, "scenario", e.Context.Scenario}
		if e.Context.ElapsedMs > 0 {
			attrs = append(attrs, "elapsedMs", e.Context.ElapsedMs)
		}
		if outcome := e.Data.Outcome; outcome != nil {
			attrs = append(attrs, "reproduced", outcome.Reproduced, "signal", outcome.Signal)
		}
		logger.Info(e.Context.EventType, attrs...)
	})
	event.SetListenerOf[model.Fault](events, func(e *event.Event[model.Fault]) {
		logger.Warn(e.Context.EventType, "task", e.Data.Task, "core", e.Data.Core, "detail", e.Data.Detail)
	})
}
