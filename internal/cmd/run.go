package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/viant/faultsim/model"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario>...",
	Short: "Run scenarios one after another and print their records as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScenarios,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	var ids []model.ScenarioID
	for _, arg := range args {
		id, err := model.ParseScenario(arg)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	ctx := cmd.Context()
	srv, err := newService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(srv) }()

	var runs []*model.Run
	for _, id := range ids {
		started, err := srv.Run(ctx, id)
		if err != nil && started == nil {
			return err
		}
		final, err := srv.Wait(ctx, started.ID)
		if err != nil {
			return fmt.Errorf("failed to wait for %s: %w", id, err)
		}
		runs = append(runs, final)
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(runs)
}
