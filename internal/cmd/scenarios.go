package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/viant/faultsim/model"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List scenario ids and their aliases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, id := range model.Scenarios {
			aliases := id.Aliases()
			if len(aliases) == 0 {
				fmt.Fprintln(out, id)
				continue
			}
			fmt.Fprintf(out, "%s (%s)\n", id, strings.Join(aliases, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scenariosCmd)
}
