package cli

import (
	"fmt"

	"github.com/me/coopsched/internal/config"
	"github.com/me/coopsched/internal/diag"
	"github.com/me/coopsched/internal/sim"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <board.yaml>",
		Short: "Check a board file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := config.LoadBoard(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: board %s (%d tasks, tick %s, %d pins)\n",
				displayBoard(board.Name), len(board.Tasks), board.Tick, board.Pins)
			return nil
		},
	}
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <board.yaml>",
		Short: "Print the task table a board registers, before any tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := config.LoadBoard(args[0])
			if err != nil {
				return err
			}
			s, err := sim.New(cmd.Context(), board, sim.Options{Logger: logger})
			if err != nil {
				return err
			}
			return diag.WriteTable(cmd.OutOrStdout(), s.Registry.Snapshot())
		},
	}
}

func displayBoard(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}
