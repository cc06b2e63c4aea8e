package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/coopsched/internal/config"
	"github.com/me/coopsched/internal/diag"
	"github.com/me/coopsched/internal/sim"
	"github.com/me/coopsched/internal/trace"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		ticks        uint64
		tick         time.Duration
		tracePath    string
		scriptBudget time.Duration
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "run <board.yaml>",
		Short: "Run a board on the simulated tick source",
		Long: `Loads a board, registers its tasks and drives them until interrupted or
until --ticks ticks have fired. The final task table is printed to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := config.LoadBoard(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := sim.Options{
				Logger:       logger,
				TickInterval: tick,
				MaxTicks:     ticks,
				ScriptBudget: scriptBudget,
			}
			if tracePath != "" {
				st, err := openTrace(ctx, tracePath)
				if err != nil {
					return err
				}
				defer st.Close()
				opts.Trace = st
			}

			s, err := sim.New(ctx, board, opts)
			if err != nil {
				return err
			}
			if err := s.Run(ctx); err != nil {
				return err
			}
			if quiet {
				return nil
			}

			out := cmd.OutOrStdout()
			if err := diag.WriteTable(out, s.Registry.Snapshot()); err != nil {
				return err
			}
			st := s.Loop.Stats()
			if err := diag.WriteStats(out, st.Ticks, st.DroppedTicks, int(st.Dispatches)); err != nil {
				return err
			}
			if id := s.RunID(); id != "" {
				fmt.Fprintf(out, "trace run: %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&ticks, "ticks", 0, "Stop after N ticks (0 runs until interrupted)")
	cmd.Flags().DurationVar(&tick, "tick", 0, "Tick interval (overrides the board)")
	cmd.Flags().StringVar(&tracePath, "trace", "", "SQLite database to record the dispatch trace in")
	cmd.Flags().DurationVar(&scriptBudget, "script-budget", 100*time.Millisecond, "Per-run time limit for script tasks (0 disables)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the final task table")

	return cmd
}

// openTrace opens and migrates the trace database at path.
func openTrace(ctx context.Context, path string) (*trace.SQLiteStore, error) {
	st, err := trace.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate trace db: %w", err)
	}
	return st, nil
}
