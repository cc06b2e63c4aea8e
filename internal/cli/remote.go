package cli

import (
	"fmt"
	"strconv"

	"github.com/me/coopsched/internal/diag"
	"github.com/me/coopsched/pkg/dispatch"
	"github.com/me/coopsched/pkg/model"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the task table of a running coopsched server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			health, err := client.Health(ctx)
			if err != nil {
				return fmt.Errorf("get health: %w", err)
			}
			views, err := client.Tasks(ctx)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			infos, err := viewsToInfos(views)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Board: %s (up %s)\n", displayBoard(health.Board), health.Uptime)
			if err := diag.WriteTable(out, infos); err != nil {
				return err
			}
			return diag.WriteStats(out, health.Ticks, health.DroppedTicks, int(health.Dispatches))
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <task> <state|period|counter> <value>",
		Short: "Override a field of a task on a running coopsched server",
		Long: `Sets the state, period or counter of a task on a running server.
<task> is an index or a task name.`,
		Example: `  coopsched set led1 state suspended
  coopsched set 0 period 4`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, field, value := args[0], args[1], args[2]

			var body any
			switch field {
			case "state":
				body = model.StateUpdate{State: value}
			case "period", "counter":
				n, err := strconv.ParseUint(value, 10, 32)
				if err != nil {
					return fmt.Errorf("%s: %w", field, err)
				}
				if field == "period" {
					body = model.PeriodUpdate{Period: uint32(n)}
				} else {
					body = model.CounterUpdate{Counter: uint32(n)}
				}
			default:
				return fmt.Errorf("unknown field %q (want state, period or counter)", field)
			}

			view, err := client.SetField(cmd.Context(), ref, field, body)
			if err != nil {
				return fmt.Errorf("set %s: %w", field, err)
			}
			infos, err := viewsToInfos([]model.TaskView{*view})
			if err != nil {
				return err
			}
			return diag.WriteTask(cmd.OutOrStdout(), infos[0])
		},
	}
}

// viewsToInfos converts API task views back into registry snapshots for the
// diag writers.
func viewsToInfos(views []model.TaskView) ([]dispatch.Info, error) {
	infos := make([]dispatch.Info, len(views))
	for i, v := range views {
		st, err := dispatch.ParseState(v.State)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", v.Index, err)
		}
		infos[i] = dispatch.Info{Index: v.Index, Name: v.Name, State: st, Counter: v.Counter, Period: v.Period}
	}
	return infos, nil
}
