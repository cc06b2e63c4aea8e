// Package diag renders human-readable dumps of the task table.
package diag

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/me/coopsched/pkg/dispatch"
	"github.com/me/coopsched/pkg/model"
)

// WriteTask writes a single-line description of one task.
func WriteTask(w io.Writer, info dispatch.Info) error {
	_, err := fmt.Fprintf(w, "task %d %s: state=%s counter=%d period=%d\n",
		info.Index, displayName(info.Name), info.State, info.Counter, info.Period)
	return err
}

// WriteTable writes every task as an aligned table followed by a per-state
// summary line.
func WriteTable(w io.Writer, infos []dispatch.Info) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tSTATE\tCOUNTER\tPERIOD")
	for _, info := range infos {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n",
			info.Index, displayName(info.Name), info.State, info.Counter, info.Period)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	sum := model.ComputeTaskSummary(infos)
	_, err := fmt.Fprintf(w, "%s: %d blocked, %d ready, %d suspended\n",
		pluralTasks(sum.Total), sum.Blocked, sum.Ready, sum.Suspended)
	return err
}

// WriteStats writes the counters kept by a running loop.
func WriteStats(w io.Writer, ticks, dropped uint64, dispatches int) error {
	_, err := fmt.Fprintf(w, "%s ticks, %s dispatches, %s dropped ticks\n",
		humanize.Comma(int64(ticks)), humanize.Comma(int64(dispatches)), humanize.Comma(int64(dropped)))
	return err
}

func displayName(name string) string {
	if name == "" {
		return "-"
	}
	return name
}

func pluralTasks(n int) string {
	if n == 1 {
		return "1 task"
	}
	return humanize.Comma(int64(n)) + " tasks"
}
