package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/me/coopsched/internal/trace"
	"github.com/me/coopsched/pkg/model"
	"github.com/spf13/cobra"
)

func newTraceCmd() *cobra.Command {
	var tracePath string

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Browse recorded dispatch traces",
	}
	cmd.PersistentFlags().StringVar(&tracePath, "trace", "coopsched-trace.db", "SQLite trace database")

	cmd.AddCommand(newTraceListCmd(&tracePath), newTraceShowCmd(&tracePath), newTraceExportCmd(&tracePath))
	return cmd
}

func newTraceListCmd(tracePath *string) *cobra.Command {
	var (
		limit int
		state string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List traced runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := model.ListOptions{Limit: limit}
			if state != "" {
				rs, ok := model.ParseRunState(state)
				if !ok {
					return fmt.Errorf("invalid --state %q (want running, finished or aborted)", state)
				}
				opts.State = rs.String()
			}

			st, err := openTrace(cmd.Context(), *tracePath)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, total, err := st.ListRuns(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tBOARD\tSTATE\tTICKS\tDISPATCHES\tSTARTED")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.Board, run.State,
					humanize.Comma(int64(run.Ticks)), humanize.Comma(int64(run.Dispatches)),
					humanize.Time(run.StartedAt))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if total > len(runs) {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	cmd.Flags().StringVar(&state, "state", "", "Only runs in this state (RUNNING, FINISHED, ABORTED)")
	return cmd
}

func newTraceShowCmd(tracePath *string) *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a traced run and its dispatch events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			st, err := openTrace(cmd.Context(), *tracePath)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return model.NewNotFoundError("run", id)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:      %s\n", run.ID)
			fmt.Fprintf(out, "  Board:  %s\n", run.Board)
			fmt.Fprintf(out, "  State:  %s\n", run.State)
			fmt.Fprintf(out, "  Tick:   %s\n", run.TickInterval)
			fmt.Fprintf(out, "  Ticks:  %s\n", humanize.Comma(int64(run.Ticks)))
			fmt.Fprintf(out, "  Start:  %s (%s)\n", run.StartedAt.Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
			if run.FinishedAt != nil {
				fmt.Fprintf(out, "  Took:   %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
			}

			events, total, err := st.ListEvents(cmd.Context(), id, model.ListOptions{Limit: limit, Offset: offset})
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			fmt.Fprintf(out, "  Events: %s\n\n", humanize.Comma(int64(total)))
			if len(events) == 0 {
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tTICK\tTASK\tNAME\tSTATE AFTER\tDURATION")
			for _, ev := range events {
				name := ev.TaskName
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\n",
					ev.Seq, ev.Tick, ev.TaskIndex, name, ev.StateAfter, ev.Duration)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if shown := offset + len(events); shown < total {
				fmt.Fprintf(out, "\n(%d-%d of %d shown)\n", offset+1, shown, total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum events to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many events")
	return cmd
}

func newTraceExportCmd(tracePath *string) *cobra.Command {
	var (
		outPath string
		s3URL   string
		s3Cfg   trace.S3Config
	)

	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a traced run as JSON lines to stdout, a file or S3",
		Example: `  coopsched trace export run_0f3c... --out run.jsonl
  coopsched trace export run_0f3c... --s3 s3://traces/blinky/ --s3-endpoint http://localhost:9000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			st, err := openTrace(cmd.Context(), *tracePath)
			if err != nil {
				return err
			}
			defer st.Close()

			if s3URL != "" {
				target, err := trace.ParseS3URL(s3URL, id)
				if err != nil {
					return err
				}
				up, err := trace.NewS3Uploader(cmd.Context(), s3Cfg)
				if err != nil {
					return err
				}
				n, err := trace.UploadRun(cmd.Context(), st, id, up, target)
				if err != nil {
					return err
				}
				logger.Info("trace exported", "run_id", id, "events", n,
					"bucket", target.Bucket, "key", target.Key)
				return nil
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer f.Close()
				out = f
			}
			n, err := trace.ExportRun(cmd.Context(), st, id, out)
			if err != nil {
				return err
			}
			logger.Debug("trace exported", "run_id", id, "events", n, "path", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write to this file instead of stdout")
	cmd.Flags().StringVar(&s3URL, "s3", "", "Upload to s3://bucket/key (a trailing / appends <run-id>.jsonl)")
	cmd.Flags().StringVar(&s3Cfg.Region, "s3-region", "", "AWS region (default from environment)")
	cmd.Flags().StringVar(&s3Cfg.Endpoint, "s3-endpoint", "", "Custom S3 endpoint, e.g. MinIO")
	return cmd
}
