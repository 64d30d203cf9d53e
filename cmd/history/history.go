// Package history provides the "gsd history" command for viewing the run
// ledger.
package history

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/gsdkit/internal/app"
	"github.com/klytics/gsdkit/internal/audit"
	"github.com/klytics/gsdkit/internal/output"
)

// NewCommand creates the "history" command.
func NewCommand() *cobra.Command {
	var (
		last   int
		layout string
		since  string
		failed bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past ingestion runs",
		Long:  "Show ingestion runs recorded in the run ledger (ledger.path).",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(cmd)
			if err != nil {
				return err
			}
			path := env.Config.Ledger.Path

			entries, err := audit.ReadEntries(path)
			if err != nil {
				return fmt.Errorf("could not read run ledger %s: %w", path, err)
			}

			filter := audit.Filter{Layout: layout, FailedOnly: failed, Limit: last}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date %q — use YYYY-MM-DD", since)
				}
				filter.Since = t
			}
			filtered := audit.FilterEntries(entries, filter)

			if env.JSON {
				return output.PrintJSON("history", filtered)
			}

			out := cmd.OutOrStdout()
			if len(filtered) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			fmt.Fprintf(out, "Run History — %d Runs\n", len(filtered))
			fmt.Fprintf(out, "File: %s\n\n", path)

			red := color.New(color.FgRed).SprintFunc()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "TIMESTAMP\tRUN\tLAYOUT\tFILES\tOK\tFAILED\tROWS\tDURATION\n")
			for _, e := range filtered {
				failedCol := fmt.Sprintf("%d", e.Failed)
				if e.Failed > 0 || e.Error != "" {
					failedCol = red(failedCol)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%d\t%s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04:05"),
					shortID(e.RunID), e.Layout, e.Files, e.Succeeded, failedCol, e.Rows, formatDuration(e.DurationMs))
			}
			tw.Flush()
			return nil
		},
	}

	cmd.Flags().IntVar(&last, "last", 20, "Show last N runs")
	cmd.Flags().StringVar(&layout, "layout", "", "Filter by layout name")
	cmd.Flags().StringVar(&since, "since", "", "Show runs since date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only runs with failed workbooks or errors")

	cmd.AddCommand(newClearCmd())
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the run ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(cmd)
			if err != nil {
				return err
			}
			path := env.Config.Ledger.Path
			if err := audit.Clear(path); err != nil {
				return fmt.Errorf("could not clear %s: %w", path, err)
			}
			if env.JSON {
				return output.PrintJSON("history clear", map[string]string{"cleared": path})
			}
			fmt.Fprintf(os.Stdout, "Run ledger cleared: %s\n", path)
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(ms int64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%dms", ms)
}
