// Package ingest provides the "gsd ingest" command.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cmdlayout "github.com/klytics/gsdkit/cmd/layout"
	"github.com/klytics/gsdkit/internal/app"
	"github.com/klytics/gsdkit/internal/audit"
	"github.com/klytics/gsdkit/internal/consolidate"
	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/metrics"
	"github.com/klytics/gsdkit/internal/output"
	"github.com/klytics/gsdkit/internal/pipeline"
	"github.com/klytics/gsdkit/internal/progress"
	"github.com/klytics/gsdkit/internal/store"
)

// Options are the ingest flags. Zero values defer to the configuration.
type Options struct {
	Layouts     []string
	Out         string
	Formats     []string
	Concurrency int
	DropMissing bool
	MinYear     int
	MaxYear     int
	Load        bool
	LoadMode    string
}

// AddFlags registers the ingest flags on cmd.
func AddFlags(cmd *cobra.Command, o *Options) {
	cmd.Flags().StringSliceVarP(&o.Layouts, "layout", "l", nil, "Layout name or descriptor file (repeatable; default from config)")
	cmd.Flags().StringVarP(&o.Out, "out", "o", "", "Output directory (default from config)")
	cmd.Flags().StringSliceVar(&o.Formats, "format", nil, "Output formats: csv, xlsx")
	cmd.Flags().IntVar(&o.Concurrency, "concurrency", 0, "Workbooks processed in parallel")
	cmd.Flags().BoolVar(&o.DropMissing, "drop-missing", false, "Drop records without a value")
	cmd.Flags().IntVar(&o.MinYear, "min-year", 0, "Earliest source year to include")
	cmd.Flags().IntVar(&o.MaxYear, "max-year", 0, "Latest source year to include")
	cmd.Flags().BoolVar(&o.Load, "load", false, "Load the consolidated records into Postgres")
	cmd.Flags().StringVar(&o.LoadMode, "load-mode", "", "Database load mode: append | replace")

	_ = cmd.RegisterFlagCompletionFunc("layout", cmdlayout.Complete)
	_ = cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{output.FormatCSV, output.FormatXLSX}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("load-mode", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{string(store.ModeAppend), string(store.ModeReplace)}, cobra.ShellCompDirectiveNoFileComp
	})
}

// NewCommand returns the ingest command.
func NewCommand() *cobra.Command {
	var o Options

	cmd := &cobra.Command{
		Use:   "ingest [raw-dir]",
		Short: "Normalize every report workbook into one long table",
		Long: `Discover the yearly GSD report workbooks, extract each layout's data window,
drop border and total rows, unpivot to one record per (date, entity, measure)
and write the consolidated CSV/XLSX outputs.

Exits 2 when a layout extracted no data at all.`,
		Example: `  gsd ingest
  gsd ingest data/raw_excel --layout lng-facilities --layout mr-stations
  gsd ingest --format csv --drop-missing --load --load-mode replace`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(cmd)
			if err != nil {
				return err
			}

			rawDir := ""
			if len(args) == 1 {
				rawDir = args[0]
			}
			p, layouts, closeFn, err := NewPipeline(cmd.Context(), env, rawDir, o)
			if err != nil {
				return err
			}
			defer closeFn()

			sum, runErr := p.Run(cmd.Context(), layouts)
			WriteMetrics(env, metrics.New(), sum, runErr)
			return Report(cmd, env, sum, runErr)
		},
	}

	AddFlags(cmd, &o)
	return cmd
}

// NewPipeline builds a pipeline from the configuration overlaid with the
// flags. The returned func releases the database connection, if any.
func NewPipeline(ctx context.Context, env *app.Env, rawDir string, o Options) (*pipeline.Pipeline, []*layout.Layout, func(), error) {
	cfg := env.Config
	noop := func() {}

	layouts, err := env.Layouts(o.Layouts)
	if err != nil {
		return nil, nil, noop, err
	}

	opts := pipeline.Options{
		RawDir:      firstString(rawDir, cfg.RawDir),
		Pattern:     cfg.FilePattern,
		MinYear:     firstInt(o.MinYear, cfg.MinYear),
		MaxYear:     firstInt(o.MaxYear, cfg.MaxYear),
		Concurrency: firstInt(o.Concurrency, cfg.Concurrency),
		DropMissing: o.DropMissing || cfg.DropMissing,
		OutputDir:   firstString(o.Out, cfg.OutputDir),
		Formats:     o.Formats,
	}
	if len(opts.Formats) == 0 {
		opts.Formats = cfg.Formats
	}
	opts.LoadMode, err = store.ParseMode(firstString(o.LoadMode, cfg.Database.Mode))
	if err != nil {
		return nil, nil, noop, err
	}

	p := &pipeline.Pipeline{
		Options: opts,
		Logger:  env.Logger,
		Command: "ingest",
		NewProgress: func(label string, total int) pipeline.Progress {
			return progress.New(label, total)
		},
	}
	if cfg.Ledger.Enabled {
		p.Ledger = audit.NewLedger(cfg.Ledger.Path, true)
	}

	closeFn := noop
	if o.Load {
		db, err := store.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, noop, output.WithCode(output.ExitSystemError, err)
		}
		loader, err := store.NewLoader(db, cfg.Database.Schema, cfg.Database.Table)
		if err != nil {
			db.Close()
			return nil, nil, noop, err
		}
		loader.Logger = env.Logger
		p.Loader = loader
		closeFn = func() { db.Close() }
	}

	return p, layouts, closeFn, nil
}

// WriteMetrics records the run in m and, when metrics.textfile is set,
// writes m to it. Failures are logged, never returned.
func WriteMetrics(env *app.Env, m *metrics.Metrics, sum *pipeline.Summary, runErr error) {
	m.Observe(sum, runErr)
	path := env.Config.Metrics.Textfile
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		env.Logger.Warn("metrics not written", "path", path, "error", err)
	}
}

// Report prints the run summary, as text or a --json envelope, and maps
// the outcome to an exit status.
func Report(cmd *cobra.Command, env *app.Env, sum *pipeline.Summary, runErr error) error {
	code, err := outcome(sum, runErr)

	if env.JSON {
		if err != nil {
			if encErr := output.PrintJSONError("ingest", err, code, sum); encErr != nil {
				return encErr
			}
			return output.Reported(code, err)
		}
		return output.PrintJSON("ingest", sum)
	}

	if sum != nil {
		PrintSummary(cmd.OutOrStdout(), sum)
	}
	return output.WithCode(code, err)
}

func outcome(sum *pipeline.Summary, runErr error) (int, error) {
	switch {
	case runErr != nil && (errors.Is(runErr, pipeline.ErrLoad) || errors.Is(runErr, context.Canceled)):
		return output.ExitSystemError, runErr
	case runErr != nil:
		return output.ExitUserError, runErr
	case sum == nil:
		return output.ExitOK, nil
	}
	if err := sum.Err(); err != nil {
		return output.ExitSystemError, err
	}
	return output.ExitOK, nil
}

// PrintSummary writes the per-layout, per-file report.
func PrintSummary(w io.Writer, sum *pipeline.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	for _, lr := range sum.Layouts {
		rep := lr.Report
		fmt.Fprintf(w, "%s — %d workbook(s): %s ok, %s failed, %d records\n",
			bold(lr.Layout), len(rep.Files), green(rep.Succeeded), failedCount(red, rep.Failed), rep.Records)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, f := range rep.Files {
			name := filepath.Base(f.Path)
			if f.Status == consolidate.StatusOK {
				fmt.Fprintf(tw, "  %s %s\t%d rows\t%d records\t%d missing\n", green("✓"), name, f.Rows, f.Records, f.Missing)
				continue
			}
			fmt.Fprintf(tw, "  %s %s\t%s\t%s\n", red("✗"), name, f.Reason, f.Error)
		}
		tw.Flush()

		if rep.Dropped > 0 {
			fmt.Fprintf(w, "  %s %d record(s) without a value dropped\n", yellow("!"), rep.Dropped)
		}
		for _, path := range lr.Outputs {
			fmt.Fprintf(w, "  → %s\n", path)
		}
		if lr.Err != nil {
			fmt.Fprintf(w, "  %s %s\n", red("✗"), lr.Error)
		}
		if lr.Loaded > 0 {
			fmt.Fprintf(w, "  → loaded %d row(s)\n", lr.Loaded)
		}
		fmt.Fprintln(w)
	}
}

func failedCount(red func(a ...interface{}) string, n int) string {
	if n == 0 {
		return "0"
	}
	return red(n)
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
