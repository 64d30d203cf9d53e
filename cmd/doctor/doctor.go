// Package doctor provides the "gsd doctor" command for checking system health.
package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/gsdkit/internal/app"
	"github.com/klytics/gsdkit/internal/audit"
	"github.com/klytics/gsdkit/internal/config"
	"github.com/klytics/gsdkit/internal/ingest"
	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/output"
	"github.com/klytics/gsdkit/internal/store"
)

// Check represents a single health check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message"`
}

// pingTimeout bounds the database check.
const pingTimeout = 5 * time.Second

// NewCommand creates the "doctor" command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, inputs and the database",
		Long:  "Run diagnostic checks to verify gsd is ready to ingest: config, raw workbooks, layouts, output directory and database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(cmd)
			if err != nil {
				return err
			}
			checks := RunChecks(cmd.Context(), env.Config)

			errCount := 0
			for _, c := range checks {
				if c.Status == "error" {
					errCount++
				}
			}
			var failure error
			if errCount > 0 {
				failure = fmt.Errorf("%d check(s) failed", errCount)
			}

			if env.JSON {
				if failure != nil {
					if err := output.PrintJSONError("doctor", failure, output.ExitUserError, checks); err != nil {
						return err
					}
					return output.Reported(output.ExitUserError, failure)
				}
				return output.PrintJSON("doctor", checks)
			}

			Print(cmd.OutOrStdout(), checks)
			return failure
		},
	}
}

// Print writes the checks with status icons and a tally.
func Print(w io.Writer, checks []Check) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintln(w, "GSD Doctor")
	fmt.Fprintln(w, "==========")
	fmt.Fprintln(w)

	okCount, warnCount, errCount := 0, 0, 0
	for _, c := range checks {
		var icon string
		switch c.Status {
		case "ok":
			icon = green("✓")
			okCount++
		case "warning":
			icon = yellow("!")
			warnCount++
		case "error":
			icon = red("✗")
			errCount++
		}
		fmt.Fprintf(w, "  %s %s: %s\n", icon, c.Name, c.Message)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)
}

// RunChecks inspects cfg and the environment it points at.
func RunChecks(ctx context.Context, cfg *config.Config) []Check {
	var checks []Check

	// Go runtime
	checks = append(checks, Check{
		Name:    "Go Runtime",
		Status:  "ok",
		Message: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	// Config file
	if _, err := os.Stat(config.Path()); err == nil {
		checks = append(checks, Check{Name: "Config File", Status: "ok", Message: config.Path()})
	} else {
		checks = append(checks, Check{
			Name:    "Config File",
			Status:  "warning",
			Message: fmt.Sprintf("%s not found — using defaults and GSD_* environment", config.Path()),
		})
	}

	// Config values. Raw dir and database are checked below.
	for _, issue := range cfg.Validate() {
		if issue.Key == "raw_dir" || issue.Key == "database.url" || issue.Key == "layouts" {
			continue
		}
		checks = append(checks, Check{Name: "Config " + issue.Key, Status: issue.Severity, Message: issue.Message})
	}

	checks = append(checks, checkRawDir(cfg))
	checks = append(checks, checkLayouts(cfg)...)
	checks = append(checks, checkOutputDir(cfg.OutputDir))
	checks = append(checks, checkDatabase(ctx, cfg))
	checks = append(checks, checkLedger(cfg))

	return checks
}

func checkRawDir(cfg *config.Config) Check {
	name := "Raw Workbooks"
	scan, err := ingest.ScanDir(cfg.RawDir, cfg.FilePattern, cfg.MinYear, cfg.MaxYear)
	if err != nil {
		return Check{Name: name, Status: "error", Message: err.Error()}
	}
	sources := scan.Sources
	if len(sources) == 0 {
		return Check{
			Name:    name,
			Status:  "warning",
			Message: fmt.Sprintf("no %q workbooks for %d-%d in %s", cfg.FilePattern, cfg.MinYear, cfg.MaxYear, cfg.RawDir),
		}
	}
	msg := fmt.Sprintf("%d workbook(s) in %s (FY%d-FY%d)", len(sources), cfg.RawDir, sources[0].Year, sources[len(sources)-1].Year)
	if len(scan.Skipped) > 0 {
		names := make([]string, len(scan.Skipped))
		for i, s := range scan.Skipped {
			names[i] = filepath.Base(s.Path)
		}
		return Check{
			Name:    name,
			Status:  "warning",
			Message: fmt.Sprintf("%s; %d skipped (no year or year outside %d-%d): %s", msg, len(scan.Skipped), cfg.MinYear, cfg.MaxYear, strings.Join(names, ", ")),
		}
	}
	return Check{Name: name, Status: "ok", Message: msg}
}

func checkLayouts(cfg *config.Config) []Check {
	var checks []Check
	for _, ref := range cfg.Layouts {
		l, err := layout.Load(ref)
		if err != nil {
			checks = append(checks, Check{Name: "Layout " + ref, Status: "error", Message: err.Error()})
			continue
		}
		checks = append(checks, Check{
			Name:    "Layout " + ref,
			Status:  "ok",
			Message: fmt.Sprintf("sheet %q rows %d-%d, %s classifier", l.Sheet, l.Rows.Start, l.Rows.End, l.Classifier.Mode),
		})
	}
	return checks
}

func checkOutputDir(dir string) Check {
	name := "Output Directory"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: name, Status: "error", Message: fmt.Sprintf("cannot create %s: %s", dir, err)}
	}
	probe, err := os.CreateTemp(dir, ".gsd-doctor-*")
	if err != nil {
		return Check{Name: name, Status: "error", Message: fmt.Sprintf("%s is not writable: %s", dir, err)}
	}
	probe.Close()
	os.Remove(probe.Name())
	return Check{Name: name, Status: "ok", Message: dir}
}

func checkDatabase(ctx context.Context, cfg *config.Config) Check {
	name := "Database"
	if cfg.Database.URL == "" {
		return Check{Name: name, Status: "warning", Message: "database.url not set — loading is disabled"}
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	db, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return Check{Name: name, Status: "error", Message: err.Error()}
	}
	defer db.Close()
	return Check{
		Name:    name,
		Status:  "ok",
		Message: fmt.Sprintf("%s → %s", config.MaskURL(cfg.Database.URL), store.QualifiedTable(cfg.Database.Schema, cfg.Database.Table)),
	}
}

func checkLedger(cfg *config.Config) Check {
	name := "Run Ledger"
	if !cfg.Ledger.Enabled {
		return Check{Name: name, Status: "ok", Message: "disabled"}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Ledger.Path), 0o755); err != nil {
		return Check{Name: name, Status: "warning", Message: fmt.Sprintf("cannot create %s: %s", filepath.Dir(cfg.Ledger.Path), err)}
	}
	size := audit.LogSize(cfg.Ledger.Path)
	if size == 0 {
		return Check{Name: name, Status: "ok", Message: cfg.Ledger.Path + " (empty)"}
	}
	return Check{Name: name, Status: "ok", Message: fmt.Sprintf("%s (%d bytes)", cfg.Ledger.Path, size)}
}
