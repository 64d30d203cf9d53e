// Package cmd contains all CLI commands for the gsd binary.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/gsdkit/cmd/completion"
	cmdconfig "github.com/klytics/gsdkit/cmd/config"
	"github.com/klytics/gsdkit/cmd/doctor"
	"github.com/klytics/gsdkit/cmd/history"
	cmdingest "github.com/klytics/gsdkit/cmd/ingest"
	cmdlayout "github.com/klytics/gsdkit/cmd/layout"
	"github.com/klytics/gsdkit/cmd/load"
	"github.com/klytics/gsdkit/cmd/version"
	cmdwatch "github.com/klytics/gsdkit/cmd/watch"
	"github.com/klytics/gsdkit/internal/output"
)

var (
	jsonOutput bool
	verbose    bool
	noColor    bool
	configPath string
)

// NewRootCommand creates and returns the root cobra command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gsd",
		Short: "Normalize gas sendout report workbooks",
		Long: `gsdkit — yearly GSD report workbooks in, one long table out.

Extracts each layout's fixed data window from every "GSD REPORT FY<year>"
workbook, drops border and total rows, attributes every column to an entity,
pipeline and measure, and writes a single sorted (date, entity, measure)
table as CSV/XLSX, optionally loaded into Postgres.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor || os.Getenv("NO_COLOR") != "" {
				color.NoColor = true
			}
		},
	}

	// Global persistent flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable ANSI color output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.gsd/config.yaml)")

	// Register subcommands
	rootCmd.AddCommand(cmdingest.NewCommand())
	rootCmd.AddCommand(cmdlayout.NewCommand())
	rootCmd.AddCommand(load.NewCommand())
	rootCmd.AddCommand(cmdwatch.NewCommand())
	rootCmd.AddCommand(history.NewCommand())
	rootCmd.AddCommand(doctor.NewCommand())
	rootCmd.AddCommand(cmdconfig.NewCommand())
	rootCmd.AddCommand(completion.NewCommand(rootCmd))
	rootCmd.AddCommand(version.NewCommand())

	return rootCmd
}

// Execute runs the root command and exits with the status its error
// carries. Interrupts cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !output.IsReported(err) {
			fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Error:"), err)
		}
		stop()
		os.Exit(output.ExitCode(err))
	}
}
