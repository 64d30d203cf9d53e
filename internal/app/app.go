// Package app builds the per-command environment: configuration, logger
// and output mode, resolved from the root command's persistent flags.
package app

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/klytics/gsdkit/internal/config"
	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/logging"
	"github.com/klytics/gsdkit/internal/progress"
)

// Env is what every command needs.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	JSON   bool
}

// Setup loads the configuration named by --config and builds a logger that
// honours --verbose. Logs go to the command's stderr.
func Setup(cmd *cobra.Command) (*Env, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOut, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	if jsonOut {
		progress.Disable()
	}

	return &Env{
		Config: cfg,
		Logger: logging.New(level, cfg.Log.Format, cmd.ErrOrStderr()),
		JSON:   jsonOut,
	}, nil
}

// Layouts resolves refs, or the configured layouts when refs is empty.
func (e *Env) Layouts(refs []string) ([]*layout.Layout, error) {
	if len(refs) == 0 {
		refs = e.Config.Layouts
	}
	return layout.LoadAll(refs)
}
