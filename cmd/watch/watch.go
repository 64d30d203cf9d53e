// Package watch provides the "gsd watch" command.
package watch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cmdingest "github.com/klytics/gsdkit/cmd/ingest"
	"github.com/klytics/gsdkit/internal/app"
	"github.com/klytics/gsdkit/internal/metrics"
	"github.com/klytics/gsdkit/internal/output"
	"github.com/klytics/gsdkit/internal/server"
	w "github.com/klytics/gsdkit/internal/watch"
)

// NewCommand creates the "watch" command.
func NewCommand() *cobra.Command {
	var (
		o        cmdingest.Options
		debounce time.Duration
		initial  bool
		addr     string
	)

	cmd := &cobra.Command{
		Use:   "watch [raw-dir]",
		Short: "Re-run ingestion whenever a report workbook changes",
		Long: `Watch the raw workbook directory and re-run a full ingestion each time a
report workbook is created or saved. Bursts of writes to the same file are
debounced. Office lock files (~$...) are ignored.

With --addr (or watch.addr) the process also serves /healthz, /metrics and
/runs/last over HTTP.

Example:
  gsd watch
  gsd watch data/raw_excel --layout lng-facilities --debounce 5s
  gsd watch --addr :9108`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(cmd)
			if err != nil {
				return err
			}

			rawDir := env.Config.RawDir
			if len(args) == 1 {
				rawDir = args[0]
			}
			if debounce == 0 {
				debounce = env.Config.Watch.Debounce
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, layouts, closeFn, err := cmdingest.NewPipeline(ctx, env, rawDir, o)
			if err != nil {
				return err
			}
			defer closeFn()
			p.Command = "watch"

			m := metrics.New()
			status := &server.Status{}
			ingestOnce := func(ctx context.Context) error {
				sum, runErr := p.Run(ctx, layouts)
				cmdingest.WriteMetrics(env, m, sum, runErr)
				status.Set(sum, runErr)
				return cmdingest.Report(cmd, env, sum, runErr)
			}

			if addr == "" {
				addr = env.Config.Watch.Addr
			}
			if addr != "" {
				srv := server.New(addr, m.Registry, status, env.Logger)
				go func() {
					if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						env.Logger.Error("http server failed", "addr", addr, "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
			}

			if initial {
				if err := ingestOnce(ctx); err != nil && !output.IsReported(err) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
				}
			}

			watcher, err := w.New(w.Config{
				Dir:      rawDir,
				Pattern:  env.Config.FilePattern,
				Debounce: debounce,
			})
			if err != nil {
				return err
			}
			watcher.Logger = env.Logger
			watcher.Handler = func(ctx context.Context, path string) error {
				env.Logger.Info("workbook changed, re-ingesting", "file", filepath.Base(path))
				return ingestOnce(ctx)
			}

			if !env.JSON {
				fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for %s\n", rawDir, env.Config.FilePattern)
				fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")
			}
			return watcher.Start(ctx)
		},
	}

	cmdingest.AddFlags(cmd, &o)
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before re-ingesting (default from config)")
	cmd.Flags().BoolVar(&initial, "initial", false, "Run one ingestion before watching")
	cmd.Flags().StringVar(&addr, "addr", "", "Serve health, metrics and last-run status on this address (default from config)")

	return cmd
}
