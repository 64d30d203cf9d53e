// Package load provides the "gsd load" command.
package load

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klytics/gsdkit/internal/app"
	"github.com/klytics/gsdkit/internal/output"
	"github.com/klytics/gsdkit/internal/progress"
	"github.com/klytics/gsdkit/internal/store"
)

// Result is the --json payload of a load.
type Result struct {
	File   string `json:"file"`
	Table  string `json:"table"`
	Mode   string `json:"mode"`
	Loaded int64  `json:"loaded"`
}

// NewCommand returns the load command.
func NewCommand() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "load <consolidated.csv>",
		Short: "Load a consolidated CSV into Postgres",
		Long: `Read a consolidated CSV written by "gsd ingest" and insert its records into
the configured table (database.schema / database.table). The table must
already exist. Replace mode deletes the existing rows in the same
transaction.`,
		Example: `  gsd load data/cleaned/LNG_Facilities_long_consolidated.csv
  gsd load out.csv --mode replace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(cmd)
			if err != nil {
				return err
			}
			cfg := env.Config

			m, err := store.ParseMode(firstNonEmpty(mode, cfg.Database.Mode))
			if err != nil {
				return err
			}

			records, err := output.ReadCSVFile(args[0])
			if err != nil {
				return err
			}

			db, err := store.Connect(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return output.WithCode(output.ExitSystemError, err)
			}
			defer db.Close()

			loader, err := store.NewLoader(db, cfg.Database.Schema, cfg.Database.Table)
			if err != nil {
				return err
			}
			loader.Logger = env.Logger

			table := store.QualifiedTable(cfg.Database.Schema, cfg.Database.Table)
			spin := progress.NewSpinner(fmt.Sprintf("Loading %d records into %s", len(records), table))
			spin.Start()
			n, err := loader.Load(cmd.Context(), records, m)
			if err != nil {
				spin.Stop("load failed")
				return output.WithCode(output.ExitSystemError, err)
			}
			spin.Stop(fmt.Sprintf("Loaded %d records", n))

			if env.JSON {
				return output.PrintJSON("load", Result{File: args[0], Table: table, Mode: string(m), Loaded: n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d record(s) from %s into %s (%s)\n", n, args[0], table, m)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Load mode: append | replace (default from config)")
	return cmd
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
