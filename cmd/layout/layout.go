// Package layout provides the "gsd layout" commands for inspecting and
// checking workbook layout descriptors.
package layout

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/klytics/gsdkit/internal/app"
	"github.com/klytics/gsdkit/internal/classify"
	"github.com/klytics/gsdkit/internal/formats/xlsx"
	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/output"
	"github.com/klytics/gsdkit/internal/record"
)

// Summary is the listing entry of one layout.
type Summary struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Sheet       string `json:"sheet"`
	Rows        string `json:"rows"`
	Mode        string `json:"mode"`
	Columns     int    `json:"columns"`
	Description string `json:"description,omitempty"`
}

// Classification is the attribute assigned to one column.
type Classification struct {
	Column string `json:"column"`
	classify.Attribute
	Error string `json:"error,omitempty"`
}

// NewCommand returns the layout command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Inspect workbook layouts",
		Long:  "List the built-in layouts, print a descriptor, check a descriptor file, or preview column classification.",
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newClassifyCommand())

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			var summaries []Summary
			for _, name := range layout.Builtins() {
				l, err := layout.Builtin(name)
				if err != nil {
					return output.WithCode(output.ExitSystemError, fmt.Errorf("built-in layout %s is broken: %w", name, err))
				}
				summaries = append(summaries, summarize(l))
			}

			if jsonOut {
				return output.PrintJSON("layout list", summaries)
			}
			printList(cmd.OutOrStdout(), summaries)
			return nil
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "show <name|file>",
		Short:             "Print a layout descriptor",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: Complete,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := layout.Load(args[0])
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return output.PrintJSON("layout show", l)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(l)
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check layout descriptor files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			green := color.New(color.FgGreen).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			out := cmd.OutOrStdout()

			failed := 0
			for _, path := range args {
				l, err := layout.LoadFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "  %s %s: %s\n", red("✗"), path, err)
					continue
				}
				fmt.Fprintf(out, "  %s %s: %s v%d, %s mode, %d value column(s)\n",
					green("✓"), path, l.Name, l.Version, l.Classifier.Mode, len(l.ValueColumns()))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d layout(s) invalid", failed, len(args))
			}
			return nil
		},
	}
}

func newClassifyCommand() *cobra.Command {
	var workbook string

	cmd := &cobra.Command{
		Use:   "classify <name|file> [column...]",
		Short: "Preview the attribute assigned to each column",
		Long: `Run a layout's classifier over column names and print the entity,
pipeline and measure each one maps to. With --workbook the columns are read
from the workbook's data window; without columns or a workbook, the layout's
declared value columns are used.`,
		Example: `  gsd layout classify mr-stations "TETCO LINDEN" "TRANSCO 2"
  gsd layout classify mr-stations --workbook "data/raw_excel/GSD REPORT FY2016.xlsx"`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: Complete,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(cmd)
			if err != nil {
				return err
			}
			l, err := layout.Load(args[0])
			if err != nil {
				return err
			}
			c, err := classify.FromLayout(l, env.Logger)
			if err != nil {
				return err
			}

			columns := args[1:]
			if workbook != "" {
				cols, err := workbookColumns(workbook, l)
				if err != nil {
					return err
				}
				columns = append(columns, cols...)
			}
			if len(columns) == 0 {
				columns = l.ValueColumns()
			}
			if len(columns) == 0 {
				return errors.New("no columns to classify — pass column names or --workbook")
			}

			results := make([]Classification, 0, len(columns))
			unmapped := 0
			for _, col := range columns {
				res := Classification{Column: col}
				attr, err := c.Classify(col)
				if err != nil {
					unmapped++
					res.Error = err.Error()
				} else {
					res.Attribute = attr
				}
				results = append(results, res)
			}

			if env.JSON {
				return output.PrintJSON("layout classify", results)
			}
			printClassifications(cmd.OutOrStdout(), results)
			if unmapped > 0 {
				return fmt.Errorf("%d column(s) have no declared attribute", unmapped)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workbook, "workbook", "", "Read the columns from this workbook")
	return cmd
}

// Complete offers the built-in layout names, and files, as the first
// argument or a --layout value.
func Complete(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if cmd.Flags().Lookup("layout") == nil && len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return layout.Builtins(), cobra.ShellCompDirectiveDefault
}

func summarize(l *layout.Layout) Summary {
	return Summary{
		Name:        l.Name,
		Version:     l.Version,
		Sheet:       l.Sheet,
		Rows:        fmt.Sprintf("%d-%d", l.Rows.Start, l.Rows.End),
		Mode:        l.Classifier.Mode,
		Columns:     len(l.ValueColumns()),
		Description: l.Description,
	}
}

func workbookColumns(path string, l *layout.Layout) ([]string, error) {
	wb, err := xlsx.Open(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	it, err := wb.Extract(l)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	return it.ValueColumns(), nil
}

func printList(w io.Writer, summaries []Summary) {
	bold := color.New(color.Bold).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", bold("NAME"), bold("VERSION"), bold("SHEET"), bold("ROWS"), bold("MODE"), bold("COLUMNS"))
	for _, s := range summaries {
		cols := fmt.Sprint(s.Columns)
		if s.Columns == 0 {
			cols = "auto"
		}
		fmt.Fprintf(tw, "%s\tv%d\t%s\t%s\t%s\t%s\n", s.Name, s.Version, s.Sheet, s.Rows, s.Mode, cols)
	}
	tw.Flush()
}

func printClassifications(w io.Writer, results []Classification) {
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tENTITY\tPIPELINE\tMEASURE")
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\t%s\t\t\n", r.Column, red("unmapped"))
			continue
		}
		pipeline := string(r.Pipeline)
		if r.Pipeline == record.PipelineUnknown {
			pipeline = yellow(pipeline)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Column, r.Entity, pipeline, r.Measure)
	}
	tw.Flush()
}
