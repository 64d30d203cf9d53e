// Package config provides CLI commands for configuration management.
package config

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/gsdkit/internal/app"
	"github.com/klytics/gsdkit/internal/config"
	"github.com/klytics/gsdkit/internal/output"
)

// NewCommand returns the config command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect gsd configuration",
		Long:  "Show, locate, validate and export the effective gsd settings (file, .env and GSD_* environment merged).",
	}

	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newPathCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newEnvCommand())

	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(cmd)
			if err != nil {
				return err
			}
			settings := env.Config.ToMap()

			if env.JSON {
				return output.PrintJSON("config show", settings)
			}

			out := cmd.OutOrStdout()
			bold := color.New(color.Bold).SprintFunc()
			fmt.Fprintf(out, "%s %s\n\n", bold("Config:"), config.Path())
			for _, key := range sortedKeys(settings) {
				fmt.Fprintf(out, "  %-16s %s\n", key, format(settings[key]))
			}
			return nil
		},
	}
}

func newPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Setup(cmd); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.Path())
			return nil
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(cmd)
			if err != nil {
				return err
			}
			issues := env.Config.Validate()

			errCount, warnCount := 0, 0
			for _, issue := range issues {
				switch issue.Severity {
				case "error":
					errCount++
				case "warning":
					warnCount++
				}
			}
			var failure error
			if errCount > 0 {
				failure = fmt.Errorf("configuration has %d error(s)", errCount)
			}

			if env.JSON {
				if failure != nil {
					if err := output.PrintJSONError("config validate", failure, output.ExitUserError, issues); err != nil {
						return err
					}
					return output.Reported(output.ExitUserError, failure)
				}
				return output.PrintJSON("config validate", issues)
			}

			printIssues(cmd.OutOrStdout(), issues, errCount, warnCount)
			return failure
		},
	}
}

func newEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Export configuration as GSD_* environment variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.Setup(cmd)
			if err != nil {
				return err
			}
			vars := ToEnv(env.Config)

			if env.JSON {
				return output.PrintJSON("config env", vars)
			}

			out := cmd.OutOrStdout()
			for _, key := range sortedKeys(vars) {
				fmt.Fprintf(out, "export %s=%q\n", key, vars[key])
			}
			return nil
		},
	}
}

// ToEnv renders the settings as the GSD_* variables that would reproduce
// them. The database password stays masked.
func ToEnv(cfg *config.Config) map[string]any {
	vars := make(map[string]any)
	for key, val := range cfg.ToMap() {
		name := "GSD_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		vars[name] = format(val)
	}
	return vars
}

func printIssues(w io.Writer, issues []config.Issue, errCount, warnCount int) {
	if len(issues) == 0 {
		fmt.Fprintln(w, color.GreenString("Configuration is valid"))
		return
	}

	fmt.Fprintf(w, "Config validation: %d errors, %d warnings\n\n", errCount, warnCount)
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	for _, issue := range issues {
		switch issue.Severity {
		case "error":
			fmt.Fprintf(w, "  %s %s: %s\n", red("✗"), issue.Key, issue.Message)
		default:
			fmt.Fprintf(w, "  %s %s: %s\n", yellow("!"), issue.Key, issue.Message)
		}
	}
}

func format(v any) string {
	if list, ok := v.([]string); ok {
		return strings.Join(list, ",")
	}
	return fmt.Sprint(v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
