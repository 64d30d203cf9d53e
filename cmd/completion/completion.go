// Package completion provides shell completion generation commands.
package completion

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

const install = `Install instructions:
  Bash:       gsd completion bash > /etc/bash_completion.d/gsd
              echo 'source <(gsd completion bash)' >> ~/.bashrc
  Zsh:        gsd completion zsh > ~/.zsh/completions/_gsd
  Fish:       gsd completion fish > ~/.config/fish/completions/gsd.fish
  PowerShell: gsd completion powershell >> $PROFILE`

// NewCommand returns the completion command.
func NewCommand(rootCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completions",
		Long:      "Generate shell completion scripts for gsd. Layout names complete from the built-in set.\n\n" + install,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Generate(cmd.OutOrStdout(), rootCmd, args[0])
		},
	}
	return cmd
}

// Generate writes the completion script for shell.
func Generate(w io.Writer, rootCmd *cobra.Command, shell string) error {
	switch shell {
	case "bash":
		fmt.Fprintln(w, "# gsd bash completion")
		fmt.Fprintln(w)
		return rootCmd.GenBashCompletion(w)
	case "zsh":
		fmt.Fprintln(w, "# gsd zsh completion")
		fmt.Fprintln(w)
		return rootCmd.GenZshCompletion(w)
	case "fish":
		fmt.Fprintln(w, "# gsd fish completion")
		fmt.Fprintln(w)
		return rootCmd.GenFishCompletion(w, true)
	case "powershell":
		fmt.Fprintln(w, "# gsd PowerShell completion")
		fmt.Fprintln(w)
		return rootCmd.GenPowerShellCompletionWithDesc(w)
	default:
		return fmt.Errorf("unsupported shell: %s — supported: bash, zsh, fish, powershell", shell)
	}
}
