package completion

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func testRootCmd() *cobra.Command {
	root := &cobra.Command{Use: "gsd"}
	root.AddCommand(&cobra.Command{Use: "ingest", Short: "Normalize report workbooks"})
	root.AddCommand(&cobra.Command{Use: "layout", Short: "Inspect workbook layouts"})
	root.AddCommand(NewCommand(root))
	return root
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		shell string
		want  string
	}{
		{"bash", "_gsd"},
		{"zsh", "compdef"},
		{"fish", "complete -c gsd"},
		{"powershell", "gsd"},
	}

	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Generate(&buf, testRootCmd(), tt.shell); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("%s completion should contain %q", tt.shell, tt.want)
			}
		})
	}
}

func TestGenerateUnsupported(t *testing.T) {
	var buf bytes.Buffer
	if err := Generate(&buf, testRootCmd(), "tcsh"); err == nil {
		t.Error("expected error for unsupported shell")
	}
}

func TestCommandWritesToOut(t *testing.T) {
	root := testRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"completion", "bash"})

	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "# gsd bash completion") {
		t.Errorf("unexpected output: %.40s", buf.String())
	}
}
