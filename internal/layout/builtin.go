package layout

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Builtins returns the names of the layouts shipped with the binary.
func Builtins() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Builtin loads a shipped layout by name.
func Builtin(name string) (*Layout, error) {
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown layout %q — built-in layouts: %v", name, Builtins())
	}
	return Parse(data)
}

// Load resolves a layout reference: an existing file path wins, otherwise
// the reference names a built-in.
func Load(ref string) (*Layout, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return LoadFile(ref)
	}
	return Builtin(ref)
}

// LoadAll resolves every reference, failing on the first bad one.
func LoadAll(refs []string) ([]*Layout, error) {
	layouts := make([]*Layout, 0, len(refs))
	for _, ref := range refs {
		l, err := Load(ref)
		if err != nil {
			return nil, err
		}
		layouts = append(layouts, l)
	}
	return layouts, nil
}
