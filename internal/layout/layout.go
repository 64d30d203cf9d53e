// Package layout describes the fixed physical layout of one workbook family:
// which sheet, which rows, which columns, and how each column is attributed
// to an entity, pipeline and measure. Layouts are data, loaded from
// versioned YAML descriptors, never embedded in control flow.
package layout

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/klytics/gsdkit/internal/record"
)

// Classifier modes.
const (
	ModeDeclared  = "declared"
	ModeHeuristic = "heuristic"
)

// Layout is the immutable descriptor of one workbook family.
type Layout struct {
	Name        string     `yaml:"name" json:"name"`
	Version     int        `yaml:"version" json:"version"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Sheet       string     `yaml:"sheet" json:"sheet"`
	Rows        Window     `yaml:"rows" json:"rows"`
	ExcludeRows []int      `yaml:"exclude_rows,omitempty" json:"excludeRows,omitempty"`
	HeaderRow   int        `yaml:"header_row,omitempty" json:"headerRow,omitempty"`
	DateColumn  string     `yaml:"date_column" json:"dateColumn"`
	Columns     []Column   `yaml:"columns,omitempty" json:"columns,omitempty"`
	AutoColumns bool       `yaml:"auto_columns,omitempty" json:"autoColumns,omitempty"`
	SkipHeaders []string   `yaml:"skip_headers,omitempty" json:"skipHeaders,omitempty"`
	Families    []Family   `yaml:"families,omitempty" json:"families,omitempty"`
	Classifier  Classifier `yaml:"classifier" json:"classifier"`
	Output      string     `yaml:"output,omitempty" json:"output,omitempty"`
}

// Window is an inclusive, 1-indexed range of physical sheet rows.
type Window struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// Len returns the number of rows in the window.
func (w Window) Len() int {
	return w.End - w.Start + 1
}

// Column maps a physical column to a semantic name. The physical column is
// either a column letter (Ref) or the text of the header row (Header); when
// a header repeats, Occurrence picks the nth one.
type Column struct {
	Ref        string `yaml:"ref,omitempty" json:"ref,omitempty"`
	Header     string `yaml:"header,omitempty" json:"header,omitempty"`
	Occurrence int    `yaml:"occurrence,omitempty" json:"occurrence,omitempty"`
	Name       string `yaml:"name" json:"name"`
	// Shared marks an auxiliary column observed once per family.
	Shared bool `yaml:"shared,omitempty" json:"shared,omitempty"`
}

// Family is a group of stations fed by one pipeline.
type Family struct {
	Pipeline string `yaml:"pipeline" json:"pipeline"`
	Entity   string `yaml:"entity" json:"entity"`
}

// Classifier selects and parameterizes the attribute classification mode.
type Classifier struct {
	Mode           string               `yaml:"mode" json:"mode"`
	Attributes     map[string]Attribute `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Rules          []Rule               `yaml:"rules,omitempty" json:"rules,omitempty"`
	DefaultMeasure string               `yaml:"default_measure,omitempty" json:"defaultMeasure,omitempty"`
}

// Attribute is one row of a declared attribution table.
type Attribute struct {
	Entity   string `yaml:"entity,omitempty" json:"entity,omitempty"`
	Pipeline string `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
	Measure  string `yaml:"measure" json:"measure"`
}

// Rule is one ordered substring rule of the heuristic classifier.
type Rule struct {
	Contains string `yaml:"contains" json:"contains"`
	Pipeline string `yaml:"pipeline" json:"pipeline"`
}

// LoadFile reads and validates a layout descriptor from disk.
func LoadFile(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("layout file not found: %s — check that the path is correct", path)
		}
		return nil, fmt.Errorf("could not read layout file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a layout descriptor.
func Parse(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("invalid layout YAML: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Validate checks the descriptor for internal consistency.
func (l *Layout) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("layout is missing a 'name' field")
	}
	if l.Sheet == "" {
		return fmt.Errorf("layout %q is missing a 'sheet' field", l.Name)
	}
	if l.Rows.Start < 1 || l.Rows.End < l.Rows.Start {
		return fmt.Errorf("layout %q has an invalid row window [%d, %d]", l.Name, l.Rows.Start, l.Rows.End)
	}
	if l.HeaderRow < 0 || (l.HeaderRow > 0 && l.HeaderRow >= l.Rows.Start) {
		return fmt.Errorf("layout %q: header_row %d must precede the row window starting at %d",
			l.Name, l.HeaderRow, l.Rows.Start)
	}
	if l.DateColumn == "" {
		return fmt.Errorf("layout %q is missing a 'date_column' field", l.Name)
	}
	if l.AutoColumns && l.HeaderRow == 0 {
		return fmt.Errorf("layout %q uses auto_columns but declares no header_row", l.Name)
	}
	if !l.AutoColumns && len(l.Columns) == 0 {
		return fmt.Errorf("layout %q has no columns defined", l.Name)
	}

	if err := l.validateColumns(); err != nil {
		return err
	}
	if err := l.validateFamilies(); err != nil {
		return err
	}
	return l.validateClassifier()
}

func (l *Layout) validateColumns() error {
	seen := make(map[string]bool)
	hasDate := l.AutoColumns
	for i, c := range l.Columns {
		if c.Name == "" {
			return fmt.Errorf("layout %q: column %d is missing a 'name' field", l.Name, i+1)
		}
		if seen[c.Name] {
			return fmt.Errorf("layout %q: duplicate column name %q — each column must have a unique name", l.Name, c.Name)
		}
		seen[c.Name] = true
		if c.Name == l.DateColumn {
			hasDate = true
		}

		switch {
		case c.Ref != "" && c.Header != "":
			return fmt.Errorf("layout %q: column %q sets both 'ref' and 'header'", l.Name, c.Name)
		case c.Ref != "":
			if _, err := excelize.ColumnNameToNumber(c.Ref); err != nil {
				return fmt.Errorf("layout %q: column %q has an invalid ref %q: %w", l.Name, c.Name, c.Ref, err)
			}
		case c.Header != "":
			if l.HeaderRow == 0 {
				return fmt.Errorf("layout %q: column %q matches header text but no header_row is declared", l.Name, c.Name)
			}
			if c.Occurrence < 0 {
				return fmt.Errorf("layout %q: column %q has a negative occurrence", l.Name, c.Name)
			}
		default:
			return fmt.Errorf("layout %q: column %q needs a 'ref' or a 'header'", l.Name, c.Name)
		}

		if c.Shared && c.Name == l.DateColumn {
			return fmt.Errorf("layout %q: the date column cannot be shared", l.Name)
		}
		if c.Shared && len(l.Families) == 0 {
			return fmt.Errorf("layout %q: column %q is shared but no families are declared", l.Name, c.Name)
		}
	}
	if !hasDate {
		return fmt.Errorf("layout %q: date_column %q is not one of the declared columns", l.Name, l.DateColumn)
	}
	return nil
}

func (l *Layout) validateFamilies() error {
	for _, f := range l.Families {
		if f.Entity == "" {
			return fmt.Errorf("layout %q: family for pipeline %q is missing an 'entity'", l.Name, f.Pipeline)
		}
		if _, err := record.ParsePipeline(f.Pipeline); err != nil {
			return fmt.Errorf("layout %q: family %q: %w", l.Name, f.Entity, err)
		}
	}
	return nil
}

func (l *Layout) validateClassifier() error {
	c := l.Classifier
	switch c.Mode {
	case ModeDeclared:
		for name, a := range c.Attributes {
			if a.Measure == "" {
				return fmt.Errorf("layout %q: attribute %q is missing a 'measure'", l.Name, name)
			}
			if _, err := record.ParsePipeline(a.Pipeline); err != nil {
				return fmt.Errorf("layout %q: attribute %q: %w", l.Name, name, err)
			}
		}
		if l.AutoColumns {
			return nil
		}
		// Declared tables must be total over the declared value columns.
		var missing []string
		for _, name := range l.ValueColumns() {
			if _, ok := c.Attributes[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("layout %q: declared classifier has no attribute for columns %v", l.Name, missing)
		}
	case ModeHeuristic:
		for i, r := range c.Rules {
			if strings.TrimSpace(r.Contains) == "" {
				return fmt.Errorf("layout %q: heuristic rule %d has an empty 'contains'", l.Name, i+1)
			}
			if _, err := record.ParsePipeline(r.Pipeline); err != nil {
				return fmt.Errorf("layout %q: heuristic rule %d: %w", l.Name, i+1, err)
			}
		}
	case "":
		return fmt.Errorf("layout %q is missing a classifier 'mode'", l.Name)
	default:
		return fmt.Errorf("layout %q: unknown classifier mode %q — expected %q or %q",
			l.Name, c.Mode, ModeDeclared, ModeHeuristic)
	}
	return nil
}

// ValueColumns returns the declared column names other than the date
// column, in declaration order.
func (l *Layout) ValueColumns() []string {
	names := make([]string, 0, len(l.Columns))
	for _, c := range l.Columns {
		if c.Name != l.DateColumn {
			names = append(names, c.Name)
		}
	}
	return names
}

// ExcludedRows returns the set of physical rows known to hold borders.
func (l *Layout) ExcludedRows() map[int]bool {
	set := make(map[int]bool, len(l.ExcludeRows))
	for _, r := range l.ExcludeRows {
		set[r] = true
	}
	return set
}

// IsShared reports whether the named column is a per-family auxiliary.
func (l *Layout) IsShared(name string) bool {
	for _, c := range l.Columns {
		if c.Name == name {
			return c.Shared
		}
	}
	return false
}

// OutputName returns the base name for consolidated output files.
func (l *Layout) OutputName() string {
	if l.Output != "" {
		return l.Output
	}
	return strings.ReplaceAll(l.Name, "-", "_") + "_long_consolidated"
}

// Skipped reports whether an auto-detected header is excluded from output.
func (l *Layout) Skipped(header string) bool {
	for _, s := range l.SkipHeaders {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(header)) {
			return true
		}
	}
	return false
}
