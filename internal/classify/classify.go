// Package classify attributes wide-format column names to an entity, a
// pipeline and a measure. Two modes share one signature: a declared lookup
// table that fails on unknown columns, and an ordered keyword heuristic that
// never fails and degrades to the unknown pipeline.
package classify

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/klytics/gsdkit/internal/layout"
	"github.com/klytics/gsdkit/internal/record"
)

// Attribute is the (entity, pipeline, measure) triple of one column.
type Attribute struct {
	Entity   string          `json:"entity"`
	Pipeline record.Pipeline `json:"pipeline"`
	Measure  string          `json:"measure"`
}

// Classifier maps a column name to its attribute.
type Classifier interface {
	Classify(column string) (Attribute, error)
}

// UnmappedColumnError is returned by a declared classifier for a column its
// table does not cover.
type UnmappedColumnError struct {
	Column string
}

func (e *UnmappedColumnError) Error() string {
	return fmt.Sprintf("column %q has no declared attribute — add it to the layout's classifier table", e.Column)
}

// Declared looks columns up in a fixed table.
type Declared struct {
	table map[string]Attribute
}

// NewDeclared builds a declared classifier from a layout attribute table.
func NewDeclared(attrs map[string]layout.Attribute) (*Declared, error) {
	table := make(map[string]Attribute, len(attrs))
	for column, a := range attrs {
		p, err := record.ParsePipeline(a.Pipeline)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", column, err)
		}
		entity := a.Entity
		if entity == "" {
			entity = column
		}
		table[column] = Attribute{Entity: entity, Pipeline: p, Measure: a.Measure}
	}
	return &Declared{table: table}, nil
}

// Classify returns the declared attribute or an *UnmappedColumnError.
func (d *Declared) Classify(column string) (Attribute, error) {
	a, ok := d.table[column]
	if !ok {
		return Attribute{}, &UnmappedColumnError{Column: column}
	}
	return a, nil
}

// Heuristic matches column names against ordered keyword rules.
type Heuristic struct {
	rules          []rule
	defaultMeasure string
	logger         *slog.Logger

	mu     sync.Mutex
	logged map[string]bool
}

type rule struct {
	keyword  string
	pipeline record.Pipeline
}

// DefaultMeasure is used when a heuristic layout names no measure.
const DefaultMeasure = "value"

// NewHeuristic builds a heuristic classifier. Every column that falls
// through to the unknown pipeline is logged once.
func NewHeuristic(rules []layout.Rule, defaultMeasure string, logger *slog.Logger) (*Heuristic, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultMeasure == "" {
		defaultMeasure = DefaultMeasure
	}
	h := &Heuristic{
		defaultMeasure: defaultMeasure,
		logger:         logger,
		logged:         make(map[string]bool),
	}
	for _, r := range rules {
		p, err := record.ParsePipeline(r.Pipeline)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Contains, err)
		}
		h.rules = append(h.rules, rule{keyword: strings.ToUpper(strings.TrimSpace(r.Contains)), pipeline: p})
	}
	return h, nil
}

// Classify never fails. The entity is the raw column name.
func (h *Heuristic) Classify(column string) (Attribute, error) {
	upper := strings.ToUpper(column)
	for _, r := range h.rules {
		if strings.Contains(upper, r.keyword) {
			return Attribute{Entity: column, Pipeline: r.pipeline, Measure: h.defaultMeasure}, nil
		}
	}

	h.mu.Lock()
	if !h.logged[column] {
		h.logged[column] = true
		h.logger.Info("column fell through to unknown pipeline", "column", column)
	}
	h.mu.Unlock()

	return Attribute{Entity: column, Pipeline: record.PipelineUnknown, Measure: h.defaultMeasure}, nil
}

// FromLayout builds the classifier a layout declares.
func FromLayout(l *layout.Layout, logger *slog.Logger) (Classifier, error) {
	switch l.Classifier.Mode {
	case layout.ModeDeclared:
		return NewDeclared(l.Classifier.Attributes)
	case layout.ModeHeuristic:
		return NewHeuristic(l.Classifier.Rules, l.Classifier.DefaultMeasure, logger)
	default:
		return nil, fmt.Errorf("layout %q: unknown classifier mode %q", l.Name, l.Classifier.Mode)
	}
}
