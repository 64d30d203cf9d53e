// Package audit keeps the run ledger: one JSON line per ingestion run.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Entry represents a single ingestion run.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	Command    string    `json:"command"`
	Layout     string    `json:"layout"`
	Files      int       `json:"files"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Rows       int       `json:"rows"`
	Loaded     int64     `json:"loaded,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Outputs    []string  `json:"outputs,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Ledger appends entries to a JSONL file.
type Ledger struct {
	FilePath string
	Enabled  bool
	Clock    clockwork.Clock
}

// NewLedger creates a Ledger. A disabled ledger or an empty path makes
// Log a no-op.
func NewLedger(filePath string, enabled bool) *Ledger {
	return &Ledger{
		FilePath: filePath,
		Enabled:  enabled,
		Clock:    clockwork.NewRealClock(),
	}
}

// Log writes a single entry, stamping it if the timestamp is unset.
// Best-effort: a ledger failure never fails a run.
func (l *Ledger) Log(_ context.Context, entry Entry) error {
	if !l.Enabled || l.FilePath == "" {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.Clock.Now().UTC()
	}

	if err := os.MkdirAll(filepath.Dir(l.FilePath), 0755); err != nil {
		return nil // ledger failures never block runs
	}

	f, err := os.OpenFile(l.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return nil
	}
	data = append(data, '\n')
	_, _ = f.Write(data)
	return nil
}

// ReadEntries reads all entries from the ledger file, oldest first.
func ReadEntries(filePath string) ([]Entry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Filter selects entries for history queries.
type Filter struct {
	Since      time.Time
	Until      time.Time
	Layout     string
	FailedOnly bool
	Limit      int // keep only the newest Limit entries
}

// FilterEntries returns entries matching f, preserving order.
func FilterEntries(entries []Entry, f Filter) []Entry {
	var result []Entry
	for _, e := range entries {
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		if f.Layout != "" && e.Layout != f.Layout {
			continue
		}
		if f.FailedOnly && e.Failed == 0 && e.Error == "" {
			continue
		}
		result = append(result, e)
	}
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[len(result)-f.Limit:]
	}
	return result
}

// LogSize returns the size of the ledger in bytes, or 0 if not found.
func LogSize(filePath string) int64 {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clear truncates the ledger file.
func Clear(filePath string) error {
	err := os.Truncate(filePath, 0)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
