// Package watch monitors the raw workbook directory and re-runs ingestion
// when a report workbook is created or modified.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/klytics/gsdkit/internal/ingest"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 2 * time.Second

// Config holds the watcher configuration.
type Config struct {
	Dir      string
	Pattern  string // glob matched against the base name
	Debounce time.Duration
}

// Event records a debounced file event and what the handler did with it.
type Event struct {
	Time      time.Time `json:"time"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"` // "processed", "error"
	Error     string    `json:"error,omitempty"`
}

// Handler is called once per debounced workbook change.
type Handler func(ctx context.Context, path string) error

// Watcher monitors a directory for workbook changes.
type Watcher struct {
	Config  Config
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Handler Handler

	mu       sync.Mutex
	runMu    sync.Mutex // handler runs never overlap
	events   []Event
	watcher  *fsnotify.Watcher
	debounce map[string]pending
	gen      uint64
}

// pending is the debounce timer armed for one path. gen identifies the
// timer so a callback that fired late cannot clear its replacement.
type pending struct {
	timer clockwork.Timer
	gen   uint64
}

// New creates a Watcher for cfg.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &Watcher{
		Config:   cfg,
		Logger:   slog.Default(),
		Clock:    clockwork.NewRealClock(),
		watcher:  fsw,
		debounce: make(map[string]pending),
	}, nil
}

// Start watches the directory. It blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	absDir, err := filepath.Abs(w.Config.Dir)
	if err != nil {
		return fmt.Errorf("could not resolve %s: %w", w.Config.Dir, err)
	}
	if err := w.watcher.Add(absDir); err != nil {
		w.watcher.Close()
		return fmt.Errorf("could not watch %s: %w — check that the raw directory exists", absDir, err)
	}

	w.Logger.Info("watching for workbooks", "dir", absDir, "pattern", w.Config.Pattern, "debounce", w.Config.Debounce)

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			w.Logger.Info("stopping watcher")
			return w.watcher.Close()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("watch error", "error", err)
		}
	}
}

// Close releases the underlying watcher without starting it.
func (w *Watcher) Close() error {
	w.stopTimers()
	return w.watcher.Close()
}

// Matches reports whether path is a workbook the watcher reacts to.
func (w *Watcher) Matches(path string) bool {
	base := filepath.Base(path)
	if ingest.IsLockFile(base) {
		return false
	}
	if w.Config.Pattern == "" {
		return true
	}
	matched, _ := filepath.Match(w.Config.Pattern, base)
	return matched
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	// Only process create and write events
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	path := event.Name
	if !w.Matches(path) {
		return
	}

	w.Logger.Debug("workbook changed", "path", path, "op", event.Op.String())

	// Debounce: an editor save emits several writes.
	w.mu.Lock()
	if p, ok := w.debounce[path]; ok {
		p.timer.Stop()
	}
	op := event.Op.String()
	w.gen++
	gen := w.gen
	w.debounce[path] = pending{
		timer: w.Clock.AfterFunc(w.Config.Debounce, func() { w.fire(ctx, path, op, gen) }),
		gen:   gen,
	}
	w.mu.Unlock()
}

// fire runs the handler for the timer armed as generation gen, unless a
// later event has re-armed the path since.
func (w *Watcher) fire(ctx context.Context, path, operation string, gen uint64) {
	w.mu.Lock()
	p, ok := w.debounce[path]
	if !ok || p.gen != gen {
		w.mu.Unlock()
		return
	}
	delete(w.debounce, path)
	w.mu.Unlock()
	w.process(ctx, path, operation)
}

func (w *Watcher) process(ctx context.Context, path, operation string) {
	if ctx.Err() != nil {
		return
	}

	w.runMu.Lock()
	defer w.runMu.Unlock()

	evt := Event{
		Time:      w.Clock.Now(),
		Path:      path,
		Operation: operation,
		Status:    "processed",
	}
	if w.Handler != nil {
		if err := w.Handler(ctx, path); err != nil {
			evt.Status = "error"
			evt.Error = err.Error()
			w.Logger.Error("re-ingest failed", "path", path, "error", err)
		} else {
			w.Logger.Info("re-ingested", "path", path)
		}
	}

	w.mu.Lock()
	w.events = append(w.events, evt)
	w.mu.Unlock()
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.debounce {
		p.timer.Stop()
		delete(w.debounce, path)
	}
}

// Events returns all recorded events.
func (w *Watcher) Events() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := make([]Event, len(w.events))
	copy(events, w.events)
	return events
}
