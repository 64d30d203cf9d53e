// Package progress draws workbook progress bars and spinners on stderr so
// stdout stays clean for pipes and --json.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Bar tracks workbooks processed for one layout.
type Bar struct {
	Label   string
	Total   int
	Width   int
	Enabled bool
	Out     io.Writer

	mu      sync.Mutex
	current int
	failed  int
}

// New creates a bar over total workbooks. It is disabled when stderr is
// not a terminal or GSD_NO_PROGRESS=1.
func New(label string, total int) *Bar {
	return &Bar{
		Label:   label,
		Total:   total,
		Width:   30,
		Enabled: shouldEnable(),
		Out:     os.Stderr,
	}
}

// Step records one finished workbook and redraws.
func (b *Bar) Step(name string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current < b.Total {
		b.current++
	}
	if !ok {
		b.failed++
	}
	b.render(name)
}

// Counts returns workbooks done and failed so far.
func (b *Bar) Counts() (done, failed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.failed
}

// Finish clears the bar and prints a summary line.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.Enabled {
		return
	}
	mark := "✓"
	if b.failed > 0 {
		mark = "!"
	}
	fmt.Fprintf(b.Out, "\r\033[K%s %s: %d workbook(s), %d failed\n", mark, b.Label, b.current, b.failed)
}

func (b *Bar) render(name string) {
	if !b.Enabled {
		return
	}

	filled := 0
	if b.Total > 0 {
		filled = b.current * b.Width / b.Total
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", b.Width-filled)
	fmt.Fprintf(b.Out, "\r\033[K%s [%s] %d/%d  %s", b.Label, bar, b.current, b.Total, name)
}

// Spinner shows activity where the total is unknown, such as a database
// load.
type Spinner struct {
	Label   string
	Enabled bool
	Out     io.Writer

	mu   sync.Mutex
	done chan struct{}
}

// NewSpinner creates a spinner.
func NewSpinner(label string) *Spinner {
	return &Spinner{
		Label:   label,
		Enabled: shouldEnable(),
		Out:     os.Stderr,
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	if !s.Enabled {
		return
	}

	s.mu.Lock()
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		frames := []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(s.Out, "\r\033[K%c %s", frames[i%len(frames)], s.Label)
				s.mu.Unlock()
			}
		}
	}()
}

// Stop ends the animation and prints result.
func (s *Spinner) Stop(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.Enabled {
		fmt.Fprintf(s.Out, "\r\033[K✓ %s\n", result)
	}
}

// Disable turns off bars and spinners for the rest of the process, as
// --json does.
func Disable() {
	os.Setenv("GSD_NO_PROGRESS", "1")
}

func shouldEnable() bool {
	if os.Getenv("GSD_NO_PROGRESS") == "1" {
		return false
	}
	return isTTY()
}

func isTTY() bool {
	stat, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
