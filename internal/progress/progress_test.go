package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewWithEnvDisable(t *testing.T) {
	t.Setenv("GSD_NO_PROGRESS", "1")
	if New("lng-facilities", 10).Enabled {
		t.Error("expected bar to be disabled with GSD_NO_PROGRESS=1")
	}
	if NewSpinner("loading").Enabled {
		t.Error("expected spinner to be disabled with GSD_NO_PROGRESS=1")
	}
}

func TestDisable(t *testing.T) {
	t.Setenv("GSD_NO_PROGRESS", "")
	Disable()
	if New("lng-facilities", 1).Enabled {
		t.Error("expected bar to be disabled after Disable")
	}
}

func TestBarStep(t *testing.T) {
	var buf bytes.Buffer
	bar := &Bar{Label: "lng-facilities", Total: 3, Width: 30, Enabled: true, Out: &buf}

	bar.Step("GSD REPORT FY2013.xlsx", true)
	bar.Step("GSD REPORT FY2014.xlsx", false)
	bar.Step("GSD REPORT FY2015.xlsx", true)
	bar.Step("extra", true) // capped at Total

	done, failed := bar.Counts()
	if done != 3 || failed != 1 {
		t.Errorf("expected 3 done and 1 failed, got %d and %d", done, failed)
	}
	if !strings.Contains(buf.String(), "3/3  GSD REPORT FY2015.xlsx") {
		t.Errorf("unexpected render: %q", buf.String())
	}

	buf.Reset()
	bar.Finish()
	if !strings.Contains(buf.String(), "! lng-facilities: 3 workbook(s), 1 failed") {
		t.Errorf("unexpected summary: %q", buf.String())
	}
}

func TestBarStepConcurrent(t *testing.T) {
	bar := &Bar{Total: 50, Width: 30}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bar.Step("wb", true)
		}()
	}
	wg.Wait()
	if done, _ := bar.Counts(); done != 50 {
		t.Errorf("expected 50 done, got %d", done)
	}
}

func TestDisabledBarDoesNotWrite(t *testing.T) {
	var buf bytes.Buffer
	bar := &Bar{Total: 10, Width: 30, Enabled: false, Out: &buf}
	bar.Step("wb", true)
	bar.Finish()
	if buf.Len() > 0 {
		t.Errorf("disabled bar should not write, wrote %q", buf.String())
	}
}

func TestSpinnerStartStop(t *testing.T) {
	var buf syncBuffer
	s := &Spinner{Label: "loading", Enabled: true, Out: &buf}
	s.Start()
	time.Sleep(100 * time.Millisecond) // let a few frames render
	s.Stop("loaded 3660 rows")
	s.Stop("again") // second stop must not panic

	if !strings.Contains(buf.String(), "✓ loaded 3660 rows") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestSpinnerDisabled(t *testing.T) {
	var buf bytes.Buffer
	s := &Spinner{Label: "loading", Enabled: false, Out: &buf}
	s.Start()
	s.Stop("done")
	if buf.Len() > 0 {
		t.Errorf("disabled spinner should not write, wrote %q", buf.String())
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
