package observ

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func fakeClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Unix(0, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func TestTimerReport(t *testing.T) {
	timer := NewTimer()
	timer.now = fakeClock(time.Millisecond)

	load := timer.Begin("load")
	timer.End(load, "3 signatures")
	done := timer.Track("classify")
	done("")
	timer.End(42, "ignored")

	report := timer.Report()
	if len(report.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(report.Phases))
	}
	if report.Phases[0].DurationMS != 1 || report.Phases[0].Note != "3 signatures" {
		t.Fatalf("expected load to take 1ms with a note, got %+v", report.Phases[0])
	}
	if report.TotalMS != 2 {
		t.Fatalf("expected 2ms total, got %v", report.TotalMS)
	}
	summary := timer.Summary()
	if !strings.Contains(summary, "// 3 signatures") || !strings.Contains(summary, "total") {
		t.Fatalf("unexpected summary:\n%s", summary)
	}
}

func TestTimerConcurrentPhases(t *testing.T) {
	timer := NewTimer()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer.Track("job")("")
		}()
	}
	wg.Wait()
	if got := len(timer.Report().Phases); got != 16 {
		t.Fatalf("expected 16 phases, got %d", got)
	}
}

func TestEmptyTimer(t *testing.T) {
	if report := NewTimer().Report(); report.TotalMS != 0 || report.Phases != nil {
		t.Fatalf("expected an empty report, got %+v", report)
	}
}
