// Package observ measures how long the steps of a test take.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Step is one timed step: a compile pass, a load, an execution.
type Step struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
	open  bool
}

// Timer records the steps of one test in the order they began.
type Timer struct {
	mu    sync.Mutex
	steps []Step
}

// NewTimer creates an empty Timer.
func NewTimer() *Timer { return &Timer{steps: make([]Step, 0, 4)} }

// Begin starts a step and returns its index for End.
func (t *Timer) Begin(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, Step{Name: name, Start: time.Now(), open: true})
	return len(t.steps) - 1
}

// End finishes the step idx. Unknown or already finished steps are ignored.
func (t *Timer) End(idx int, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.steps) || !t.steps[idx].open {
		return
	}
	s := &t.steps[idx]
	s.Dur = time.Since(s.Start)
	s.Note = note
	s.open = false
}

// Time runs fn as a step named name.
func (t *Timer) Time(name string, fn func() error) error {
	idx := t.Begin(name)
	err := fn()
	note := ""
	if err != nil {
		note = "failed"
	}
	t.End(idx, note)
	return err
}

// StepReport is the serializable form of a Step.
type StepReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report aggregates the finished steps.
type Report struct {
	TotalMS float64      `json:"total_ms"`
	Steps   []StepReport `json:"steps"`
}

// Report snapshots the finished steps; open steps are left out.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	var report Report
	var total time.Duration
	for _, s := range t.steps {
		if s.open {
			continue
		}
		total += s.Dur
		report.Steps = append(report.Steps, StepReport{
			Name:       s.Name,
			DurationMS: millis(s.Dur),
			Note:       s.Note,
		})
	}
	report.TotalMS = millis(total)
	return report
}

// Summary renders r as an indented table, one step per line.
func (r Report) Summary() string {
	var b strings.Builder
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "    %-12s %8.2f ms", s.Name, s.DurationMS)
		if s.Note != "" {
			b.WriteString("  // " + s.Note)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "    %-12s %8.2f ms\n", "total", r.TotalMS)
	return b.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
