// Package timing measures the phases of a command run against a host.
package timing

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Timer records consecutive named phases.
type Timer struct {
	start  time.Time
	last   time.Time
	phases []Phase
	now    func() time.Time
}

// Phase is a named span of a run.
type Phase struct {
	Name     string
	Duration time.Duration
}

// New returns a Timer started now.
func New() *Timer {
	return newTimer(time.Now)
}

func newTimer(now func() time.Time) *Timer {
	start := now()
	return &Timer{start: start, last: start, now: now}
}

// Mark ends the current phase under name and returns its duration.
func (t *Timer) Mark(name string) time.Duration {
	now := t.now()
	d := now.Sub(t.last)
	t.last = now
	t.phases = append(t.phases, Phase{Name: name, Duration: d})
	return d
}

// Total is the time since the timer started.
func (t *Timer) Total() time.Duration {
	return t.now().Sub(t.start)
}

// Phases returns the recorded phases in order.
func (t *Timer) Phases() []Phase {
	return t.phases
}

// LogValue groups the phases for structured logs.
func (t *Timer) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(t.phases)+1)
	for _, p := range t.phases {
		attrs = append(attrs, slog.Duration(p.Name, p.Duration))
	}
	attrs = append(attrs, slog.Duration("total", t.Total()))
	return slog.GroupValue(attrs...)
}

// Report writes the phases on one line, as "connect=12ms command=40ms
// total=52ms".
func (t *Timer) Report(w io.Writer) {
	parts := make([]string, 0, len(t.phases)+1)
	for _, p := range t.phases {
		parts = append(parts, p.Name+"="+formatDuration(p.Duration))
	}
	parts = append(parts, "total="+formatDuration(t.Total()))
	fmt.Fprintf(w, "timing: %s\n", strings.Join(parts, " "))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
