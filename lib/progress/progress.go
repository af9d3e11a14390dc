// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/bureau-foundation/bulkscan/lib/clock"
)

// Tracker rate-limits and formats status lines. Tracker is owned by
// the dispatch loop and is not safe for concurrent use.
type Tracker struct {
	out      io.Writer
	clock    clock.Clock
	rate     int
	sampling bool
	start    time.Time
	counter  int

	// styled is non-nil when out is a terminal.
	styled *termenv.Output
}

// New returns a Tracker printing every rate-th notification to out.
// Rates below 1 print every notification.
func New(out io.Writer, clock clock.Clock, rate int, sampling bool) *Tracker {
	tracker := &Tracker{
		out:      out,
		clock:    clock,
		rate:     max(rate, 1),
		sampling: sampling,
		start:    clock.Now(),
	}
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		tracker.styled = termenv.NewOutput(file)
	}
	return tracker
}

// Notify counts one submitted page and prints a status line if this is
// the rate-th call since the last line. It reports whether a line was
// printed.
func (t *Tracker) Notify(address string, fraction float64) bool {
	t.counter++
	if t.counter < t.rate {
		return false
	}
	t.counter = 0
	fmt.Fprintln(t.out, t.Line(address, fraction))
	return true
}

// Line formats a status line without touching the rate counter.
func (t *Tracker) Line(address string, fraction float64) string {
	now := t.clock.Now()
	stamp := now.Format("15:04:05")
	if t.styled != nil {
		stamp = t.styled.String(stamp).Faint().String()
	}

	var builder strings.Builder
	builder.WriteString(stamp)
	builder.WriteByte(' ')
	builder.WriteString(address)
	if !t.sampling {
		remaining, known := t.remaining(now, fraction)
		if known {
			fmt.Fprintf(&builder, " (%4.2f%%) Done in %s at %s",
				fraction*100, MinSec(remaining), now.Add(remaining).Format("15:04:05"))
		} else {
			fmt.Fprintf(&builder, " (%4.2f%%)", fraction*100)
		}
	}
	return builder.String()
}

// remaining extrapolates the time left from the elapsed time and the
// fraction complete.
func (t *Tracker) remaining(now time.Time, fraction float64) (time.Duration, bool) {
	if fraction <= 0 {
		return 0, false
	}
	if fraction >= 1 {
		return 0, true
	}
	elapsed := now.Sub(t.start)
	return time.Duration(float64(elapsed) * (1 - fraction) / fraction).Round(time.Second), true
}

// MinSec renders d as "M min S sec", dropping a zero minute part.
func MinSec(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	minutes, seconds := total/60, total%60
	switch {
	case minutes > 0 && seconds > 0:
		return fmt.Sprintf("%d min %d sec", minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%d min", minutes)
	default:
		return fmt.Sprintf("%d sec", seconds)
	}
}
