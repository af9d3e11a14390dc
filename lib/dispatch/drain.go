// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/bulkscan/lib/progress"
)

// ErrDrainTimeout is returned when the worker pool does not finish
// within the configured maximum wait.
var ErrDrainTimeout = errors.New("timed out waiting for workers to finish")

// drain joins the pool, printing a status line every status interval,
// and gives up after MaxWait.
func (d *Dispatcher) drain() (time.Duration, error) {
	start := d.clock.Now()
	done := make(chan struct{})
	go func() {
		d.pool.Join()
		close(done)
	}()

	ticker := d.clock.NewTicker(d.options.StatusInterval)
	defer ticker.Stop()

	var timeout <-chan time.Time
	if d.options.MaxWait > 0 {
		timeout = d.clock.After(d.options.MaxWait)
	}

	for {
		select {
		case <-done:
			elapsed := d.clock.Now().Sub(start)
			d.logger.Info("workers drained", "elapsed", elapsed)
			return elapsed, nil

		case <-ticker.C:
			elapsed := d.clock.Now().Sub(start)
			line := "Time elapsed waiting for workers to finish: " + progress.MinSec(elapsed)
			if d.options.MaxWait > 0 {
				line += fmt.Sprintf(" (timeout in %s.)", progress.MinSec(d.options.MaxWait-elapsed))
			}
			running, queued := d.pool.Running(), d.pool.Queued()
			if !d.options.Quiet {
				fmt.Fprintln(d.stdout, line)
				fmt.Fprintf(d.stdout, "%d workers running, %d units queued\n", running, queued)
			}
			d.report.Comment(fmt.Sprintf("%s; %d running, %d queued", line, running, queued))

		case <-timeout:
			elapsed := d.clock.Now().Sub(start)
			running := d.pool.Running()
			d.logger.Error("workers did not finish in time",
				"elapsed", elapsed,
				"max_wait", d.options.MaxWait,
				"running", running,
				"queued", d.pool.Queued(),
			)
			fmt.Fprintf(d.stderr, "\n\n\nWorkers are still busy after %s.\n", progress.MinSec(elapsed))
			fmt.Fprintln(d.stderr, "Draining should not take this long. A scanner is probably stuck in a loop.")
			fmt.Fprintln(d.stderr, "Rerun with the offending scanner disabled, or raise drain.max_wait.")
			d.report.Comment(fmt.Sprintf("drain timed out after %s with %d workers running",
				progress.MinSec(elapsed), running))
			return elapsed, fmt.Errorf("%w: %d still running after %s", ErrDrainTimeout, running, progress.MinSec(elapsed))
		}
	}
}
