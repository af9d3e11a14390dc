// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/bulkscan/lib/clock"
)

var start = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

func TestNotifyRate(t *testing.T) {
	var out bytes.Buffer
	tracker := New(&out, clock.Fake(start), 3, false)

	var printed []int
	for call := 1; call <= 9; call++ {
		if tracker.Notify("0", 0.1) {
			printed = append(printed, call)
		}
	}
	if len(printed) != 3 || printed[0] != 3 || printed[1] != 6 || printed[2] != 9 {
		t.Errorf("printed on calls %v, want [3 6 9]", printed)
	}
	if lines := strings.Count(out.String(), "\n"); lines != 3 {
		t.Errorf("wrote %d lines, want 3", lines)
	}
}

func TestRateBelowOnePrintsEveryCall(t *testing.T) {
	var out bytes.Buffer
	tracker := New(&out, clock.Fake(start), 0, false)
	for i := 0; i < 4; i++ {
		if !tracker.Notify("0", 0.5) {
			t.Fatalf("call %d did not print", i)
		}
	}
}

func TestLineWithEstimate(t *testing.T) {
	fake := clock.Fake(start)
	tracker := New(&bytes.Buffer{}, fake, 1, false)
	fake.Advance(time.Minute)

	got := tracker.Line("16777216", 0.25)
	want := "14:01:00 16777216 (25.00%) Done in 3 min at 14:04:00"
	if got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestSamplingLineOmitsEstimate(t *testing.T) {
	fake := clock.Fake(start)
	tracker := New(&bytes.Buffer{}, fake, 1, true)
	fake.Advance(30 * time.Second)

	if got, want := tracker.Line("4096", 0.5), "14:00:30 4096"; got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestLineAtZeroFraction(t *testing.T) {
	tracker := New(&bytes.Buffer{}, clock.Fake(start), 1, false)
	if got, want := tracker.Line("0", 0), "14:00:00 0 (0.00%)"; got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
}

func TestMinSec(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 sec"},
		{-time.Second, "0 sec"},
		{45 * time.Second, "45 sec"},
		{2 * time.Minute, "2 min"},
		{3*time.Minute + 5*time.Second, "3 min 5 sec"},
		{61*time.Minute + 1500*time.Millisecond, "61 min 1 sec"},
	}
	for _, tt := range tests {
		if got := MinSec(tt.in); got != tt.want {
			t.Errorf("MinSec(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
