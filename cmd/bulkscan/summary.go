// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/bulkscan/lib/dispatch"
	"github.com/bureau-foundation/bulkscan/lib/progress"
	"github.com/bureau-foundation/bulkscan/lib/scanner"
)

var (
	summaryBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	summaryKey = lipgloss.NewStyle().
			Bold(true).
			Width(16)
)

// renderSummary formats the end-of-run panel.
func renderSummary(imagePath string, imageSize uint64, result dispatch.Result, stats scanner.Stats) string {
	rows := [][2]string{
		{"image", fmt.Sprintf("%s (%d bytes)", imagePath, imageSize)},
		{"pages scanned", fmt.Sprint(result.Submitted)},
		{"bytes scanned", fmt.Sprint(result.TotalBytes)},
		{"views scanned", fmt.Sprintf("%d (max depth %d)", stats.Views, stats.MaxDepth)},
	}
	if len(result.Skipped) > 0 {
		reasons := make([]string, 0, len(result.Skipped))
		for reason := range result.Skipped {
			reasons = append(reasons, reason)
		}
		slices.Sort(reasons)
		var parts []string
		for _, reason := range reasons {
			parts = append(parts, fmt.Sprintf("%s=%d", reason, result.Skipped[reason]))
		}
		rows = append(rows, [2]string{"pages skipped", strings.Join(parts, " ")})
	}
	if stats.Panics > 0 {
		rows = append(rows, [2]string{"scanner panics", fmt.Sprint(stats.Panics)})
	}
	if result.HasDigest {
		rows = append(rows, [2]string{string(result.Digest.Algorithm), result.Digest.Hex()})
	}
	rows = append(rows, [2]string{"drain", progress.MinSec(result.DrainDuration)})

	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = lipgloss.JoinHorizontal(lipgloss.Top, summaryKey.Render(row[0]), row[1])
	}
	return summaryBorder.Render(strings.Join(lines, "\n"))
}
