// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package progress prints the operator-facing status line of a scan.
//
// The dispatch loop calls [Tracker.Notify] once per page it submits.
// Every Nth call the tracker prints the wall-clock time and the current
// address and, for full scans, the percentage complete with an
// estimate of when the scan will finish:
//
//	14:03:27 134217728 (12.50%) Done in 7 min 12 sec at 14:10:39
//
// Sampling runs visit pages out of proportion to their position, so
// the percentage and estimate are omitted for them. The status line is
// advisory; nothing in the engine reads it back.
package progress
