// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package feature collects what scanners find.
//
// A scanner writes each finding to a named [Recorder] as a
// (forensic address, feature, context) triple. Scanners run on many
// workers at once, so every Recorder is safe for concurrent use. The
// [Set] maps recorder names to recorders; a scanner asking for a name
// nobody configured gets a recorder that discards its input, so
// scanners never need to check whether output is enabled.
//
// [OpenDir] writes one tab-separated text file per recorder, in the
// layout forensic tooling has long used for bulk feature files:
//
//	# Feature-Recorder: compressed
//	1000	gzip	decoded=52311
package feature
