// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scanner defines the contract between the dispatch engine and
// content scanners, and the registry that runs them.
//
// A [Scanner] has two phases. Init runs once per run, before any data
// is read: the scanner reports its identity and the feature recorders it
// writes, and binds its tuning knobs through [Config]. Scan runs once
// per view. A scanner that decodes an embedded stream (a compressed
// member, say) wraps the decoded bytes in a derived view addressed
// parent.Child(offset, label) and passes it to the [Recurser]. Recurse
// runs every enabled scanner over the derived view synchronously on the
// calling goroutine, depth-first, and releases the view before it
// returns, so a work unit finishes only when its whole subtree has been
// scanned. Recursion never goes back through the worker pool queue.
//
// A panic inside one Scan call is recovered and logged; the remaining
// scanners still see the view.
package scanner
