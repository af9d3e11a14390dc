// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch runs a scan: one producer goroutine reads image
// pages and submits them as work units to a bounded worker pool, then
// waits for the pool to drain and finalizes the report.
//
// The producer alone owns the page iterator, the streaming image hash,
// the byte counter, the seen-address set and the progress tracker.
// These are unexported fields of [Dispatcher] touched only from
// [Dispatcher.Run]; workers never see them. A view moves to the worker
// when its unit is submitted. Submit blocks while the pool queue is
// full, which is the only backpressure on the producer.
//
// Pages are visited sequentially, or, when sampling, in one or more
// passes over a sorted random sample of page indices. A page whose
// rendered address has already been dispatched is skipped, so passes
// never scan the same page twice.
//
// Each page is acquired through [acquire.Acquirer]. A refused
// allocation is retried after a delay and noted in the report as a
// debug:exception entry; exhausting the attempt limit aborts the run
// with an error wrapping [acquire.ErrExhausted]. Any other read failure
// skips that page only.
//
// After the last page the producer joins the pool under a watchdog. A
// status line is printed (and recorded as a report comment) every
// status interval; if the pool has not drained within the maximum
// wait, Run gives up with [ErrDrainTimeout]. Either way the report is
// finalized: the "runtime" section is closed, and a "source" section
// names the image, its size and, if the hash covered the whole image
// contiguously, its digest.
package dispatch
