// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workpool runs scan work units on a fixed number of
// goroutines.
//
// The pool is deliberately small: [Pool.Submit] hands a task to a
// bounded queue and blocks when the queue is full, [Pool.Join] closes
// the queue and waits for every task to finish. The blocking submit is
// the scan engine's backpressure. Without it the producer would read
// pages far faster than workers can scan them and hold the whole image
// in memory.
//
// A task that panics is recovered and logged; the worker goroutine
// survives and takes the next task. Recursive scanning happens inside a
// task, so from the pool's point of view a page and every buffer
// decoded from it is one task.
package workpool
