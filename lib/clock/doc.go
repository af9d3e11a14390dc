// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the scan
// engine.
//
// Three places in a run depend on time: the allocation retry delay in
// lib/acquire, the progress ETA in lib/progress, and the drain watchdog
// in lib/dispatch. Each takes a [Clock] instead of calling the time
// package directly. Production code passes [Real]; tests pass [Fake]
// and advance time explicitly, so a 60-second retry delay or a one-hour
// drain timeout costs nothing in a unit test.
//
// # FakeClock Synchronization
//
// A goroutine that calls Sleep, After, or NewTicker on a [FakeClock]
// registers a pending waiter. [FakeClock.WaitForTimers] blocks until a
// given number of waiters exist, which removes the race between the
// goroutine registering its timer and the test advancing the clock:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go acquirer.Acquire(iterator) // sleeps after a failed allocation
//	fake.WaitForTimers(1)
//	fake.Advance(time.Minute)
package clock
