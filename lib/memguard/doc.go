// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memguard refuses page allocations when the host is short of
// memory.
//
// A Go allocation that cannot be satisfied kills the process rather
// than returning an error, so the scan engine cannot rely on the
// allocator itself to signal memory pressure. Instead, before each page
// buffer is allocated, [Guard.Reserve] asks the operating system (via
// gopsutil) how much memory is available and refuses the request when
// the allocation would leave less than the configured floor. The
// refusal is retried by lib/acquire after a delay, giving workers time
// to finish pages and release their buffers.
package memguard
