// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package acquire obtains page buffers from an image iterator under
// memory pressure.
//
// Every attempt ends in one of three [Outcome] values. A buffer is
// either acquired, refused for lack of memory (retryable), or the
// attempt failed for another reason such as a read error, which is
// returned at once for the caller to skip the page. Retryable refusals
// are reported through the failure hook, followed by a sleep of the
// configured delay, and tried again. After MaxAttempts consecutive
// refusals Acquire gives up with an error wrapping [ErrExhausted].
//
// Exhaustion is meant to stop the run. Repeated refusals mean the host
// is short of memory for reasons the scan cannot fix by waiting, and
// pressing on would only trade a clear failure for a slow one.
package acquire
