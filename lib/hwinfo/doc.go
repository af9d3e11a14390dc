// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hwinfo describes the machine a scan ran on.
//
// A forensic report records its execution environment alongside the
// program version so a result can be reproduced or explained later: a
// run on a box with little memory retries more allocations, a run with
// few CPUs drains more slowly. [Probe] collects hostname, operating
// system, kernel, CPU model and count, and total memory through
// gopsutil.
//
// Probe never returns an error. Anything that cannot be read is left
// zero-valued; a container without /sys/class/dmi is still a valid
// place to run a scan.
package hwinfo
