// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics collects run counters for a scan in a private
// Prometheus registry.
//
// A scan is a batch job with no listening socket, so metrics are
// exported once at the end of the run in the Prometheus text format
// with [Run.WriteTextfile], for pickup by node_exporter's textfile
// collector. All methods are no-ops on a nil *Run.
package metrics
