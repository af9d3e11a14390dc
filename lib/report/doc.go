// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report builds the structured record of a scan run.
//
// A [Writer] holds a tree of named sections. Callers open a section
// with Push, add entries with Emit and free-text notes with Comment,
// and close it with Pop. The dispatch engine wraps each run in a
// "runtime" section (with a debug:exception entry for every page it
// had to retry or skip) followed by a "source" section naming the
// image, its size and, when one survived, its digest.
//
// Flush encodes the whole tree and replaces the report file
// atomically: the document is written to a temporary file in the same
// directory, fsynced, and renamed into place, so a reader never sees a
// half-written report even if the scan is killed mid-flush. Two
// encodings are supported, selected by [ParseFormat] or the report
// file extension: DFXML-style XML and deterministic CBOR (lib/codec).
//
// Writer is safe for concurrent use.
package report
