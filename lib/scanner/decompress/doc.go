// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package decompress provides scanners that find compressed streams
// embedded in a view and rescan their decoded contents.
//
// Each scanner searches the logical page for its format's magic bytes.
// A match may run into the lookahead margin: decoding reads from the
// match to the end of the physical buffer. Output is capped by a
// per-format knob (gzip_max_uncompr_size and friends, 256 MiB by
// default). Whatever was decoded before an error or the cap is still
// scanned, since truncated and corrupt streams are the norm in carved
// data; a match that decodes to nothing is dropped silently.
//
// Decoded bytes are handed to the recurser as a view addressed
// parent.Child(offset, LABEL), where LABEL is GZIP, ZSTD or LZ4.
package decompress
