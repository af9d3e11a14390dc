// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bulkscan reads a disk image in fixed-size pages and runs every
// enabled content scanner over each page on a pool of workers.
// Scanners that find embedded compressed streams (gzip, zstd, LZ4
// frames) decode them and rescan the decoded bytes in place, to any
// depth.
//
// Usage:
//
//	bulkscan [flags] IMAGE
//
// Settings come from a single optional config file (--config, or the
// BULKSCAN_CONFIG environment variable) with command-line flags
// applied on top. Findings are written to one file per feature
// recorder under --feature-dir. The run report (XML, or CBOR when the
// report path ends in .cbor) records the program's provenance, every
// page that had to be retried or skipped, and the image digest when
// the whole image was hashed.
//
// Exit status is 1 when the run could not complete: a configuration
// error, too many consecutive page allocation failures, or workers
// that did not drain within the maximum wait.
package main
