// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for bulkscan.
//
// # Build information
//
// Four package-level variables may be injected via -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// [Current] merges them with the VCS stamp from runtime/debug, so a
// plain "go build" from a checkout still reports its revision.
// [Info] is the one-line form recorded in reports; [Full] adds the Go
// version and GOOS/GOARCH for --version.
//
// # Provenance
//
// A forensic report has to say exactly which program produced it.
// [SelfDigest] returns the SHA-256 of the running executable, which
// the CLI records in the report's creator section next to [Info].
package version
