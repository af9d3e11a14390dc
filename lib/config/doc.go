// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for bulkscan runs.
//
// Configuration is loaded from a single file specified by either the
// BULKSCAN_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search; without a file the run uses [Default] plus command-line
// flags. Files ending in .json or .jsonc are read as JSON with comments
// and trailing commas; anything else is YAML.
//
// Variable expansion is performed on output path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- run configuration: pool, image paging, allocation
//     retry, drain, progress, sampling, range, hashing, scanners, output
//   - [Default] -- returns a Config with the standard defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every invalid field at once
package config
