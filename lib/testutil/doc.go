// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by bulkscan tests.
//
// [RequireReceive] and [RequireClosed] bound a wait on a channel with a
// wall-clock timeout so a stuck worker fails the test instead of
// hanging it. Everything else in the suite drives time through
// clock.Fake; these are the only real timeouts.
//
// [Image] builds a synthetic disk image with payloads placed at fixed
// offsets, and [WriteImage] stores one in the test's temporary
// directory.
package testutil
