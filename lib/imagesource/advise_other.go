// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package imagesource

import "os"

func adviseSequential(*os.File) error { return nil }

func adviseRandom(*os.File) error { return nil }
