// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package imagesource

import (
	"os"

	"golang.org/x/sys/unix"
)

func adviseSequential(file *os.File) error {
	return unix.Fadvise(int(file.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}

func adviseRandom(file *os.File) error {
	return unix.Fadvise(int(file.Fd()), 0, 0, unix.FADV_RANDOM)
}
