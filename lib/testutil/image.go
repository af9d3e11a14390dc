// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Payload is a byte string placed at Offset in a synthetic image.
type Payload struct {
	Offset int
	Data   []byte
}

// Image returns size bytes of a repeating, non-compressible-looking
// filler with each payload copied over it. Payloads that run past size
// are truncated.
func Image(size int, payloads ...Payload) []byte {
	image := make([]byte, size)
	for i := range image {
		image[i] = byte(i*7 + i/251)
	}
	for _, payload := range payloads {
		if payload.Offset < 0 || payload.Offset >= size {
			continue
		}
		copy(image[payload.Offset:], payload.Data)
	}
	return image
}

// WriteImage stores data as a file in a fresh temporary directory and
// returns its path.
func WriteImage(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing image %s: %v", path, err)
	}
	return path
}
