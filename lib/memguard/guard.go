// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memguard

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// ErrLowMemory is returned by Reserve when an allocation would drop
// available memory below the floor.
var ErrLowMemory = errors.New("available memory below floor")

// Guard checks available memory against a floor.
type Guard struct {
	floor     uint64
	available func() (uint64, error)
}

// New returns a Guard that keeps at least floor bytes available. A
// zero floor disables the check.
func New(floor uint64) *Guard {
	return &Guard{floor: floor, available: systemAvailable}
}

func systemAvailable() (uint64, error) {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return stat.Available, nil
}

// Floor returns the configured floor in bytes.
func (g *Guard) Floor() uint64 { return g.floor }

// Reserve reports whether n more bytes may be allocated. When the
// platform cannot report available memory the allocation is allowed.
func (g *Guard) Reserve(n int) error {
	if g.floor == 0 {
		return nil
	}
	available, err := g.available()
	if err != nil {
		return nil
	}
	if available < g.floor+uint64(n) {
		return fmt.Errorf("%w: %d bytes available, need %d plus %d floor",
			ErrLowMemory, available, n, g.floor)
	}
	return nil
}
