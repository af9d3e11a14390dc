// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
)

// MaxFraction is the exclusive upper bound Plan accepts.
const MaxFraction = 0.2

var (
	// ErrInvalidFraction reports a fraction outside (0, 1).
	ErrInvalidFraction = errors.New("sampling fraction must satisfy 0 < f < 1")

	// ErrFractionTooLarge reports a fraction the rejection sampler
	// cannot serve efficiently.
	ErrFractionTooLarge = fmt.Errorf("sampling fraction must be below %g", MaxFraction)

	// ErrInvalidPasses reports a pass count below one.
	ErrInvalidPasses = errors.New("sampling passes must be >= 1")
)

// Parameters is a parsed "fraction[:passes]" argument.
type Parameters struct {
	Fraction float64
	Passes   int
}

// ParseParameters parses "fraction" or "fraction:passes". Passes
// defaults to 1.
func ParseParameters(text string) (Parameters, error) {
	fields := strings.Split(text, ":")
	if len(fields) > 2 {
		return Parameters{}, fmt.Errorf("sampling parameters %q must be fraction[:passes]", text)
	}
	fraction, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Parameters{}, fmt.Errorf("sampling fraction %q: %w", fields[0], err)
	}
	parameters := Parameters{Fraction: fraction, Passes: 1}
	if len(fields) == 2 {
		passes, err := strconv.Atoi(fields[1])
		if err != nil {
			return Parameters{}, fmt.Errorf("sampling passes %q: %w", fields[1], err)
		}
		parameters.Passes = passes
	}
	if err := parameters.Validate(); err != nil {
		return Parameters{}, err
	}
	return parameters, nil
}

// Validate checks the fraction and pass count. A fraction in
// [MaxFraction, 1) is a valid argument but Plan will reject it.
func (p Parameters) Validate() error {
	if !(p.Fraction > 0 && p.Fraction < 1) {
		return fmt.Errorf("%w: got %g", ErrInvalidFraction, p.Fraction)
	}
	if p.Passes < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPasses, p.Passes)
	}
	return nil
}

// TargetSize returns floor(maxBlocks * fraction).
func TargetSize(maxBlocks uint64, fraction float64) uint64 {
	return uint64(math.Floor(float64(maxBlocks) * fraction))
}

// Plan returns floor(maxBlocks*fraction) distinct page indices in
// [0, maxBlocks), ascending.
func Plan(maxBlocks uint64, fraction float64, random *rand.Rand) ([]uint64, error) {
	if !(fraction > 0 && fraction < 1) {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidFraction, fraction)
	}
	if fraction >= MaxFraction {
		return nil, fmt.Errorf("%w: got %g; scan the full image for denser coverage", ErrFractionTooLarge, fraction)
	}

	target := TargetSize(maxBlocks, fraction)
	chosen := make(map[uint64]struct{}, target)
	for uint64(len(chosen)) < target {
		chosen[random.Uint64N(maxBlocks)] = struct{}{}
	}

	blocks := make([]uint64, 0, len(chosen))
	for index := range chosen {
		blocks = append(blocks, index)
	}
	slices.Sort(blocks)
	return blocks, nil
}

// NewRand returns the generator Plan draws from. Runs with the same
// seed sample the same pages.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
