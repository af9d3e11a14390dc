// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package acquire

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/bulkscan/lib/clock"
	"github.com/bureau-foundation/bulkscan/lib/forensic"
	"github.com/bureau-foundation/bulkscan/lib/imagesource"
)

// ErrExhausted reports that allocation kept failing past the attempt
// limit.
var ErrExhausted = errors.New("too many page allocation errors in a row")

// Outcome classifies a single allocation attempt.
type Outcome int

const (
	// Acquired means the attempt produced a view.
	Acquired Outcome = iota

	// Retryable means the allocation was refused for lack of memory
	// and may succeed later.
	Retryable

	// Failed means the attempt failed for a reason retrying will not
	// fix. The page should be skipped.
	Failed

	// Exhausted means the attempt limit was reached.
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Acquired:
		return "acquired"
	case Retryable:
		return "retryable"
	case Failed:
		return "failed"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config bounds the retry loop.
type Config struct {
	// MaxAttempts is the number of allocation attempts before giving
	// up. Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the pause between attempts.
	Delay time.Duration
}

// Failure describes one refused allocation.
type Failure struct {
	Address forensic.Address
	Attempt int
	Limit   int
	Err     error
}

// Allocation is the part of an image iterator Acquire needs.
type Allocation interface {
	Address() forensic.Address
	Alloc() (*forensic.View, error)
}

// Acquirer runs the bounded retry loop.
type Acquirer struct {
	config    Config
	clock     clock.Clock
	logger    *slog.Logger
	onFailure func(Failure)
}

// New returns an Acquirer. onFailure, if non-nil, is called once per
// refused allocation before the delay.
func New(config Config, clock clock.Clock, logger *slog.Logger, onFailure func(Failure)) *Acquirer {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Acquirer{config: config, clock: clock, logger: logger, onFailure: onFailure}
}

// Attempt makes a single allocation attempt and classifies it.
func Attempt(source Allocation) (*forensic.View, Outcome, error) {
	view, err := source.Alloc()
	switch {
	case err == nil:
		return view, Acquired, nil
	case errors.Is(err, imagesource.ErrAllocation):
		return nil, Retryable, err
	default:
		return nil, Failed, err
	}
}

// Acquire returns the current page of source, retrying refused
// allocations. The returned error wraps ErrExhausted when the attempt
// limit is reached; any other error means only this page failed.
func (a *Acquirer) Acquire(source Allocation) (*forensic.View, error) {
	view, outcome, err := a.acquire(source)
	if outcome == Acquired {
		return view, nil
	}
	return nil, err
}

func (a *Acquirer) acquire(source Allocation) (*forensic.View, Outcome, error) {
	limit := a.config.MaxAttempts
	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		view, outcome, err := Attempt(source)
		if outcome != Retryable {
			return view, outcome, err
		}
		lastErr = err

		address := source.Address()
		a.logger.Warn("page allocation refused",
			"address", address.String(),
			"attempt", attempt,
			"limit", limit,
			"error", err,
		)
		if a.onFailure != nil {
			a.onFailure(Failure{Address: address, Attempt: attempt, Limit: limit, Err: err})
		}
		if attempt < limit {
			a.logger.Info("waiting before retrying allocation", "delay", a.config.Delay)
			a.clock.Sleep(a.config.Delay)
		}
	}

	a.logger.Error("too many allocation errors encountered in a row; diagnose and restart",
		"address", source.Address().String(), "attempts", limit)
	return nil, Exhausted, fmt.Errorf("%w: %d attempts at %s: %w", ErrExhausted, limit, source.Address(), lastErr)
}
