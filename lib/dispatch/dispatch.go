// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/bulkscan/lib/acquire"
	"github.com/bureau-foundation/bulkscan/lib/clock"
	"github.com/bureau-foundation/bulkscan/lib/config"
	"github.com/bureau-foundation/bulkscan/lib/forensic"
	"github.com/bureau-foundation/bulkscan/lib/imagehash"
	"github.com/bureau-foundation/bulkscan/lib/imagesource"
	"github.com/bureau-foundation/bulkscan/lib/metrics"
	"github.com/bureau-foundation/bulkscan/lib/progress"
	"github.com/bureau-foundation/bulkscan/lib/report"
	"github.com/bureau-foundation/bulkscan/lib/sampling"
	"github.com/bureau-foundation/bulkscan/lib/scanner"
	"github.com/bureau-foundation/bulkscan/lib/workpool"
)

// Options controls one run.
type Options struct {
	Workers    int
	QueueDepth int

	Acquire acquire.Config

	// MaxWait bounds the drain; zero or negative waits forever.
	MaxWait        time.Duration
	StatusInterval time.Duration

	NotifyRate int
	Quiet      bool

	// Sampled selects sampling mode using Sampling and SamplingSeed.
	Sampled      bool
	Sampling     sampling.Parameters
	SamplingSeed uint64

	OffsetStart uint64
	OffsetEnd   uint64
	PageStart   uint64

	// Hash is the image digest algorithm; empty disables hashing.
	Hash imagehash.Algorithm

	ReportReadErrors bool
}

// OptionsFromConfig builds Options from a validated configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	parameters, sampled, err := cfg.SamplingParameters()
	if err != nil {
		return Options{}, fmt.Errorf("sampling: %w", err)
	}
	algorithm, _, err := cfg.HashAlgorithm()
	if err != nil {
		return Options{}, fmt.Errorf("hash: %w", err)
	}
	return Options{
		Workers:    cfg.Workers,
		QueueDepth: cfg.EffectiveQueueDepth(),
		Acquire: acquire.Config{
			MaxAttempts: cfg.Allocation.MaxAttempts,
			Delay:       cfg.Allocation.RetryDelay,
		},
		MaxWait:          cfg.Drain.MaxWait,
		StatusInterval:   cfg.Drain.StatusInterval,
		NotifyRate:       cfg.Progress.NotifyRate,
		Quiet:            cfg.Progress.Quiet,
		Sampled:          sampled,
		Sampling:         parameters,
		SamplingSeed:     cfg.SamplingSeed,
		OffsetStart:      cfg.Range.OffsetStart,
		OffsetEnd:        cfg.Range.OffsetEnd,
		PageStart:        cfg.Range.PageStart,
		Hash:             algorithm,
		ReportReadErrors: cfg.ReportReadErrors,
	}, nil
}

// Params holds the collaborators of a Dispatcher.
type Params struct {
	Source   imagesource.Source
	Scanners *scanner.Set
	Report   *report.Writer

	// Metrics may be nil.
	Metrics *metrics.Run

	Clock  clock.Clock
	Logger *slog.Logger

	// Stdout receives progress and status lines; Stderr receives read
	// error notices and drain timeout guidance.
	Stdout io.Writer
	Stderr io.Writer
}

// Result summarizes a finished run.
type Result struct {
	RunID string

	// Submitted counts work units handed to the pool.
	Submitted uint64

	// Skipped counts pages not submitted, by reason.
	Skipped map[string]uint64

	// TotalBytes is the sum of the logical page sizes submitted.
	TotalBytes uint64

	// Digest is the image digest; HasDigest is false when hashing was
	// disabled or the hashed pages were not one contiguous run over
	// the whole image.
	Digest    imagehash.Digest
	HasDigest bool

	DrainDuration time.Duration
}

// Dispatcher runs one scan. It is not reusable.
type Dispatcher struct {
	options  Options
	source   imagesource.Source
	scanners *scanner.Set
	report   *report.Writer
	metrics  *metrics.Run
	clock    clock.Clock
	logger   *slog.Logger
	stdout   io.Writer
	stderr   io.Writer

	acquirer *acquire.Acquirer
	pool     *workpool.Pool

	// Producer state.
	seen       map[string]struct{}
	hash       *imagehash.Stream
	progress   *progress.Tracker
	totalBytes uint64
	submitted  uint64
	skipped    map[string]uint64
	onSubmit   func(forensic.Address)
}

// New returns a Dispatcher for one run over params.Source.
func New(params Params, options Options) (*Dispatcher, error) {
	if options.Workers < 1 {
		return nil, fmt.Errorf("dispatch: need at least one worker, got %d", options.Workers)
	}
	if options.StatusInterval <= 0 {
		return nil, fmt.Errorf("dispatch: status interval must be positive, got %s", options.StatusInterval)
	}
	if options.Sampled {
		if err := options.Sampling.Validate(); err != nil {
			return nil, fmt.Errorf("dispatch: %w", err)
		}
	}

	d := &Dispatcher{
		options:  options,
		source:   params.Source,
		scanners: params.Scanners,
		report:   params.Report,
		metrics:  params.Metrics,
		clock:    params.Clock,
		logger:   params.Logger,
		stdout:   params.Stdout,
		stderr:   params.Stderr,
		seen:     make(map[string]struct{}),
		skipped:  make(map[string]uint64),
	}
	if d.stdout == nil {
		d.stdout = io.Discard
	}
	if d.stderr == nil {
		d.stderr = io.Discard
	}

	if options.Hash != "" {
		stream, err := imagehash.New(options.Hash)
		if err != nil {
			return nil, fmt.Errorf("dispatch: %w", err)
		}
		d.hash = stream
	}
	d.acquirer = acquire.New(options.Acquire, d.clock, d.logger, d.allocationRefused)
	return d, nil
}

// OnSubmit installs a callback invoked on the producer goroutine with
// the address of every work unit after it is submitted.
func (d *Dispatcher) OnSubmit(callback func(forensic.Address)) {
	d.onSubmit = callback
}

// Run scans the image, drains the pool and finalizes the report. It
// returns the first fatal error: allocation exhaustion, an invalid
// sampling plan, a drain timeout or a report flush failure. Per-page
// read failures are not errors.
func (d *Dispatcher) Run() (Result, error) {
	runID := uuid.NewString()
	d.progress = progress.New(d.stdout, d.clock, d.options.NotifyRate, d.options.Sampled)
	d.report.Push("runtime",
		report.A("xmlns:debug", DebugNamespace),
		report.A("run_id", runID),
		report.A("start_time", d.clock.Now().UTC().Format(time.RFC3339)),
	)
	d.pool = workpool.New(d.options.Workers, d.options.QueueDepth, d.logger)
	d.logger.Info("scan starting",
		"run_id", runID,
		"image", d.source.Path(),
		"size", d.source.Size(),
		"page_size", d.source.PageSize(),
		"workers", d.pool.Workers(),
		"sampled", d.options.Sampled,
	)

	produceErr := d.produce()
	if produceErr == nil && !d.options.Quiet {
		fmt.Fprintln(d.stdout, "All data are read; waiting for workers to finish...")
	}

	drainDuration, drainErr := d.drain()
	if drainErr == nil && !d.options.Quiet {
		fmt.Fprintln(d.stdout, "All workers finished!")
	}

	result := Result{
		RunID:         runID,
		Submitted:     d.submitted,
		Skipped:       d.skipped,
		TotalBytes:    d.totalBytes,
		DrainDuration: drainDuration,
	}
	if d.hash != nil {
		result.Digest, result.HasDigest = d.hash.Finalize(d.source.Size())
	}

	stats := d.scanners.Stats()
	d.metrics.SetScanStats(stats.Views, stats.MaxDepth, stats.Panics)
	d.metrics.SetDrainDuration(drainDuration)
	d.metrics.SetImageSize(d.source.Size())

	finalizeErr := d.finalize(result)
	return result, errors.Join(produceErr, drainErr, finalizeErr)
}

// DebugNamespace is bound to the "debug" prefix of the exception
// entries in the runtime section.
const DebugNamespace = "http://www.github.com/simsong/bulk_extractor/issues"

// blockOutcome is the result of considering one page.
type blockOutcome int

const (
	blockDispatched blockOutcome = iota
	blockSkipped
	// blockPastEnd means the page is at or beyond OffsetEnd.
	blockPastEnd
)

// Skip reasons.
const (
	skipOutOfRange = "out_of_range"
	skipSeen       = "seen"
	skipReadError  = "read_error"
)

func (d *Dispatcher) produce() error {
	iterator := d.source.Begin()

	if !d.options.Sampled {
		if d.options.OffsetStart > 0 {
			iterator.SetRawOffset(d.options.OffsetStart)
		}
		for ; !iterator.Done(); iterator.Next() {
			outcome, err := d.processBlock(iterator)
			if err != nil {
				return err
			}
			if outcome == blockPastEnd {
				break
			}
		}
		return nil
	}

	// Sampled pages never form one contiguous run from offset zero.
	if d.hash != nil {
		d.hash.Invalidate()
	}
	if advisor, ok := d.source.(interface{ AdviseRandom() error }); ok {
		if err := advisor.AdviseRandom(); err != nil {
			d.logger.Debug("random access hint failed", "error", err)
		}
	}

	random := sampling.NewRand(d.options.SamplingSeed)
	for pass := 1; pass <= d.options.Sampling.Passes; pass++ {
		blocks, err := sampling.Plan(iterator.MaxBlocks(), d.options.Sampling.Fraction, random)
		if err != nil {
			return fmt.Errorf("planning sampling pass %d: %w", pass, err)
		}
		d.logger.Info("sampling pass",
			"pass", pass,
			"passes", d.options.Sampling.Passes,
			"blocks", len(blocks),
			"max_blocks", iterator.MaxBlocks(),
		)
		for _, index := range blocks {
			iterator.SeekBlock(index)
			outcome, err := d.processBlock(iterator)
			if err != nil {
				return err
			}
			if outcome == blockPastEnd {
				break
			}
		}
	}
	return nil
}

// processBlock considers the iterator's current page. A non-nil error
// is fatal for the run.
func (d *Dispatcher) processBlock(iterator imagesource.Iterator) (blockOutcome, error) {
	rawOffset := iterator.RawOffset()
	if d.options.OffsetEnd != 0 && d.options.OffsetEnd <= rawOffset {
		return blockPastEnd, nil
	}

	address := iterator.Address()
	key := address.String()
	if iterator.PageNumber() < d.options.PageStart || rawOffset < d.options.OffsetStart {
		return d.skip(key, skipOutOfRange), nil
	}
	if _, seen := d.seen[key]; seen {
		return d.skip(key, skipSeen), nil
	}

	view, err := d.acquirer.Acquire(iterator)
	if err != nil {
		if errors.Is(err, acquire.ErrExhausted) {
			return blockSkipped, err
		}
		d.logger.Warn("skipping unreadable page", "address", key, "error", err)
		d.report.Emit("debug:exception", err.Error(), true, report.A("pos0", key))
		if d.options.ReportReadErrors {
			fmt.Fprintf(d.stderr, "error reading page %s: %v\n", key, err)
		}
		return d.skip(key, skipReadError), nil
	}

	d.seen[key] = struct{}{}
	if d.hash != nil && d.hash.Valid() && !d.hash.Update(rawOffset, view.Page()) {
		d.logger.Info("image hash abandoned; pages are not contiguous from offset 0",
			"address", key, "expected_offset", d.hash.Next())
	}
	d.totalBytes += uint64(view.PageSize)
	pageSize := view.PageSize

	unit := scanner.WorkUnit{Set: d.scanners, View: view}
	if err := d.pool.Submit(unit.Process); err != nil {
		view.Release()
		return blockSkipped, fmt.Errorf("submitting page %s: %w", key, err)
	}
	d.submitted++
	d.metrics.BlockDispatched(pageSize)
	if d.onSubmit != nil {
		d.onSubmit(address)
	}

	if !d.options.Quiet {
		d.progress.Notify(key, iterator.FractionDone())
	}
	return blockDispatched, nil
}

func (d *Dispatcher) skip(key, reason string) blockOutcome {
	d.logger.Debug("page skipped", "address", key, "reason", reason)
	d.skipped[reason]++
	d.metrics.BlockSkipped(reason)
	return blockSkipped
}

// allocationRefused is the acquirer's failure hook.
func (d *Dispatcher) allocationRefused(failure acquire.Failure) {
	d.metrics.AllocationRefused()
	d.report.Emit("debug:exception", failure.Err.Error(), true,
		report.A("pos0", failure.Address.String()),
		report.A("attempt", failure.Attempt),
		report.A("limit", failure.Limit),
	)
	fmt.Fprintf(d.stderr, "page allocation refused at %s (attempt %d of %d): %v\n",
		failure.Address, failure.Attempt, failure.Limit, failure.Err)
}

// finalize closes the runtime section, writes the source section and
// flushes the report.
func (d *Dispatcher) finalize(result Result) error {
	d.report.Emit("pages_submitted", fmt.Sprint(result.Submitted), true)
	d.report.Emit("total_bytes", fmt.Sprint(result.TotalBytes), true)
	if err := d.report.Pop(); err != nil {
		return fmt.Errorf("closing runtime section: %w", err)
	}

	d.report.Push("source")
	d.report.Emit("image_filename", d.source.Path(), true)
	d.report.Emit("image_size", fmt.Sprint(d.source.Size()), true)
	if result.HasDigest {
		d.report.Emit("hashdigest", result.Digest.Hex(), true,
			report.A("type", strings.ToUpper(string(result.Digest.Algorithm))))
	}
	if err := d.report.Pop(); err != nil {
		return fmt.Errorf("closing source section: %w", err)
	}

	if err := d.report.Flush(); err != nil {
		return fmt.Errorf("flushing report: %w", err)
	}
	return nil
}
