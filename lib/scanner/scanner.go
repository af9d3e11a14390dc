// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scanner

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/bulkscan/lib/feature"
	"github.com/bureau-foundation/bulkscan/lib/forensic"
)

// Info identifies a scanner. It is returned by Init.
type Info struct {
	Name        string
	Author      string
	Description string
	Version     string

	// FeatureNames lists the feature recorders Scan writes to.
	FeatureNames []string
}

// InitParams is passed to Scanner.Init.
type InitParams struct {
	Config *Config
	Logger *slog.Logger
}

// ScanParams is passed to Scanner.Scan.
type ScanParams struct {
	// View is the data to scan. It is read-only and owned by the
	// caller; a scanner must not retain it past Scan.
	View *forensic.View

	// Recurser scans derived views.
	Recurser Recurser

	Features *feature.Set
	Logger   *slog.Logger

	// Depth is the number of derived-view hops from the image page;
	// zero for a page read from the image.
	Depth int
}

// Recurser runs every enabled scanner over a derived view before
// returning, then releases it.
type Recurser interface {
	Recurse(view *forensic.View)
}

// Scanner is a pluggable content analyzer.
type Scanner interface {
	Init(params *InitParams) (Info, error)
	Scan(params *ScanParams)
}

// ErrUnknownScanner is returned by Enable and Disable for a name that
// was never registered.
var ErrUnknownScanner = errors.New("unknown scanner")

type entry struct {
	name    string
	scanner Scanner
	enabled bool
	info    Info
}

// Stats counts views scanned by a Set.
type Stats struct {
	Views    uint64
	Panics   uint64
	MaxDepth int
}

// Set is the registry of scanners for one run. Register, Enable,
// Disable and Init happen before any data is processed; Process is
// safe for concurrent use by the worker pool afterwards.
type Set struct {
	logger   *slog.Logger
	entries  []*entry
	features *feature.Set
	active   []*entry

	views    atomic.Uint64
	panics   atomic.Uint64
	maxDepth atomic.Int64

	observerMu sync.Mutex
	observer   func(address forensic.Address, depth int)
}

// NewSet returns an empty registry.
func NewSet(logger *slog.Logger) *Set {
	return &Set{logger: logger}
}

// Register adds a scanner under name, enabled. Registering a name twice
// replaces the earlier scanner.
func (s *Set) Register(name string, scanner Scanner) {
	for _, existing := range s.entries {
		if existing.name == name {
			existing.scanner = scanner
			return
		}
	}
	s.entries = append(s.entries, &entry{name: name, scanner: scanner, enabled: true})
}

// Names returns the registered scanner names in registration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.entries))
	for i, entry := range s.entries {
		names[i] = entry.name
	}
	return names
}

// Enable turns a registered scanner on. The name "all" enables every
// scanner.
func (s *Set) Enable(name string) error { return s.setEnabled(name, true) }

// Disable turns a registered scanner off. The name "all" disables every
// scanner.
func (s *Set) Disable(name string) error { return s.setEnabled(name, false) }

func (s *Set) setEnabled(name string, enabled bool) error {
	if name == "all" {
		for _, entry := range s.entries {
			entry.enabled = enabled
		}
		return nil
	}
	for _, entry := range s.entries {
		if entry.name == name {
			entry.enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("%w %q (registered: %v)", ErrUnknownScanner, name, s.Names())
}

// Init runs the Init phase of every enabled scanner. Knob bindings are
// recorded in config for help output. Init fails if any scanner fails or
// any knob value does not parse.
func (s *Set) Init(config *Config) error {
	if config == nil {
		config = NewConfig(nil)
	}
	s.active = s.active[:0]
	var errs []error
	for _, entry := range s.entries {
		if !entry.enabled {
			continue
		}
		config.scanning = entry.name
		info, err := entry.scanner.Init(&InitParams{
			Config: config,
			Logger: s.logger.With("scanner", entry.name),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("initializing scanner %s: %w", entry.name, err))
			continue
		}
		if info.Name == "" {
			info.Name = entry.name
		}
		entry.info = info
		s.active = append(s.active, entry)
	}
	config.scanning = ""
	errs = append(errs, config.Err())
	return errors.Join(errs...)
}

// Infos returns the Info of every initialized scanner.
func (s *Set) Infos() []Info {
	infos := make([]Info, len(s.active))
	for i, entry := range s.active {
		infos[i] = entry.info
	}
	return infos
}

// FeatureNames returns the sorted union of the feature recorders the
// initialized scanners write to.
func (s *Set) FeatureNames() []string {
	var names []string
	for _, entry := range s.active {
		for _, name := range entry.info.FeatureNames {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names
}

// SetFeatures attaches the recorders scanners write to. It must be
// called before Process.
func (s *Set) SetFeatures(features *feature.Set) {
	s.features = features
}

// SetObserver installs a callback invoked once per view before it is
// scanned.
func (s *Set) SetObserver(observer func(address forensic.Address, depth int)) {
	s.observerMu.Lock()
	defer s.observerMu.Unlock()
	s.observer = observer
}

// Process scans view and everything recursively derived from it, then
// releases view.
func (s *Set) Process(view *forensic.View) {
	s.scan(view, 0)
}

// Stats returns counters accumulated by Process.
func (s *Set) Stats() Stats {
	return Stats{
		Views:    s.views.Load(),
		Panics:   s.panics.Load(),
		MaxDepth: int(s.maxDepth.Load()),
	}
}

func (s *Set) scan(view *forensic.View, depth int) {
	defer view.Release()

	s.views.Add(1)
	for {
		current := s.maxDepth.Load()
		if int64(depth) <= current || s.maxDepth.CompareAndSwap(current, int64(depth)) {
			break
		}
	}
	s.observerMu.Lock()
	observer := s.observer
	s.observerMu.Unlock()
	if observer != nil {
		observer(view.Address, depth)
	}

	recurser := &recurser{set: s, depth: depth}
	for _, entry := range s.active {
		s.scanOne(entry, &ScanParams{
			View:     view,
			Recurser: recurser,
			Features: s.features,
			Logger:   s.logger,
			Depth:    depth,
		})
	}
}

func (s *Set) scanOne(entry *entry, params *ScanParams) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.panics.Add(1)
			s.logger.Error("scanner panicked",
				"scanner", entry.name,
				"address", params.View.Address.String(),
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
		}
	}()
	entry.scanner.Scan(params)
}

type recurser struct {
	set   *Set
	depth int
}

func (r *recurser) Recurse(view *forensic.View) {
	r.set.scan(view, r.depth+1)
}

// WorkUnit is one image page bound for the worker pool.
type WorkUnit struct {
	Set  *Set
	View *forensic.View
}

// Process scans the unit's view and its derived subtree.
func (u WorkUnit) Process() {
	u.Set.Process(u.View)
}
