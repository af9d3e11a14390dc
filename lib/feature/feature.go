// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package feature

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bureau-foundation/bulkscan/lib/forensic"
)

// Recorder accepts findings. Implementations are safe for concurrent
// use.
type Recorder interface {
	Record(address forensic.Address, feature, context string)
}

// Set is a collection of named recorders.
type Set struct {
	recorders map[string]Recorder
	closers   []func() error
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{recorders: make(map[string]Recorder)}
}

// Add registers recorder under name, replacing any previous one.
func (s *Set) Add(name string, recorder Recorder) {
	s.recorders[name] = recorder
}

// Recorder returns the recorder registered as name, or one that
// discards everything.
func (s *Set) Recorder(name string) Recorder {
	if s == nil {
		return discard{}
	}
	if recorder, ok := s.recorders[name]; ok {
		return recorder
	}
	return discard{}
}

// Names returns the registered recorder names, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.recorders))
	for name := range s.recorders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close flushes and closes every file-backed recorder.
func (s *Set) Close() error {
	var errs []error
	for _, closer := range s.closers {
		errs = append(errs, closer())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// OpenDir creates directory if needed and a "<name>.txt" recorder in it
// for each name.
func OpenDir(directory string, names []string) (*Set, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating feature directory %s: %w", directory, err)
	}
	set := NewSet()
	for _, name := range names {
		path := filepath.Join(directory, name+".txt")
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("creating feature file %s: %w", path, err)
		}
		recorder := &fileRecorder{file: file, writer: bufio.NewWriter(file)}
		fmt.Fprintf(recorder.writer, "# Feature-Recorder: %s\n", name)
		set.Add(name, recorder)
		set.closers = append(set.closers, recorder.close)
	}
	return set, nil
}

type fileRecorder struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

func (r *fileRecorder) Record(address forensic.Address, feature, context string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.writer, "%s\t%s\t%s\n", address, escape(feature), escape(context))
}

func (r *fileRecorder) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Flush(); err != nil {
		r.file.Close()
		return fmt.Errorf("flushing %s: %w", r.file.Name(), err)
	}
	return r.file.Close()
}

var escaper = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)

func escape(text string) string { return escaper.Replace(text) }

type discard struct{}

func (discard) Record(forensic.Address, string, string) {}

// Entry is one finding held by a Memory recorder.
type Entry struct {
	Address forensic.Address
	Feature string
	Context string
}

// Memory is a Recorder that keeps findings in memory.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// Record appends a finding.
func (m *Memory) Record(address forensic.Address, feature, context string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{Address: address, Feature: feature, Context: context})
}

// Entries returns the findings sorted by address.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := slices.Clone(m.entries)
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return forensic.Compare(a.Address, b.Address)
	})
	return entries
}
