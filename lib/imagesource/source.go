// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imagesource

import (
	"errors"

	"github.com/bureau-foundation/bulkscan/lib/forensic"
)

// ErrAllocation reports that a page buffer could not be allocated. It
// is the only Alloc failure callers should retry.
var ErrAllocation = errors.New("page buffer allocation failed")

// Source is a paged image.
type Source interface {
	// Path is the image location as given by the operator.
	Path() string

	// Size is the image length in bytes.
	Size() uint64

	// PageSize is the logical length of every page but the last.
	PageSize() int

	// Begin returns an iterator at page 0.
	Begin() Iterator

	// Close releases the underlying file, if any.
	Close() error
}

// Iterator walks the pages of a Source.
type Iterator interface {
	// Done reports whether the iterator is past the last page.
	Done() bool

	// Next advances to the following page.
	Next()

	// SeekBlock positions the iterator at page index.
	SeekBlock(index uint64)

	// SetRawOffset positions the iterator at an arbitrary byte offset.
	// Subsequent pages start at offset + k*PageSize.
	SetRawOffset(offset uint64)

	// RawOffset is the image offset of the current page.
	RawOffset() uint64

	// PageNumber is the index of the current page.
	PageNumber() uint64

	// FractionDone is RawOffset / Size, clamped to [0,1].
	FractionDone() float64

	// MaxBlocks is the number of pages in the image.
	MaxBlocks() uint64

	// Address is the forensic address of the current page.
	Address() forensic.Address

	// Alloc reads the current page and its margin into a new View.
	Alloc() (*forensic.View, error)
}

// Allocator decides whether a buffer of n bytes may be allocated now.
// A non-nil error refuses the allocation.
type Allocator interface {
	Reserve(n int) error
}

// AllocatorFunc adapts a function to the Allocator interface.
type AllocatorFunc func(n int) error

// Reserve calls f(n).
func (f AllocatorFunc) Reserve(n int) error { return f(n) }
