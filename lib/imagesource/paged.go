// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imagesource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bureau-foundation/bulkscan/lib/forensic"
)

const (
	// DefaultPageSize is the logical page length.
	DefaultPageSize = 16 << 20

	// DefaultMarginSize is the lookahead appended to each page.
	DefaultMarginSize = 4 << 20
)

// Options configures a paged source.
type Options struct {
	// PageSize is the logical page length. Zero selects
	// DefaultPageSize.
	PageSize int

	// MarginSize is the lookahead read past each page. Negative
	// selects no margin; zero selects DefaultMarginSize.
	MarginSize int

	// Allocator gates every page allocation. Nil allows all.
	Allocator Allocator
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MarginSize == 0 {
		o.MarginSize = DefaultMarginSize
	}
	if o.MarginSize < 0 {
		o.MarginSize = 0
	}
	return o
}

// Paged is a Source over an io.ReaderAt.
type Paged struct {
	path    string
	reader  io.ReaderAt
	size    uint64
	options Options
	closer  io.Closer
	file    *os.File

	buffers sync.Pool
}

// Open opens the image file at path.
func Open(path string, options Options) (*Paged, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image %s: %w", path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat image %s: %w", path, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("image %s is a directory", path)
	}
	source := newPaged(path, file, uint64(info.Size()), options)
	source.closer = file
	source.file = file
	// The hint only affects readahead; a kernel that rejects it
	// still serves reads.
	_ = adviseSequential(file)
	return source, nil
}

// FromBytes returns a Source over an in-memory image.
func FromBytes(name string, data []byte, options Options) *Paged {
	return newPaged(name, bytes.NewReader(data), uint64(len(data)), options)
}

func newPaged(path string, reader io.ReaderAt, size uint64, options Options) *Paged {
	options = options.withDefaults()
	capacity := options.PageSize + options.MarginSize
	source := &Paged{
		path:    path,
		reader:  reader,
		size:    size,
		options: options,
	}
	source.buffers.New = func() any {
		buffer := make([]byte, capacity)
		return &buffer
	}
	return source
}

// Path returns the image path.
func (p *Paged) Path() string { return p.path }

// Size returns the image length.
func (p *Paged) Size() uint64 { return p.size }

// PageSize returns the logical page length.
func (p *Paged) PageSize() int { return p.options.PageSize }

// MarginSize returns the lookahead length.
func (p *Paged) MarginSize() int { return p.options.MarginSize }

// Begin returns an iterator at page 0.
func (p *Paged) Begin() Iterator { return &pagedIterator{source: p} }

// AdviseRandom tells the kernel the image will be read out of order.
// Sampling runs call it before seeking.
func (p *Paged) AdviseRandom() error {
	if p.file == nil {
		return nil
	}
	return adviseRandom(p.file)
}

// Close closes the image file.
func (p *Paged) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

func (p *Paged) maxBlocks() uint64 {
	pageSize := uint64(p.options.PageSize)
	return (p.size + pageSize - 1) / pageSize
}

func (p *Paged) getBuffer(length int) []byte {
	buffer := p.buffers.Get().(*[]byte)
	return (*buffer)[:length]
}

func (p *Paged) putBuffer(buffer []byte) {
	if cap(buffer) != p.options.PageSize+p.options.MarginSize {
		return
	}
	buffer = buffer[:cap(buffer)]
	p.buffers.Put(&buffer)
}

type pagedIterator struct {
	source     *Paged
	rawOffset  uint64
	pageNumber uint64
}

func (it *pagedIterator) Done() bool { return it.rawOffset >= it.source.size }

func (it *pagedIterator) Next() {
	it.rawOffset += uint64(it.source.options.PageSize)
	it.pageNumber++
}

func (it *pagedIterator) SeekBlock(index uint64) {
	it.pageNumber = index
	it.rawOffset = index * uint64(it.source.options.PageSize)
}

func (it *pagedIterator) SetRawOffset(offset uint64) {
	it.rawOffset = offset
	it.pageNumber = offset / uint64(it.source.options.PageSize)
}

func (it *pagedIterator) RawOffset() uint64 { return it.rawOffset }

func (it *pagedIterator) PageNumber() uint64 { return it.pageNumber }

func (it *pagedIterator) FractionDone() float64 {
	if it.source.size == 0 || it.rawOffset >= it.source.size {
		return 1
	}
	return float64(it.rawOffset) / float64(it.source.size)
}

func (it *pagedIterator) MaxBlocks() uint64 { return it.source.maxBlocks() }

func (it *pagedIterator) Address() forensic.Address { return forensic.At(it.rawOffset) }

func (it *pagedIterator) Alloc() (*forensic.View, error) {
	source := it.source
	if it.Done() {
		return nil, fmt.Errorf("page at %d: past end of %d-byte image", it.rawOffset, source.size)
	}
	remaining := source.size - it.rawOffset
	pageLength := min(uint64(source.options.PageSize), remaining)
	bufferLength := min(uint64(source.options.PageSize+source.options.MarginSize), remaining)

	if source.options.Allocator != nil {
		if err := source.options.Allocator.Reserve(int(bufferLength)); err != nil {
			return nil, fmt.Errorf("page at %d: %w: %w", it.rawOffset, ErrAllocation, err)
		}
	}

	buffer := source.getBuffer(int(bufferLength))
	read, err := source.reader.ReadAt(buffer, int64(it.rawOffset))
	if read < len(buffer) && err != nil && !errors.Is(err, io.EOF) {
		source.putBuffer(buffer)
		return nil, fmt.Errorf("reading page at %d of %s: %w", it.rawOffset, source.path, err)
	}
	if read < int(pageLength) {
		source.putBuffer(buffer)
		return nil, fmt.Errorf("reading page at %d of %s: short read of %d bytes, want %d",
			it.rawOffset, source.path, read, pageLength)
	}

	return forensic.NewView(it.Address(), buffer[:read], int(pageLength), source.putBuffer)
}
