// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package imagesource turns a disk image, memory dump or capture file
// into a sequence of fixed-size pages for the scan engine.
//
// A [Source] describes the image; [Source.Begin] returns an [Iterator]
// positioned at the first page. The iterator moves sequentially with
// Next or jumps with SeekBlock (used by sampling runs), reports its
// position as a raw byte offset, a page number and a completion
// fraction, and materialises the current page with Alloc.
//
// Alloc returns a [forensic.View] whose physical buffer extends past the
// page by the configured margin, so matches that begin near the end of
// a page can be completed without reading the next one. Before
// allocating, Alloc consults an [Allocator]; a refusal surfaces as an
// error wrapping [ErrAllocation], which callers treat as transient low
// memory and retry. Read failures are returned as ordinary errors.
//
// Iterators are not safe for concurrent use. The scan engine's single
// producer goroutine owns the iterator for the whole run.
package imagesource
