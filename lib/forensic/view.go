// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package forensic

import "fmt"

// View is a byte range handed to scanners. A View has exactly one
// owner: the producer until it is submitted, then the work unit that
// carries it. Nothing may retain a View or its Data after Release.
type View struct {
	// Address is the provenance of Data[0].
	Address Address

	// Data holds the physical bytes: the page plus any lookahead
	// margin. Scanners must treat it as read-only.
	Data []byte

	// PageSize is the logical length, the number of leading bytes of
	// Data this view is responsible for. Matches starting at or past
	// PageSize belong to the next page.
	PageSize int

	release func([]byte)
}

// NewView returns a View over data whose logical page is the first
// pageSize bytes. Release, if non-nil, is called with data when the view
// is released so pooled storage can be reused.
func NewView(address Address, data []byte, pageSize int, release func([]byte)) (*View, error) {
	if pageSize < 0 || pageSize > len(data) {
		return nil, fmt.Errorf("view at %s: page size %d outside buffer of %d bytes", address, pageSize, len(data))
	}
	return &View{Address: address, Data: data, PageSize: pageSize, release: release}, nil
}

// Derived returns a View for bytes produced while scanning a parent
// view. The whole buffer is its page.
func Derived(address Address, data []byte) *View {
	return &View{Address: address, Data: data, PageSize: len(data)}
}

// BufSize returns the physical length.
func (v *View) BufSize() int { return len(v.Data) }

// Page returns the logical bytes.
func (v *View) Page() []byte { return v.Data[:v.PageSize] }

// Release returns the storage to its pool, if any, and drops the
// reference to it. Release is idempotent.
func (v *View) Release() {
	if v.Data == nil {
		return
	}
	if v.release != nil {
		v.release(v.Data)
	}
	v.Data = nil
	v.PageSize = 0
}
