// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package forensic defines the two values every other part of the scan
// engine passes around: the [Address] naming where a byte range came
// from, and the [View] carrying the bytes themselves.
//
// An Address is a base offset into the image followed by zero or more
// segments, one per decoding step that produced the bytes. The rendered
// form joins them with dashes:
//
//	1000            byte 1000 of the image
//	1000-GZIP-250   byte 250 of the gzip stream that starts at image byte 1000
//
// Addresses are immutable. [Address.Child] derives the address of a
// decoded region by appending exactly one segment, so provenance is
// preserved through any recursion depth and two distinct regions never
// share an address.
//
// A View owns its bytes. It distinguishes the logical page (the bytes
// this view is responsible for scanning) from the physical buffer,
// which may carry a lookahead margin so that patterns straddling a page
// boundary can still be matched in full.
package forensic
