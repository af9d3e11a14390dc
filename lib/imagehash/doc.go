// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package imagehash computes a digest of the source image as a side
// effect of scanning it.
//
// Reading a multi-terabyte image twice just to hash it is expensive, so
// the scan engine feeds each page to a [Stream] as it dispatches the
// page. The digest is only meaningful if the pages arrive in order,
// contiguously, from byte 0: the Stream tracks the offset it expects
// next and, the first time a page arrives anywhere else, discards its
// accumulator for good. Sampling runs and runs with a start offset
// therefore never produce a digest. A digest is also withheld when the
// stream stopped short of the end of the image.
//
// Supported algorithms are listed by [Algorithms]: sha1 (the historic
// DFXML default), sha256, sha3-256, blake3 and xxh3.
package imagehash
