// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sampling chooses which pages a statistical sampling run
// visits.
//
// [Plan] draws uniformly random page indices into a set until it holds
// floor(maxBlocks * fraction) distinct entries, then returns them in
// ascending order so the image is still read front to back. Drawing
// with rejection of duplicates slows down sharply as the fraction
// grows, so Plan refuses fractions of [MaxFraction] or more rather than
// silently switching strategy. Runs that need denser coverage should
// scan the whole image instead.
//
// [ParseParameters] parses the operator's "fraction[:passes]" argument.
package sampling
