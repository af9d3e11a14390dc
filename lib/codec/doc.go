// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for machine-readable
// scan reports.
//
// Reports are written in two formats: DFXML-style XML for people and
// existing forensic tooling, and CBOR for programs that consume scan
// results in bulk. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items, so rescanning the same image with the same
// configuration produces byte-identical report bodies apart from the
// timestamps and run id.
//
//	data, err := codec.Marshal(document)
//	err = codec.Unmarshal(data, &document)
//
// Types that implement encoding.TextMarshaler (such as
// forensic.Address) are encoded as CBOR text strings.
package codec
