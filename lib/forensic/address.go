// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package forensic

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Segment is one decoding step in an Address: the label of the decoder
// that produced the stream, and an offset into the decoded stream.
type Segment struct {
	Label  string
	Offset uint64
}

// Address identifies the provenance of a byte range. The zero value is
// image offset 0.
type Address struct {
	base     uint64
	segments []Segment
}

// At returns the top-level address of image offset offset.
func At(offset uint64) Address {
	return Address{base: offset}
}

// Base returns the image offset where the outermost region starts.
func (a Address) Base() uint64 { return a.base }

// Depth returns the number of decoding steps in the address.
func (a Address) Depth() int { return len(a.segments) }

// Segments returns a copy of the address segments.
func (a Address) Segments() []Segment {
	return append([]Segment(nil), a.segments...)
}

// Offset returns the innermost offset: the image offset for a top-level
// address, otherwise the offset within the innermost decoded stream.
func (a Address) Offset() uint64 {
	if len(a.segments) == 0 {
		return a.base
	}
	return a.segments[len(a.segments)-1].Offset
}

// Shift returns the address of the byte n positions past a.
func (a Address) Shift(n uint64) Address {
	if len(a.segments) == 0 {
		return Address{base: a.base + n}
	}
	segments := a.Segments()
	segments[len(segments)-1].Offset += n
	return Address{base: a.base, segments: segments}
}

// Child returns the address of a region decoded by label from the bytes
// starting offset positions past a. The result is a.Shift(offset) with
// one segment appended.
func (a Address) Child(offset uint64, label string) Address {
	shifted := a.Shift(offset)
	shifted.segments = append(shifted.segments, Segment{Label: label})
	return shifted
}

// IsTopLevel reports whether the address refers directly to image
// bytes.
func (a Address) IsTopLevel() bool { return len(a.segments) == 0 }

// String renders the address as "base[-LABEL-offset]...".
func (a Address) String() string {
	if len(a.segments) == 0 {
		return strconv.FormatUint(a.base, 10)
	}
	var builder strings.Builder
	builder.WriteString(strconv.FormatUint(a.base, 10))
	for _, segment := range a.segments {
		builder.WriteByte('-')
		builder.WriteString(segment.Label)
		builder.WriteByte('-')
		builder.WriteString(strconv.FormatUint(segment.Offset, 10))
	}
	return builder.String()
}

// MarshalText implements encoding.TextMarshaler so addresses encode as
// their rendered string in reports.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse parses the rendered form produced by String. Labels may not
// contain dashes or start with a digit.
func Parse(text string) (Address, error) {
	parts := strings.Split(text, "-")
	if len(parts)%2 != 1 {
		return Address{}, fmt.Errorf("parsing forensic address %q: unbalanced label/offset pairs", text)
	}
	base, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Address{}, fmt.Errorf("parsing forensic address %q: base offset: %w", text, err)
	}
	address := Address{base: base}
	for i := 1; i < len(parts); i += 2 {
		label := parts[i]
		if label == "" {
			return Address{}, fmt.Errorf("parsing forensic address %q: empty label", text)
		}
		offset, err := strconv.ParseUint(parts[i+1], 10, 64)
		if err != nil {
			return Address{}, fmt.Errorf("parsing forensic address %q: offset after %s: %w", text, label, err)
		}
		address.segments = append(address.segments, Segment{Label: label, Offset: offset})
	}
	return address, nil
}

// Compare orders addresses by base offset, then segment by segment
// (offset, then label). A prefix sorts before its extensions.
func Compare(a, b Address) int {
	if c := cmp.Compare(a.base, b.base); c != 0 {
		return c
	}
	for i := 0; i < len(a.segments) && i < len(b.segments); i++ {
		if c := cmp.Compare(a.segments[i].Offset, b.segments[i].Offset); c != 0 {
			return c
		}
		if c := strings.Compare(a.segments[i].Label, b.segments[i].Label); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a.segments), len(b.segments))
}

// Equal reports whether a and b name the same region.
func (a Address) Equal(b Address) bool { return Compare(a, b) == 0 }
