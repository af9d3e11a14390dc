// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package decompress

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/bulkscan/lib/forensic"
	"github.com/bureau-foundation/bulkscan/lib/scanner"
)

// DefaultMaxDecodedSize caps the output of a single decoded stream.
const DefaultMaxDecodedSize = 256 << 20

// FeatureName is the feature recorder every decompress scanner writes.
const FeatureName = "compressed"

type format struct {
	name  string
	label string
	magic []byte
	open  func(io.Reader) (io.ReadCloser, error)
}

var (
	gzipFormat = format{
		name:  "gzip",
		label: "GZIP",
		magic: []byte{0x1f, 0x8b, 0x08},
		open: func(r io.Reader) (io.ReadCloser, error) {
			reader, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			reader.Multistream(false)
			return reader, nil
		},
	}
	zstdFormat = format{
		name:  "zstd",
		label: "ZSTD",
		magic: []byte{0x28, 0xb5, 0x2f, 0xfd},
		open: func(r io.Reader) (io.ReadCloser, error) {
			decoder, err := zstd.NewReader(r,
				zstd.WithDecoderConcurrency(1),
				zstd.WithDecoderLowmem(true),
			)
			if err != nil {
				return nil, err
			}
			return decoder.IOReadCloser(), nil
		},
	}
	lz4Format = format{
		name:  "lz4",
		label: "LZ4",
		magic: []byte{0x04, 0x22, 0x4d, 0x18},
		open: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(lz4.NewReader(r)), nil
		},
	}
)

// Scanner decodes one compression format.
type Scanner struct {
	format  format
	maxSize uint64
}

// NewGzip returns the gzip scanner (magic 1f 8b 08, one member per
// match).
func NewGzip() *Scanner { return &Scanner{format: gzipFormat, maxSize: DefaultMaxDecodedSize} }

// NewZstd returns the Zstandard frame scanner.
func NewZstd() *Scanner { return &Scanner{format: zstdFormat, maxSize: DefaultMaxDecodedSize} }

// NewLZ4 returns the LZ4 frame scanner.
func NewLZ4() *Scanner { return &Scanner{format: lz4Format, maxSize: DefaultMaxDecodedSize} }

// Register adds all decompress scanners to set.
func Register(set *scanner.Set) {
	for _, s := range []*Scanner{NewGzip(), NewZstd(), NewLZ4()} {
		set.Register(s.format.name, s)
	}
}

// Init binds the <name>_max_uncompr_size knob.
func (s *Scanner) Init(params *scanner.InitParams) (scanner.Info, error) {
	key := s.format.name + "_max_uncompr_size"
	params.Config.Uint64(key, &s.maxSize,
		fmt.Sprintf("maximum size of a decompressed %s stream", s.format.name))
	if s.maxSize == 0 {
		return scanner.Info{}, fmt.Errorf("%s must be positive", key)
	}
	return scanner.Info{
		Name:         s.format.name,
		Author:       "The Bureau Authors",
		Description:  fmt.Sprintf("finds %s streams and scans their decompressed contents", s.format.name),
		Version:      "1.0",
		FeatureNames: []string{FeatureName},
	}, nil
}

// Scan searches the page for the format's magic and recurses into
// every stream that decodes to at least one byte.
func (s *Scanner) Scan(params *scanner.ScanParams) {
	view := params.View
	data := view.Data
	magic := s.format.magic
	recorder := params.Features.Recorder(FeatureName)

	for i := 0; i < view.PageSize && i+len(magic) <= len(data); i++ {
		next := bytes.Index(data[i:], magic)
		if next < 0 {
			return
		}
		i += next
		if i >= view.PageSize {
			return
		}

		decoded := s.decode(data[i:])
		if len(decoded) == 0 {
			continue
		}
		address := view.Address.Child(uint64(i), s.format.label)
		recorder.Record(view.Address.Shift(uint64(i)), s.format.label,
			fmt.Sprintf("decoded=%d", len(decoded)))
		params.Recurser.Recurse(forensic.Derived(address, decoded))
	}
}

// decode inflates the stream at the start of data into at most maxSize
// bytes. Output produced before an error is returned.
func (s *Scanner) decode(data []byte) []byte {
	reader, err := s.format.open(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	defer reader.Close()

	limit := int64(math.MaxInt64)
	if s.maxSize < math.MaxInt64 {
		limit = int64(s.maxSize)
	}
	var output bytes.Buffer
	io.Copy(&output, io.LimitReader(reader, limit))
	return output.Bytes()
}
