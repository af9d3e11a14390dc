// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imagehash

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"slices"

	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/sha3"
)

// Algorithm names a digest function.
type Algorithm string

const (
	SHA1    Algorithm = "sha1"
	SHA256  Algorithm = "sha256"
	SHA3256 Algorithm = "sha3-256"
	BLAKE3  Algorithm = "blake3"
	XXH3    Algorithm = "xxh3"
)

var constructors = map[Algorithm]func() hash.Hash{
	SHA1:    sha1.New,
	SHA256:  sha256.New,
	SHA3256: sha3.New256,
	BLAKE3:  func() hash.Hash { return blake3.New() },
	XXH3:    func() hash.Hash { return xxh3.New() },
}

// Algorithms returns the supported algorithm names, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(constructors))
	for algorithm := range constructors {
		names = append(names, string(algorithm))
	}
	slices.Sort(names)
	return names
}

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	algorithm := Algorithm(name)
	if _, ok := constructors[algorithm]; !ok {
		return "", fmt.Errorf("unknown hash algorithm %q (supported: %v)", name, Algorithms())
	}
	return algorithm, nil
}

// Digest is a finished image digest.
type Digest struct {
	Algorithm Algorithm
	Sum       []byte
}

// Hex returns the lowercase hex encoding of the digest.
func (d Digest) Hex() string { return hex.EncodeToString(d.Sum) }

// Stream accumulates a digest over pages fed in image order. Stream is
// not safe for concurrent use.
type Stream struct {
	algorithm Algorithm
	hasher    hash.Hash
	next      uint64
}

// New returns a Stream expecting the page at offset 0.
func New(algorithm Algorithm) (*Stream, error) {
	constructor, ok := constructors[algorithm]
	if !ok {
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}
	return &Stream{algorithm: algorithm, hasher: constructor()}, nil
}

// Valid reports whether every page so far continued the previous one.
func (s *Stream) Valid() bool { return s.hasher != nil }

// Next returns the image offset the stream expects next.
func (s *Stream) Next() uint64 { return s.next }

// Update feeds the logical bytes of the page at offset. A page that
// does not start exactly where the previous one ended invalidates the
// stream permanently. Update reports whether the stream is still valid.
func (s *Stream) Update(offset uint64, page []byte) bool {
	if s.hasher == nil {
		return false
	}
	if offset != s.next {
		s.Invalidate()
		return false
	}
	s.hasher.Write(page)
	s.next += uint64(len(page))
	return true
}

// Invalidate discards the accumulator.
func (s *Stream) Invalidate() { s.hasher = nil }

// Finalize returns the digest if the stream is still valid and covered
// exactly imageSize bytes.
func (s *Stream) Finalize(imageSize uint64) (Digest, bool) {
	if s.hasher == nil || s.next != imageSize {
		return Digest{}, false
	}
	return Digest{Algorithm: s.algorithm, Sum: s.hasher.Sum(nil)}, true
}
