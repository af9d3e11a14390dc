// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imagehash

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/sha3"
)

func image() []byte {
	return bytes.Repeat([]byte("0123456789abcdef"), 64) // 1024 bytes
}

func wholeImageDigest(t *testing.T, algorithm Algorithm, data []byte) string {
	t.Helper()
	switch algorithm {
	case SHA1:
		sum := sha1.Sum(data)
		return hex.EncodeToString(sum[:])
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	case SHA3256:
		sum := sha3.Sum256(data)
		return hex.EncodeToString(sum[:])
	case BLAKE3:
		sum := blake3.Sum256(data)
		return hex.EncodeToString(sum[:])
	case XXH3:
		hasher := xxh3.New()
		hasher.Write(data)
		return hex.EncodeToString(hasher.Sum(nil))
	}
	t.Fatalf("no reference digest for %s", algorithm)
	return ""
}

func TestSequentialPagesMatchWholeImage(t *testing.T) {
	data := image()
	for _, name := range Algorithms() {
		t.Run(name, func(t *testing.T) {
			algorithm, err := ParseAlgorithm(name)
			if err != nil {
				t.Fatal(err)
			}
			stream, err := New(algorithm)
			if err != nil {
				t.Fatal(err)
			}
			for offset := 0; offset < len(data); offset += 100 {
				end := min(offset+100, len(data))
				if !stream.Update(uint64(offset), data[offset:end]) {
					t.Fatalf("stream invalidated at %d", offset)
				}
			}
			digest, ok := stream.Finalize(uint64(len(data)))
			if !ok {
				t.Fatal("Finalize withheld the digest of a complete sequential stream")
			}
			if got, want := digest.Hex(), wholeImageDigest(t, algorithm, data); got != want {
				t.Errorf("digest = %s, want %s", got, want)
			}
		})
	}
}

func TestGapInvalidatesPermanently(t *testing.T) {
	data := image()
	stream, _ := New(SHA1)
	stream.Update(0, data[:100])
	if stream.Update(200, data[200:300]) {
		t.Fatal("Update after a gap reported a valid stream")
	}
	// Feeding the missing page afterwards must not resurrect it.
	if stream.Update(100, data[100:200]) {
		t.Fatal("stream resumed after invalidation")
	}
	if stream.Valid() {
		t.Error("Valid() = true after a gap")
	}
	if _, ok := stream.Finalize(uint64(len(data))); ok {
		t.Error("Finalize produced a digest after a gap")
	}
}

func TestStreamMustStartAtZero(t *testing.T) {
	data := image()
	stream, _ := New(SHA256)
	if stream.Update(512, data[512:]) {
		t.Error("a stream starting past offset 0 should be invalid")
	}
}

func TestOverlapInvalidates(t *testing.T) {
	data := image()
	stream, _ := New(SHA256)
	stream.Update(0, data[:100])
	if stream.Update(50, data[50:150]) {
		t.Error("overlapping page should invalidate the stream")
	}
}

func TestShortStreamWithholdsDigest(t *testing.T) {
	data := image()
	stream, _ := New(BLAKE3)
	stream.Update(0, data[:512])
	if _, ok := stream.Finalize(uint64(len(data))); ok {
		t.Error("Finalize produced a digest for a partial image")
	}
	if !stream.Valid() {
		t.Error("a contiguous partial stream is still valid")
	}
}

func TestParseAlgorithmRejectsUnknown(t *testing.T) {
	if _, err := ParseAlgorithm("md5"); err == nil {
		t.Error("ParseAlgorithm(md5) succeeded")
	}
}
