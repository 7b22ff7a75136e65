package main

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

type HashType uint8

const (
	HashNull HashType = iota
	HashTypeMD5
	HashTypeSHA1
	HashTypeSHA256
	HashTypeSHA512
)

func (ht HashType) String() string {
	switch ht {
	case HashTypeMD5:
		return "md5"
	case HashTypeSHA1:
		return "sha1"
	case HashTypeSHA256:
		return "sha256"
	case HashTypeSHA512:
		return "sha512"
	default:
		return "null"
	}
}

// ParseHashType converts a name such as "sha256" into a [HashType].
func ParseHashType(s string) (HashType, error) {
	for ht := range HashFuncs {
		if strings.EqualFold(strings.TrimSpace(s), ht.String()) {
			return ht, nil
		}
	}
	return HashNull, fmt.Errorf("hash type (%s) not supported", s)
}

// ParseHashTypes parses a list of hash names in canonical order, ignoring duplicates.
func ParseHashTypes(names []string) ([]HashType, error) {
	seen := make(map[HashType]bool, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		ht, err := ParseHashType(name)
		if err != nil {
			return nil, err
		}
		seen[ht] = true
	}
	types := make([]HashType, 0, len(seen))
	for _, ht := range []HashType{HashTypeMD5, HashTypeSHA1, HashTypeSHA256, HashTypeSHA512} {
		if seen[ht] {
			types = append(types, ht)
		}
	}
	return types, nil
}

var HashFuncs = map[HashType]func() hash.Hash{
	HashTypeMD5:    md5.New,
	HashTypeSHA1:   sha1.New,
	HashTypeSHA256: sha256.New,
	HashTypeSHA512: sha512.New,
}

// MultiHasher computes several checksums over a single pass of data. It is an
// [io.Writer] so it can sit alongside the entropy calculation while a file is read.
type MultiHasher struct {
	todo   []HashType
	hashes []hash.Hash
	w      io.Writer
}

func NewMultiHasher(types ...HashType) *MultiHasher {
	m := &MultiHasher{
		todo:   make([]HashType, 0, len(types)),
		hashes: make([]hash.Hash, 0, len(types)),
	}
	writers := make([]io.Writer, 0, len(types))
	for _, ht := range types {
		f, ok := HashFuncs[ht]
		if !ok {
			continue
		}
		h := f()
		m.todo = append(m.todo, ht)
		m.hashes = append(m.hashes, h)
		writers = append(writers, h)
	}
	m.w = io.MultiWriter(writers...)
	return m
}

func (m *MultiHasher) Write(p []byte) (int, error) {
	return m.w.Write(p)
}

// Sums returns the hex encoded digests of everything written so far.
func (m *MultiHasher) Sums() map[HashType]string {
	res := make(map[HashType]string, len(m.todo))
	for i, ht := range m.todo {
		res[ht] = hex.EncodeToString(m.hashes[i].Sum(nil))
	}
	return res
}

// Checksums returns the digests as a [Checksums] struct.
func (m *MultiHasher) Checksums() *Checksums {
	c := new(Checksums)
	for ht, sum := range m.Sums() {
		c.Set(ht, sum)
	}
	return c
}
