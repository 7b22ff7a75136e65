package main

import "github.com/sandflysecurity/sandfly-entropystats/pkg/entropy"

// Files is a slice of [File] pointers.
type Files []*File

// File is a scan result: a file's entropy plus any checksums computed while it was read.
type File struct {
	Path      string     `json:"path"`
	Entropy   float64    `json:"entropy"`
	Checksums *Checksums `json:"checksums,omitempty"`
}

// NewFile wraps an entropy result.
func NewFile(fe entropy.FileEntropy) *File {
	return &File{Path: fe.Path, Entropy: fe.Entropy}
}

// Entropies returns the bare entropy results for statistics.
func (fs Files) Entropies() []entropy.FileEntropy {
	out := make([]entropy.FileEntropy, 0, len(fs))
	for _, f := range fs {
		out = append(out, entropy.FileEntropy{Path: f.Path, Entropy: f.Entropy})
	}
	return out
}

// AtLeast returns the files with entropy greater than or equal to threshold, in order.
func (fs Files) AtLeast(threshold float64) Files {
	out := make(Files, 0, len(fs))
	for _, f := range fs {
		if f.Entropy >= threshold {
			out = append(out, f)
		}
	}
	return out
}
