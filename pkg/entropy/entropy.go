// Package entropy calculates the Shannon entropy of files and byte streams.
package entropy

/*
This package helps find packed or encrypted files by calculating how random their contents are. Packed or
encrypted malware often appears to be a very random file, and a high entropy score is a useful triage signal.

MIT License

Copyright (c) 2019-2022 Sandfly Security Ltd.
https://www.sandflysecurity.com

Permission is hereby granted, free of charge, to any person obtaining a copy of this software and associated
documentation files (the "Software"), to deal in the Software without restriction, including without limitation the
rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the Software, and to
permit persons to whom the Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all copies or substantial portions of
the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO
THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
)

const (
	// DefaultMaxFileSize is the largest file we will calculate entropy for (2GB).
	DefaultMaxFileSize int64 = 2147483648
	// DefaultChunkSize is the amount of data histogrammed at once.
	DefaultChunkSize = 2560000
	// MaxEntropy is the entropy of a perfectly uniform byte distribution.
	MaxEntropy = 8.0
)

// Mode selects how per-chunk histograms are combined into a file's entropy.
type Mode uint8

const (
	// ModeChunked sums the entropy of each chunk. For files larger than one
	// chunk the result can exceed 8.0; this matches the historical output.
	ModeChunked Mode = iota
	// ModeGlobal merges every chunk into one histogram, giving true Shannon entropy.
	ModeGlobal
)

func (m Mode) String() string {
	switch m {
	case ModeChunked:
		return "chunked"
	case ModeGlobal:
		return "global"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// ErrUnknownMode is returned by [ParseMode] for unrecognized names.
var ErrUnknownMode = errors.New("unknown entropy mode")

// ParseMode converts "chunked" or "global" into a [Mode].
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "chunked":
		return ModeChunked, nil
	case "global":
		return ModeGlobal, nil
	default:
		return ModeChunked, fmt.Errorf("%w: %q (want chunked or global)", ErrUnknownMode, s)
	}
}

// FileEntropy is the entropy result for a single file.
type FileEntropy struct {
	Path    string  `json:"path"`
	Entropy float64 `json:"entropy"`
}

// Engine calculates entropy with a size ceiling and a bounded chunk buffer.
// An Engine holds no per-file state and is safe for concurrent use.
type Engine struct {
	maxSize   int64
	chunkSize int
	mode      Mode
	chunkPool sync.Pool
}

// NewEngine returns an [Engine] with the default size ceiling, chunk size, and [ModeChunked].
func NewEngine() *Engine {
	e := &Engine{
		maxSize:   DefaultMaxFileSize,
		chunkSize: DefaultChunkSize,
		mode:      ModeChunked,
	}
	e.chunkPool.New = func() any {
		return make([]byte, e.chunkSize)
	}
	return e
}

// WithMaxSize sets the largest file size (in bytes) the engine will accept.
func (e *Engine) WithMaxSize(n int64) *Engine {
	if n > 0 {
		e.maxSize = n
	}
	return e
}

// WithChunkSize sets the histogram chunk size in bytes.
func (e *Engine) WithChunkSize(n int) *Engine {
	if n > 0 {
		e.chunkSize = n
	}
	return e
}

// WithMode sets how chunk histograms are combined.
func (e *Engine) WithMode(m Mode) *Engine {
	e.mode = m
	return e
}

// MaxSize returns the size ceiling in bytes.
func (e *Engine) MaxSize() int64 { return e.maxSize }

// ChunkSize returns the histogram chunk size in bytes.
func (e *Engine) ChunkSize() int { return e.chunkSize }

// Mode returns how chunk histograms are combined.
func (e *Engine) Mode() Mode { return e.mode }

func (e *Engine) getChunk() []byte {
	buf := e.chunkPool.Get().([]byte)
	if len(buf) != e.chunkSize {
		buf = make([]byte, e.chunkSize)
	}
	return buf
}

func (e *Engine) putChunk(buf []byte) {
	e.chunkPool.Put(buf)
}

type histogram [256]uint64

func (h *histogram) add(data []byte) {
	for _, b := range data {
		h[b]++
	}
}

// shannon returns the entropy in bits per byte of a histogram holding total bytes.
func (h *histogram) shannon(total uint64) (entropy float64) {
	if total == 0 {
		return 0
	}
	for _, count := range h {
		if count == 0 {
			continue
		}
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// fill reads into buf until it is full or r returns an error. Unlike [io.ReadFull], the
// reader's error is returned as is: only a real [io.EOF] ends the stream.
func fill(r io.Reader, buf []byte) (n int, err error) {
	for n < len(buf) && err == nil {
		var nn int
		nn, err = r.Read(buf[n:])
		n += nn
	}
	return n, err
}

// Compute reads r to EOF and returns its entropy according to the engine's [Mode].
// An empty stream has an entropy of 0.
func (e *Engine) Compute(r io.Reader) (float64, error) {
	buf := e.getChunk()
	defer e.putChunk(buf)

	var (
		entropy   float64
		global    histogram
		globalLen uint64
	)

	for {
		n, err := fill(r, buf)
		if n > 0 {
			switch e.mode {
			case ModeGlobal:
				global.add(buf[:n])
				globalLen += uint64(n)
			default:
				var chunk histogram
				chunk.add(buf[:n])
				entropy += chunk.shannon(uint64(n))
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if e.mode == ModeGlobal {
		entropy = global.shannon(globalLen)
	}

	return entropy, nil
}

// Bytes returns the entropy of data.
func (e *Engine) Bytes(data []byte) float64 {
	// reading from a bytes.Reader cannot fail
	entropy, _ := e.Compute(bytes.NewReader(data))
	return entropy
}

// Stream calculates the entropy of r, whose total size is already known to the caller
// (e.g. from a remote stat). Oversized input is rejected before anything is read.
// Every byte read is also written to sinks.
func (e *Engine) Stream(path string, size int64, r io.Reader, sinks ...io.Writer) (FileEntropy, error) {
	if path == "" {
		return FileEntropy{}, ErrNoPath
	}
	if size > e.maxSize {
		return FileEntropy{}, NewErrFileTooLarge(path, size, e.maxSize)
	}
	return e.stream(path, r, sinks)
}

func (e *Engine) stream(path string, r io.Reader, sinks []io.Writer) (FileEntropy, error) {
	if len(sinks) > 0 {
		r = io.TeeReader(r, io.MultiWriter(sinks...))
	}
	entropy, err := e.Compute(r)
	if err != nil {
		return FileEntropy{}, &ErrRead{Path: path, Err: err}
	}
	return FileEntropy{Path: path, Entropy: entropy}, nil
}

// File calculates the entropy of the regular file at path. The size is checked against
// the ceiling via metadata before the file is opened.
func (e *Engine) File(path string, sinks ...io.Writer) (FileEntropy, error) {
	if path == "" {
		return FileEntropy{}, ErrNoPath
	}

	info, err := os.Stat(path)
	if err != nil {
		return FileEntropy{}, &ErrMetadata{Path: path, Err: err}
	}

	if !info.Mode().IsRegular() {
		return FileEntropy{}, NewErrNotRegularFile(path, info.IsDir())
	}

	if info.Size() > e.maxSize {
		return FileEntropy{}, NewErrFileTooLarge(path, info.Size(), e.maxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return FileEntropy{}, &ErrRead{Path: path, Err: err}
	}

	defer func() {
		_ = f.Close()
	}()

	return e.stream(path, f, sinks)
}
