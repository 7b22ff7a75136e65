package entropy

import (
	"errors"
	"fmt"
)

var (
	// ErrInput classifies failures caused by what was handed to the engine
	// (oversized files, directories and other non-regular files).
	ErrInput = errors.New("input error")
	// ErrIO classifies failures reading a file or its metadata.
	ErrIO = errors.New("io error")
	// ErrNoPath is returned when an empty path is passed to [Engine.File].
	ErrNoPath = fmt.Errorf("%w: no path provided", ErrInput)
)

// ErrNotRegularFile is returned when the engine is handed a directory, device, socket, etc.
type ErrNotRegularFile struct {
	Path  string
	IsDir bool
}

func (e *ErrNotRegularFile) Error() string {
	if e.IsDir {
		return fmt.Sprintf("'%s' is a directory, not a file", e.Path)
	}
	return fmt.Sprintf("file '%s' is not a regular file", e.Path)
}

func (e *ErrNotRegularFile) Is(target error) bool {
	return target == ErrInput
}

func NewErrNotRegularFile(path string, isDir bool) *ErrNotRegularFile {
	return &ErrNotRegularFile{Path: path, IsDir: isDir}
}

// ErrFileTooLarge is returned when a file exceeds the configured size ceiling.
type ErrFileTooLarge struct {
	Path string
	Size int64
	Max  int64
}

func (e *ErrFileTooLarge) Error() string {
	return fmt.Sprintf("file too large: '%s' is %d bytes (max allowed: %d bytes)",
		e.Path, e.Size, e.Max)
}

func (e *ErrFileTooLarge) Is(target error) bool {
	return target == ErrInput
}

func NewErrFileTooLarge(path string, size, max int64) *ErrFileTooLarge {
	return &ErrFileTooLarge{Path: path, Size: size, Max: max}
}

// ErrMetadata wraps a failure to stat a file.
type ErrMetadata struct {
	Path string
	Err  error
}

func (e *ErrMetadata) Error() string {
	return fmt.Sprintf("couldn't get file metadata for '%s': %v", e.Path, e.Err)
}

func (e *ErrMetadata) Unwrap() error { return e.Err }

func (e *ErrMetadata) Is(target error) bool {
	return target == ErrIO
}

// ErrRead wraps a failure to open or read a file.
type ErrRead struct {
	Path string
	Err  error
}

func (e *ErrRead) Error() string {
	return fmt.Sprintf("couldn't read file '%s': %v", e.Path, e.Err)
}

func (e *ErrRead) Unwrap() error { return e.Err }

func (e *ErrRead) Is(target error) bool {
	return target == ErrIO
}

// Class returns a short label for the error class of err, for logging.
func Class(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInput):
		return "input"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "unknown"
	}
}
