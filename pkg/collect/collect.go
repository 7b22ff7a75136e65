// Package collect enumerates the files to be scanned under a target path.
package collect

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoTarget is returned when no target path is given.
var ErrNoTarget = errors.New("no target path provided")

// SkipFunc is told about every path the collector passes over and why.
type SkipFunc func(path string, reason error)

var (
	// ErrNotRegular is passed to a [SkipFunc] for devices, sockets, pipes and dangling links.
	ErrNotRegular = errors.New("not a regular file")
	// ErrSymlinkDir is passed to a [SkipFunc] for symlinks to directories, which are not followed.
	ErrSymlinkDir = errors.New("symlink to directory not followed")
)

// Collector recursively lists regular files under a root.
type Collector struct {
	onSkip SkipFunc
}

// NewCollector returns a [Collector] that skips silently.
func NewCollector() *Collector {
	return &Collector{}
}

// WithSkipFunc registers f to be called for each skipped path or traversal error.
func (c *Collector) WithSkipFunc(f SkipFunc) *Collector {
	c.onSkip = f
	return c
}

func (c *Collector) skip(path string, reason error) {
	if c.onSkip != nil {
		c.onSkip(path, reason)
	}
}

// Targets lists files under root in lexical order. A root that is not a directory is
// returned as the only target. Unreadable subdirectories and other traversal errors are
// skipped; only a root that can't be looked up at all is an error.
func (c *Collector) Targets(root string) ([]string, error) {
	if root == "" {
		return nil, ErrNoTarget
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("couldn't list target '%s': %w", root, err)
	}

	if !info.IsDir() {
		return []string{root}, nil
	}

	walkRoot := root
	if linfo, lerr := os.Lstat(root); lerr == nil && linfo.Mode()&fs.ModeSymlink != 0 {
		// descend into a symlinked root rather than reporting the link itself
		walkRoot = strings.TrimSuffix(root, string(filepath.Separator)) + string(filepath.Separator)
	}

	targets := make([]string, 0)

	walkErr := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			c.skip(path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		switch {
		case d.Type().IsRegular():
			targets = append(targets, path)
		case d.Type()&fs.ModeSymlink != 0:
			resolved, serr := os.Stat(path)
			switch {
			case serr != nil:
				c.skip(path, serr)
			case resolved.Mode().IsRegular():
				targets = append(targets, path)
			case resolved.IsDir():
				c.skip(path, ErrSymlinkDir)
			default:
				c.skip(path, ErrNotRegular)
			}
		default:
			c.skip(path, ErrNotRegular)
		}

		return nil
	})

	return targets, walkErr
}

// Targets lists files under root with a silent [Collector].
func Targets(root string) ([]string, error) {
	return NewCollector().Targets(root)
}
