package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ErrNoSuchTarget is returned by [SSH.ListFiles] when the root does not exist on the remote host.
var ErrNoSuchTarget = errors.New("remote target does not exist")

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func splitNul(out []byte) []string {
	paths := make([]string, 0)
	for _, p := range bytes.Split(out, []byte{0}) {
		if len(p) == 0 {
			continue
		}
		paths = append(paths, string(p))
	}
	// component-wise order, the same order filepath.WalkDir visits a tree in
	sort.Slice(paths, func(i, j int) bool {
		return strings.ReplaceAll(paths[i], "/", "\x00") < strings.ReplaceAll(paths[j], "/", "\x00")
	})
	return paths
}

// ListFiles recursively lists regular files under root on the remote host, sorted.
// It follows the local collector's rules: a symlinked root is descended into, symlinks
// to regular files are listed, symlinks to directories are not followed, and
// unreadable directories are skipped. Requires GNU find (-xtype).
func (s *SSH) ListFiles(ctx context.Context, root string) ([]string, error) {
	s.verbLn("[io] listing %s...", root)

	out, err := s.output(ctx, "find -H "+shellQuote(root)+` \( -type f -o -type l -xtype f \) -print0 2>/dev/null`)

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		// find exits non-zero when it hits unreadable directories; make sure the
		// root itself was there before trusting the partial listing
		if _, terr := s.output(ctx, "test -e "+shellQuote(root)); terr != nil {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchTarget, root)
		}
	default:
		return nil, fmt.Errorf("error listing remote target (%s): %w", root, err)
	}

	return splitNul(out), nil
}

// Size returns the size in bytes of the file at path on the remote host, following symlinks.
func (s *SSH) Size(ctx context.Context, path string) (int64, error) {
	out, err := s.output(ctx, "stat -L -c %s -- "+shellQuote(path))
	if err != nil {
		return 0, fmt.Errorf("remote stat (%s): %w", path, err)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("remote stat (%s): unexpected output %q: %w", path, out, err)
	}
	return size, nil
}

type remoteFile struct {
	path string
	r    io.Reader
	sesh *ssh.Session
	stop func() bool
	eof  bool
}

func (f *remoteFile) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if errors.Is(err, io.EOF) {
		f.eof = true
	}
	return n, err
}

// Close reports a non-zero exit of the remote reader (e.g. permission denied), which
// a caller must treat as a failed read even if some bytes arrived.
func (f *remoteFile) Close() error {
	f.stop()
	if !f.eof {
		return f.sesh.Close()
	}
	err := f.sesh.Wait()
	_ = f.sesh.Close()
	if err != nil {
		return fmt.Errorf("remote read (%s): %w", f.path, err)
	}
	return nil
}

// Open streams the contents of path from the remote host. The returned reader must be
// closed, and its Close error checked.
func (s *SSH) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	sesh, err := s.NewSession()
	if err != nil {
		return nil, err
	}

	stdout, err := sesh.StdoutPipe()
	if err != nil {
		_ = sesh.Close()
		return nil, err
	}

	cmd := "cat -- " + shellQuote(path)
	s.traceLn("[exec] %s", cmd)

	if err = sesh.Start(cmd); err != nil {
		_ = sesh.Close()
		return nil, fmt.Errorf("remote read (%s): %w", path, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = sesh.Close()
	})

	return &remoteFile{path: path, r: stdout, sesh: sesh, stop: stop}, nil
}
