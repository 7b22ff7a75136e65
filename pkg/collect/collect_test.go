package collect

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func mkTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{"b.bin", "a.txt", "sub/c.dat", "sub/deeper/d.so", "empty/.keep"} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := os.WriteFile(full, []byte(p), 0644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return root
}

func TestTargets(t *testing.T) {
	root := mkTree(t)

	got, err := Targets(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "b.bin"),
		filepath.Join(root, "empty", ".keep"),
		filepath.Join(root, "sub", "c.dat"),
		filepath.Join(root, "sub", "deeper", "d.so"),
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("\n\nexpected:\n%v\ngot:\n%v\n\n", want, got)
	}
}

func TestTargetsFileRoot(t *testing.T) {
	root := mkTree(t)
	file := filepath.Join(root, "a.txt")
	got, err := Targets(file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{file}) {
		t.Errorf("expected only %s but got %v", file, got)
	}
}

func TestTargetsMissingRoot(t *testing.T) {
	if _, err := Targets(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist but got %v", err)
	}
	if _, err := Targets(""); !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget but got %v", err)
	}
}

func TestTargetsSymlinks(t *testing.T) {
	root := mkTree(t)
	if err := os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link-file")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "sub"), filepath.Join(root, "link-dir")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "link-dangling")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	skipped := make(map[string]error)
	got, err := NewCollector().WithSkipFunc(func(path string, reason error) {
		skipped[filepath.Base(path)] = reason
	}).Targets(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 6 {
		t.Errorf("expected 6 targets but got %d: %v", len(got), got)
	}
	if !errors.Is(skipped["link-dir"], ErrSymlinkDir) {
		t.Errorf("expected link-dir to be skipped as ErrSymlinkDir, got %v", skipped["link-dir"])
	}
	if !errors.Is(skipped["link-dangling"], os.ErrNotExist) {
		t.Errorf("expected dangling link to be skipped, got %v", skipped["link-dangling"])
	}

	// a symlinked root is descended into
	linkRoot := filepath.Join(t.TempDir(), "rootlink")
	if err = os.Symlink(filepath.Join(root, "sub"), linkRoot); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, err = Targets(linkRoot); err != nil || len(got) != 2 {
		t.Errorf("expected 2 targets under symlinked root but got %v (%v)", got, err)
	}
}

func TestTargetsUnreadableSubdir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := mkTree(t)
	locked := filepath.Join(root, "sub")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })

	var skips int
	got, err := NewCollector().WithSkipFunc(func(string, error) { skips++ }).Targets(root)
	if err != nil {
		t.Fatalf("traversal errors must not propagate: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 readable targets but got %v", got)
	}
	if skips == 0 {
		t.Errorf("expected the unreadable directory to be reported as skipped")
	}
}
