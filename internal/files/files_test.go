package files

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRoot(t *testing.T) (*Root, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "report.txt"), []byte("quarterly"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "inner.txt"), []byte("inner"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	root, err := NewRoot(dir)
	if err != nil {
		t.Fatalf("NewRoot() error: %v", err)
	}
	return root, dir
}

func TestResolveRejectsTraversal(t *testing.T) {
	root, _ := newTestRoot(t)

	for _, name := range []string{
		"../../etc/passwd",
		"/etc/passwd",
		"..",
		"../sibling.txt",
		"nested/../../outside.txt",
		"",
		".",
	} {
		if _, err := root.Resolve(name); !errors.Is(err, ErrPathTraversal) {
			t.Fatalf("Resolve(%q): expected ErrPathTraversal, got %v", name, err)
		}
	}
}

func TestResolveAcceptsDescendants(t *testing.T) {
	root, dir := newTestRoot(t)

	path, err := root.Resolve("report.txt")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	base, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("resolve base: %v", err)
	}
	if !strings.HasPrefix(path, base+string(filepath.Separator)) {
		t.Fatalf("expected resolved path under root, got %q", path)
	}

	if _, err := root.Resolve("nested/inner.txt"); err != nil {
		t.Fatalf("Resolve(nested) error: %v", err)
	}
	// Dot-dot segments that stay inside the root are fine once cleaned.
	if _, err := root.Resolve("nested/../report.txt"); err != nil {
		t.Fatalf("Resolve(self-cancelling) error: %v", err)
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	root, dir := newTestRoot(t)

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("secret"), 0o644); err != nil {
		t.Fatalf("write outside fixture: %v", err)
	}
	if err := os.Symlink(secret, filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := root.Resolve("link.txt"); !errors.Is(err, ErrPathTraversal) {
		t.Fatalf("expected symlink escape rejection, got %v", err)
	}
}

func TestOpenReadsConfinedFile(t *testing.T) {
	root, _ := newTestRoot(t)

	f, err := root.Open("report.txt")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(b) != "quarterly" {
		t.Fatalf("unexpected content %q", b)
	}
}

func TestOpenMissingFile(t *testing.T) {
	root, _ := newTestRoot(t)

	_, err := root.Open("absent.txt")
	if err == nil || !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestOpenRejectsDirectory(t *testing.T) {
	root, _ := newTestRoot(t)

	if _, err := root.Open("nested"); !errors.Is(err, ErrPathTraversal) {
		t.Fatalf("expected directory read rejection, got %v", err)
	}
}

func TestNewRootRejectsMissingDir(t *testing.T) {
	if _, err := NewRoot(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing root directory")
	}
}
