package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrPathTraversal = errors.New("path escapes the file root")

// Root serves reads confined to one directory. Every requested name passes
// through Resolve before anything touches the filesystem; a raw request
// string is never handed to os.Open directly.
type Root struct {
	dir string
}

func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve file root: %w", err)
	}
	// Pin the canonical form so later containment checks compare against
	// a symlink-free base.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve file root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat file root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file root %q is not a directory", dir)
	}
	return &Root{dir: resolved}, nil
}

// Resolve canonicalizes the requested name and returns the absolute path
// only when it is a descendant of the root. Absolute names, dot-dot
// escapes, and symlinks pointing outside the root are all rejected with
// ErrPathTraversal.
func (r *Root) Resolve(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.ContainsRune(name, 0) {
		return "", ErrPathTraversal
	}

	clean := filepath.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	joined := filepath.Join(r.dir, clean)
	if !r.contains(joined) {
		return "", ErrPathTraversal
	}

	// If the target exists, follow its symlinks and re-check containment;
	// a link inside the root must not lead outside it.
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if os.IsNotExist(err) {
			return joined, nil
		}
		return "", ErrPathTraversal
	}
	if !r.contains(resolved) {
		return "", ErrPathTraversal
	}
	return resolved, nil
}

// Open returns the named file for reading. Only regular files are served.
func (r *Root) Open(name string) (*os.File, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, ErrPathTraversal
	}
	return f, nil
}

func (r *Root) contains(path string) bool {
	return path == r.dir || strings.HasPrefix(path, r.dir+string(filepath.Separator))
}
