// Package library reads and writes the on-disk prompt library: prompt
// directories with their metadata sidecars, and reusable fragments.
package library

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FS is the filesystem collaborator used by the library.
type FS interface {
	// ListDir returns the sorted entry names of a directory.
	ListDir(path string) ([]string, error)
	ReadFile(path string) ([]byte, error)
	Exists(path string) bool
	WriteFile(path string, data []byte) error
}

// OSFS implements FS on the local filesystem.
type OSFS struct{}

func (OSFS) ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) // #nosec G304 -- paths are built from the configured library roots
}

func (OSFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteFile replaces path atomically through a temp file in the same directory.
func (OSFS) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	} else if !errors.Is(err, fs.ErrNotExist) {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
