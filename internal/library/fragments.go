package library

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/thebtf/promptvault/pkg/models"
)

const fragmentExt = ".md"

// FragmentPath returns the path of a fragment file.
func (l *Library) FragmentPath(category, name string) string {
	return filepath.Join(l.fragmentsDir, category, name+fragmentExt)
}

// ReadFragment returns the exact content of a fragment.
func (l *Library) ReadFragment(category, name string) (string, error) {
	if !safeSegment(category) || !safeSegment(name) {
		return "", fmt.Errorf("fragment %s/%s: %w", category, name, ErrNotFound)
	}
	path := l.FragmentPath(category, name)
	if !l.fs.Exists(path) {
		return "", fmt.Errorf("fragment %s/%s: %w", category, name, ErrNotFound)
	}
	data, err := l.fs.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read fragment %s/%s: %w", category, name, err)
	}
	return string(data), nil
}

// FragmentCategories lists the category directories under the fragments root.
func (l *Library) FragmentCategories() ([]string, error) {
	names, err := l.fs.ListDir(l.fragmentsDir)
	if err != nil {
		return nil, fmt.Errorf("list fragments dir %s: %w", l.fragmentsDir, err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if safeSegment(n) && !strings.HasSuffix(n, fragmentExt) {
			out = append(out, n)
		}
	}
	return out, nil
}

// ListFragments returns the fragments of one category without their content.
func (l *Library) ListFragments(category string) ([]models.Fragment, error) {
	if !safeSegment(category) {
		return nil, fmt.Errorf("fragment category %q: %w", category, ErrNotFound)
	}
	names, err := l.fs.ListDir(filepath.Join(l.fragmentsDir, category))
	if err != nil {
		return nil, fmt.Errorf("list fragment category %s: %w", category, err)
	}
	var out []models.Fragment
	for _, n := range names {
		if !strings.HasSuffix(n, fragmentExt) || strings.HasPrefix(n, ".") {
			continue
		}
		out = append(out, models.Fragment{Category: category, Name: strings.TrimSuffix(n, fragmentExt)})
	}
	return out, nil
}

// safeSegment rejects empty names and anything that could escape the root.
func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && !strings.HasPrefix(s, ".")
}
