package library

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/thebtf/promptvault/pkg/models"
)

// promptNamespace scopes prompt UUIDs derived from directory names.
var promptNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/thebtf/promptvault/prompts"))

// ValidPromptDir reports whether name can be a prompt directory: a single
// path segment that is not hidden. Spaces and non-ASCII letters are allowed.
func ValidPromptDir(name string) bool {
	return safeSegment(name)
}

// PromptUUID returns the stable UUID of the prompt stored in directory.
func PromptUUID(directory string) string {
	return uuid.NewSHA1(promptNamespace, []byte(directory)).String()
}

// Entry is a prompt directory read from disk.
type Entry struct {
	Meta      *models.PromptMetadata
	Directory string
	Body      string
}

// Library gives access to the prompts and fragments roots.
type Library struct {
	fs           FS
	promptsDir   string
	fragmentsDir string
}

// New creates a Library. A nil fs means OSFS.
func New(fs FS, promptsDir, fragmentsDir string) *Library {
	if fs == nil {
		fs = OSFS{}
	}
	return &Library{fs: fs, promptsDir: promptsDir, fragmentsDir: fragmentsDir}
}

// FS returns the filesystem collaborator.
func (l *Library) FS() FS { return l.fs }

// PromptsDir returns the prompts root.
func (l *Library) PromptsDir() string { return l.promptsDir }

// FragmentsDir returns the fragments root.
func (l *Library) FragmentsDir() string { return l.fragmentsDir }

// ListEntries returns every entry name under the prompts root.
func (l *Library) ListEntries() ([]string, error) {
	names, err := l.fs.ListDir(l.promptsDir)
	if err != nil {
		return nil, fmt.Errorf("list prompts dir %s: %w", l.promptsDir, err)
	}
	return names, nil
}

// ValidDirectories returns the entry names under the prompts root that pass
// ValidPromptDir.
func (l *Library) ValidDirectories() ([]string, error) {
	names, err := l.ListEntries()
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if ValidPromptDir(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// PromptPath returns the path of the prompt body in directory.
func (l *Library) PromptPath(directory string) string {
	return filepath.Join(l.promptsDir, directory, PromptFile)
}

// SidecarPath returns the path of the metadata sidecar in directory.
func (l *Library) SidecarPath(directory string) string {
	return filepath.Join(l.promptsDir, directory, SidecarFile)
}

// HasFiles reports whether directory holds the prompt body and the sidecar.
func (l *Library) HasFiles(directory string) (hasPrompt, hasSidecar bool) {
	return l.fs.Exists(l.PromptPath(directory)), l.fs.Exists(l.SidecarPath(directory))
}

// ReadBody reads the prompt body of directory.
func (l *Library) ReadBody(directory string) (string, error) {
	path := l.PromptPath(directory)
	if !l.fs.Exists(path) {
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	data, err := l.fs.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// ReadMetadata reads and decodes the sidecar of directory.
func (l *Library) ReadMetadata(directory string) (*models.PromptMetadata, error) {
	path := l.SidecarPath(directory)
	if !l.fs.Exists(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	data, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	meta, err := ParseSidecar(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return meta, nil
}

// Load reads both files of a prompt directory.
func (l *Library) Load(directory string) (*Entry, error) {
	if !ValidPromptDir(directory) {
		return nil, fmt.Errorf("%q: %w", directory, ErrNotFound)
	}
	body, err := l.ReadBody(directory)
	if err != nil {
		return nil, err
	}
	meta, err := l.ReadMetadata(directory)
	if err != nil {
		return nil, err
	}
	return &Entry{Directory: directory, Body: body, Meta: meta}, nil
}

// WriteMetadata encodes meta and writes it as the sidecar of directory.
func (l *Library) WriteMetadata(directory string, meta *models.PromptMetadata) error {
	data, err := EncodeSidecar(meta)
	if err != nil {
		return err
	}
	if err := l.fs.WriteFile(l.SidecarPath(directory), data); err != nil {
		return fmt.Errorf("write sidecar for %s: %w", directory, err)
	}
	return nil
}

// ToPrompt converts an entry into store rows. The directory on disk is the
// natural key; a directory field inside the sidecar is ignored.
func (e *Entry) ToPrompt() (*models.Prompt, []models.Variable, []models.FragmentLink) {
	m := e.Meta
	p := &models.Prompt{
		UUID:               PromptUUID(e.Directory),
		Title:              m.Title,
		PrimaryCategory:    m.PrimaryCategory,
		Directory:          e.Directory,
		OneLineDescription: m.OneLineDescription,
		Description:        m.Description,
		ContentHash:        m.ContentHash,
		Body:               e.Body,
		Tags:               cleanList(m.Tags),
		Subcategories:      cleanList(m.Subcategories),
		TokenCount:         int64(CountTokens(e.Body)),
	}

	vars := make([]models.Variable, 0, len(m.Variables))
	for _, v := range m.Variables {
		vars = append(vars, models.Variable{
			Name:            strings.TrimSpace(v.Name),
			Role:            v.Role,
			OptionalForUser: v.OptionalForUser,
		})
	}

	links := make([]models.FragmentLink, 0, len(m.Fragments))
	for _, f := range m.Fragments {
		links = append(links, models.FragmentLink{Category: f.Category, Name: f.Name, Variable: f.Variable})
	}
	return p, vars, links
}

// cleanList trims items and drops empty ones. Tags are persisted comma
// separated, so commas inside an item become spaces.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", " "))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
