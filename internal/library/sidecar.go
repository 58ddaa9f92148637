package library

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/promptvault/pkg/models"
)

// File names inside a prompt directory.
const (
	PromptFile  = "prompt.md"
	SidecarFile = "metadata.yml"
)

var (
	// ErrNotFound is returned when a prompt file, sidecar or fragment is missing.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSidecar is returned when metadata.yml cannot be decoded or lacks
	// required fields.
	ErrInvalidSidecar = errors.New("invalid sidecar")
)

// ParseSidecar decodes metadata.yml content. A title is required.
func ParseSidecar(data []byte) (*models.PromptMetadata, error) {
	var meta models.PromptMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSidecar, err)
	}
	meta.Title = strings.TrimSpace(meta.Title)
	if meta.Title == "" {
		return nil, fmt.Errorf("%w: missing title", ErrInvalidSidecar)
	}
	for i, v := range meta.Variables {
		if strings.TrimSpace(v.Name) == "" {
			return nil, fmt.Errorf("%w: variable %d has no name", ErrInvalidSidecar, i)
		}
	}
	for i, f := range meta.Fragments {
		if f.Category == "" || f.Name == "" {
			return nil, fmt.Errorf("%w: fragment %d needs category and name", ErrInvalidSidecar, i)
		}
	}
	return &meta, nil
}

// EncodeSidecar renders metadata as YAML with two-space indentation.
func EncodeSidecar(meta *models.PromptMetadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(meta); err != nil {
		return nil, fmt.Errorf("encode sidecar: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode sidecar: %w", err)
	}
	return buf.Bytes(), nil
}
