// Package metadata regenerates prompt sidecars when a prompt body changes.
package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/promptvault/pkg/models"
)

// ErrNoCommand is returned when no metadata command is configured.
var ErrNoCommand = errors.New("no metadata command configured")

// Generator produces metadata for a prompt body. current is the existing
// metadata, or nil for a new prompt.
type Generator interface {
	Generate(ctx context.Context, body string, current *models.PromptMetadata) (*models.PromptMetadata, error)
}

// CommandGenerator runs an external command that reads the prompt body on
// stdin and writes sidecar YAML to stdout. The command line is split on
// whitespace; it is not run through a shell.
type CommandGenerator struct {
	Command string
	Timeout time.Duration
}

// DefaultTimeout bounds one metadata command run.
const DefaultTimeout = 2 * time.Minute

func (g *CommandGenerator) Generate(ctx context.Context, body string, current *models.PromptMetadata) (*models.PromptMetadata, error) {
	args := strings.Fields(g.Command)
	if len(args) == 0 {
		return nil, ErrNoCommand
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...) // #nosec G204 -- command comes from the user's own settings
	cmd.Stdin = strings.NewReader(body)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if current != nil {
		cmd.Env = append(cmd.Environ(), "PROMPTVAULT_TITLE="+current.Title)
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("metadata command: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("metadata command: %w", err)
	}

	var meta models.PromptMetadata
	if err := yaml.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return nil, fmt.Errorf("metadata command output: %w", err)
	}
	if strings.TrimSpace(meta.Title) == "" {
		return nil, fmt.Errorf("metadata command output: missing title")
	}
	return &meta, nil
}
