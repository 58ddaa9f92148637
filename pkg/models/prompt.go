// Package models contains domain models for promptvault.
package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Prompt is a prompt document mirrored from disk into the store.
// Directory is the natural key; ID is a display value assigned by the store.
type Prompt struct {
	UUID               string   `db:"uuid" json:"uuid"`
	Title              string   `db:"title" json:"title"`
	PrimaryCategory    string   `db:"primary_category" json:"primary_category"`
	Directory          string   `db:"directory" json:"directory"`
	OneLineDescription string   `db:"one_line_description" json:"one_line_description,omitempty"`
	Description        string   `db:"description" json:"description,omitempty"`
	ContentHash        string   `db:"content_hash" json:"content_hash,omitempty"`
	Body               string   `db:"body" json:"body,omitempty"`
	Tags               Tags     `db:"tags" json:"tags,omitempty"`
	Subcategories      []string `db:"-" json:"subcategories,omitempty"`
	ID                 int64    `db:"id" json:"id"`
	TokenCount         int64    `db:"token_count" json:"token_count"`
	SyncedAtEpoch      int64    `db:"synced_at_epoch" json:"synced_at_epoch"`
}

// Subcategory attaches a secondary category name to a prompt.
type Subcategory struct {
	Name     string `db:"name" json:"name"`
	ID       int64  `db:"id" json:"id"`
	PromptID int64  `db:"prompt_id" json:"prompt_id"`
}

// Variable is a named input declared by a prompt. Value is empty, a literal,
// or an indirect reference understood by the resolver.
type Variable struct {
	Name            string `db:"name" json:"name"`
	Role            string `db:"role" json:"role,omitempty"`
	Value           string `db:"value" json:"value"`
	ID              int64  `db:"id" json:"id"`
	PromptID        int64  `db:"prompt_id" json:"prompt_id"`
	OptionalForUser bool   `db:"optional_for_user" json:"optional_for_user"`
}

// FragmentLink records which fragment a prompt binds to one of its variables.
type FragmentLink struct {
	Category string `db:"category" json:"category"`
	Name     string `db:"name" json:"name"`
	Variable string `db:"variable" json:"variable,omitempty"`
	ID       int64  `db:"id" json:"id"`
	PromptID int64  `db:"prompt_id" json:"prompt_id"`
}

// Tags is an ordered tag list persisted as a comma-delimited string.
type Tags []string

// Value implements driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	return strings.Join(t, ","), nil
}

// Scan implements sql.Scanner.
func (t *Tags) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*t = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported tags type: %T", value)
	}
	*t = ParseTags(raw)
	return nil
}

// ParseTags splits a comma-delimited tag string, dropping empty entries.
func ParseTags(raw string) Tags {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make(Tags, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// PromptDetail is a prompt together with its child rows.
type PromptDetail struct {
	Variables []Variable     `json:"variables"`
	Fragments []FragmentLink `json:"fragments,omitempty"`
	Prompt
}
