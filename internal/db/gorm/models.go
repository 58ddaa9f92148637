// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"time"

	"gorm.io/gorm"
)

// GORM Models
//
// Prompt rows and their children are owned by the reconciler and rebuilt from
// disk. There are no foreign keys between them; orphan cleanup
// decides row by row what survives a deleted prompt.

// Prompt mirrors one prompt directory.
type Prompt struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	UUID               string `gorm:"column:uuid;uniqueIndex;not null"`
	Title              string `gorm:"type:text;not null"`
	PrimaryCategory    string `gorm:"index:idx_prompts_category;not null;default:''"`
	Directory          string `gorm:"uniqueIndex;not null"`
	OneLineDescription string `gorm:"type:text;not null;default:''"`
	Description        string `gorm:"type:text;not null;default:''"`
	Tags               string `gorm:"type:text;not null;default:''"`
	ContentHash        string `gorm:"not null;default:''"`
	Body               string `gorm:"type:text;not null;default:''"`
	TokenCount         int64  `gorm:"not null;default:0"`
	SyncedAtEpoch      int64  `gorm:"index:idx_prompts_synced,sort:desc;not null;default:0"`
}

func (Prompt) TableName() string { return "prompts" }

// Subcategory is a secondary category of a prompt.
type Subcategory struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	PromptID int64  `gorm:"index:idx_subcategories_prompt;not null"`
	Name     string `gorm:"index:idx_subcategories_name;not null"`
}

func (Subcategory) TableName() string { return "subcategories" }

// Variable is a variable declared by a prompt.
type Variable struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	PromptID        int64  `gorm:"index:idx_variables_prompt;not null"`
	Name            string `gorm:"index:idx_variables_name;not null"`
	Role            string `gorm:"type:text;not null;default:''"`
	OptionalForUser bool   `gorm:"not null;default:false"`
	Value           string `gorm:"type:text;not null;default:''"`
}

func (Variable) TableName() string { return "variables" }

// PromptFragment associates a fragment with a prompt variable.
type PromptFragment struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	PromptID int64  `gorm:"index:idx_prompt_fragments_prompt;not null"`
	Category string `gorm:"not null"`
	Name     string `gorm:"not null"`
	Variable string `gorm:"not null;default:''"`
}

func (PromptFragment) TableName() string { return "prompt_fragments" }

// EnvVariable is a user-managed value. PromptID is 0 for global scope so the
// unique index also covers globals (NULLs would never collide).
type EnvVariable struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Scope          string `gorm:"type:text;check:scope IN ('global', 'prompt');default:'global';uniqueIndex:idx_env_variables_unique,priority:1;not null"`
	PromptID       int64  `gorm:"uniqueIndex:idx_env_variables_unique,priority:2;index:idx_env_variables_prompt;not null;default:0"`
	Name           string `gorm:"uniqueIndex:idx_env_variables_unique,priority:3;index:idx_env_variables_name;not null"`
	Value          string `gorm:"type:text;not null;default:''"`
	CreatedAtEpoch int64  `gorm:"not null"`
	UpdatedAtEpoch int64  `gorm:"not null"`
}

func (EnvVariable) TableName() string { return "env_variables" }

// BeforeCreate hook to ensure timestamps are set.
func (e *EnvVariable) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UnixMilli()
	if e.CreatedAtEpoch == 0 {
		e.CreatedAtEpoch = now
	}
	if e.UpdatedAtEpoch == 0 {
		e.UpdatedAtEpoch = now
	}
	if e.Scope == "" {
		e.Scope = "global"
	}
	return nil
}

// Favorite marks a prompt by its stable UUID.
type Favorite struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	PromptUUID     string `gorm:"column:prompt_uuid;uniqueIndex;not null"`
	CreatedAtEpoch int64  `gorm:"not null"`
}

func (Favorite) TableName() string { return "favorites" }

// BeforeCreate hook to ensure timestamps are set.
func (f *Favorite) BeforeCreate(tx *gorm.DB) error {
	if f.CreatedAtEpoch == 0 {
		f.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}

// Execution is one recorded run of a prompt.
type Execution struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	PromptUUID     string `gorm:"column:prompt_uuid;index:idx_executions_prompt;not null"`
	Directory      string `gorm:"not null"`
	Variables      string `gorm:"type:text;not null;default:'{}'"` // JSON object
	CreatedAtEpoch int64  `gorm:"index:idx_executions_created,sort:desc;not null"`
}

func (Execution) TableName() string { return "executions" }

// BeforeCreate hook to ensure timestamps are set.
func (e *Execution) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedAtEpoch == 0 {
		e.CreatedAtEpoch = time.Now().UnixMilli()
	}
	return nil
}
