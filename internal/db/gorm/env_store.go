// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/promptvault/pkg/models"
)

// ErrEnvNotFound is returned when an environment variable does not exist.
var ErrEnvNotFound = errors.New("env variable not found")

// EnvStore provides environment variable operations using GORM.
type EnvStore struct {
	db *gorm.DB
}

// NewEnvStore creates a new env variable store.
func NewEnvStore(store *Store) *EnvStore {
	return &EnvStore{db: store.DB}
}

// List returns every env variable, globals first.
func (s *EnvStore) List(ctx context.Context) ([]models.EnvVariable, error) {
	var rows []EnvVariable
	err := s.db.WithContext(ctx).
		Order("scope ASC").Order("prompt_id ASC").Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toEnvModels(rows), nil
}

// ListInScope returns the env variables visible to a prompt: every global
// plus the ones scoped to promptID. A promptID of 0 yields only globals.
func (s *EnvStore) ListInScope(ctx context.Context, promptID int64) ([]models.EnvVariable, error) {
	var rows []EnvVariable
	query := s.db.WithContext(ctx).Where("scope = ?", string(models.EnvScopeGlobal))
	if promptID > 0 {
		query = query.Or("scope = ? AND prompt_id = ?", string(models.EnvScopePrompt), promptID)
	}
	if err := query.Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEnvModels(rows), nil
}

// Get returns a single env variable by scope key and name.
func (s *EnvStore) Get(ctx context.Context, promptID int64, name string) (models.EnvVariable, error) {
	scope := scopeFor(promptID)
	var row EnvVariable
	err := s.db.WithContext(ctx).
		Where("scope = ? AND prompt_id = ? AND name = ?", scope, promptID, name).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.EnvVariable{}, fmt.Errorf("%w: %s", ErrEnvNotFound, name)
	}
	if err != nil {
		return models.EnvVariable{}, err
	}
	return toEnvModel(&row), nil
}

// SetGlobal creates or updates a global env variable.
func (s *EnvStore) SetGlobal(ctx context.Context, name, value string) (models.EnvVariable, error) {
	return s.upsert(ctx, 0, name, value)
}

// SetForPrompt creates or updates an env variable visible only to promptID.
func (s *EnvStore) SetForPrompt(ctx context.Context, promptID int64, name, value string) (models.EnvVariable, error) {
	if promptID <= 0 {
		return models.EnvVariable{}, fmt.Errorf("invalid prompt id %d", promptID)
	}
	return s.upsert(ctx, promptID, name, value)
}

func (s *EnvStore) upsert(ctx context.Context, promptID int64, name, value string) (models.EnvVariable, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.EnvVariable{}, errors.New("env variable name is required")
	}

	row := EnvVariable{
		Scope:          scopeFor(promptID),
		PromptID:       promptID,
		Name:           name,
		Value:          value,
		UpdatedAtEpoch: time.Now().UnixMilli(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}, {Name: "prompt_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at_epoch"}),
	}).Create(&row).Error
	if err != nil {
		return models.EnvVariable{}, err
	}
	return s.Get(ctx, promptID, name)
}

// Delete removes an env variable. Deleting a missing variable is not an error.
func (s *EnvStore) Delete(ctx context.Context, promptID int64, name string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("scope = ? AND prompt_id = ? AND name = ?", scopeFor(promptID), promptID, name).
		Delete(&EnvVariable{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CleanupOrphans removes prompt-scoped env variables whose prompt is no longer
// in livePromptIDs, unless a variable with the same name is still reachable
// (global, or scoped to a live prompt). Returns the deleted row ids.
func (s *EnvStore) CleanupOrphans(ctx context.Context, livePromptIDs []int64) ([]int64, error) {
	live := uniqueInt64s(livePromptIDs)
	db := s.db.WithContext(ctx)

	var orphans []EnvVariable
	query := db.Where("scope = ?", string(models.EnvScopePrompt))
	if len(live) > 0 {
		query = query.Where("prompt_id NOT IN ?", live)
	}
	if err := query.Find(&orphans).Error; err != nil {
		return nil, fmt.Errorf("find orphan env variables: %w", err)
	}
	if len(orphans) == 0 {
		return nil, nil
	}

	var reachable []string
	reach := db.Model(&EnvVariable{}).Where("scope = ?", string(models.EnvScopeGlobal))
	if len(live) > 0 {
		reach = reach.Or("scope = ? AND prompt_id IN ?", string(models.EnvScopePrompt), live)
	}
	if err := reach.Distinct().Pluck("name", &reachable).Error; err != nil {
		return nil, fmt.Errorf("find reachable env names: %w", err)
	}
	shared := make(map[string]struct{}, len(reachable))
	for _, name := range reachable {
		shared[name] = struct{}{}
	}

	var toDelete []int64
	for _, o := range orphans {
		if _, ok := shared[o.Name]; ok {
			log.Debug().Str("name", o.Name).Int64("promptId", o.PromptID).Msg("Keeping shared env variable")
			continue
		}
		toDelete = append(toDelete, o.ID)
	}
	if len(toDelete) == 0 {
		return nil, nil
	}

	if err := db.Where("id IN ?", toDelete).Delete(&EnvVariable{}).Error; err != nil {
		return nil, fmt.Errorf("delete orphan env variables: %w", err)
	}
	return toDelete, nil
}

func scopeFor(promptID int64) string {
	if promptID > 0 {
		return string(models.EnvScopePrompt)
	}
	return string(models.EnvScopeGlobal)
}
