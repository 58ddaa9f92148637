// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"context"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/promptvault/pkg/models"
)

// MaxExecutionsGlobal is the hard limit of execution history rows.
const MaxExecutionsGlobal = 500

// HistoryStore keeps favorites and execution history. Rows reference prompts
// by UUID, so they stay valid across full rebuilds of the prompt index.
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore creates a new history store.
func NewHistoryStore(store *Store) *HistoryStore {
	return &HistoryStore{db: store.DB}
}

// AddFavorite marks a prompt as favorite. Adding twice is a no-op.
func (s *HistoryStore) AddFavorite(ctx context.Context, promptUUID string) error {
	fav := &Favorite{PromptUUID: promptUUID}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(fav).Error
}

// RemoveFavorite unmarks a prompt.
func (s *HistoryStore) RemoveFavorite(ctx context.Context, promptUUID string) error {
	return s.db.WithContext(ctx).
		Where("prompt_uuid = ?", promptUUID).
		Delete(&Favorite{}).Error
}

// Favorites lists favorites, most recent first.
func (s *HistoryStore) Favorites(ctx context.Context) ([]models.Favorite, error) {
	var rows []Favorite
	if err := s.db.WithContext(ctx).Order("created_at_epoch DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Favorite, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Favorite{ID: r.ID, PromptUUID: r.PromptUUID, CreatedAtEpoch: r.CreatedAtEpoch})
	}
	return out, nil
}

// RecordExecution stores one prompt run and trims history beyond the limit.
func (s *HistoryStore) RecordExecution(ctx context.Context, exec models.Execution) (int64, error) {
	vars, err := json.Marshal(exec.Variables)
	if err != nil {
		return 0, err
	}
	row := &Execution{
		PromptUUID: exec.PromptUUID,
		Directory:  exec.Directory,
		Variables:  string(vars),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return 0, err
	}

	// Keep the most recent MaxExecutionsGlobal rows
	err = s.db.WithContext(ctx).Exec(`
		DELETE FROM executions
		WHERE id NOT IN (
			SELECT id FROM executions
			ORDER BY created_at_epoch DESC, id DESC
			LIMIT ?
		)`, MaxExecutionsGlobal).Error
	if err != nil {
		return row.ID, err
	}
	return row.ID, nil
}

// RecentExecutions returns the latest executions, newest first.
func (s *HistoryStore) RecentExecutions(ctx context.Context, limit int) ([]models.Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []Execution
	err := s.db.WithContext(ctx).
		Order("created_at_epoch DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.Execution, 0, len(rows))
	for _, r := range rows {
		e := models.Execution{
			ID:             r.ID,
			PromptUUID:     r.PromptUUID,
			Directory:      r.Directory,
			CreatedAtEpoch: r.CreatedAtEpoch,
		}
		if r.Variables != "" {
			_ = json.Unmarshal([]byte(r.Variables), &e.Variables)
		}
		out = append(out, e)
	}
	return out, nil
}
