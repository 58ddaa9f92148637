// Package gorm provides GORM-based database operations for promptvault.
package gorm

import (
	"github.com/thebtf/promptvault/pkg/models"
)

// toEnvModel converts a GORM row into the domain model.
func toEnvModel(e *EnvVariable) models.EnvVariable {
	return models.EnvVariable{
		ID:       e.ID,
		Name:     e.Name,
		Value:    e.Value,
		Scope:    models.EnvScope(e.Scope),
		PromptID: e.PromptID,
	}
}

// toEnvModels converts a slice of GORM rows.
func toEnvModels(rows []EnvVariable) []models.EnvVariable {
	out := make([]models.EnvVariable, 0, len(rows))
	for i := range rows {
		out = append(out, toEnvModel(&rows[i]))
	}
	return out
}

// uniqueInt64s returns ids without duplicates, preserving order.
func uniqueInt64s(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
