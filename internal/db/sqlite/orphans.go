package sqlite

import (
	"context"
	"fmt"
)

// DeletePromptsNotIn deletes every prompt whose directory is not in keep and
// returns the number of prompts removed. An empty keep set is refused since
// it would wipe the index.
func (s *PromptStore) DeletePromptsNotIn(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		return 0, fmt.Errorf("refusing to delete prompts with an empty keep set")
	}

	args := make([]interface{}, len(keep))
	for i, d := range keep {
		args[i] = d
	}
	// #nosec G202 -- only placeholders are concatenated
	query := `DELETE FROM prompts WHERE directory NOT IN (` + placeholders(len(keep)) + `)`
	res, err := Exec(ctx, s.q, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// DeleteDanglingLinks removes subcategory and fragment association rows whose
// prompt no longer exists. Returns the count per table.
func (s *PromptStore) DeleteDanglingLinks(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 2)
	for _, table := range []string{"subcategories", "prompt_fragments"} {
		// #nosec G202 -- table names are constants
		res, err := Exec(ctx, s.q,
			"DELETE FROM "+table+" WHERE prompt_id NOT IN (SELECT id FROM prompts)")
		if err != nil {
			return nil, fmt.Errorf("clean %s: %w", table, err)
		}
		out[table] = res.RowsAffected
	}
	return out, nil
}

// DeleteUnsharedDanglingVariables removes variable rows whose prompt no longer
// exists, unless a surviving prompt declares a variable with the same name.
// Returns how many rows were deleted and how many were kept as shared.
func (s *PromptStore) DeleteUnsharedDanglingVariables(ctx context.Context) (deleted, kept int64, err error) {
	res, err := Exec(ctx, s.q, `
		DELETE FROM variables
		WHERE prompt_id NOT IN (SELECT id FROM prompts)
		  AND name NOT IN (
			SELECT v.name FROM variables v
			WHERE v.prompt_id IN (SELECT id FROM prompts)
		  )
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("clean variables: %w", err)
	}

	kept, err = QueryOne(ctx, s.q, scanInt64,
		`SELECT COUNT(*) FROM variables WHERE prompt_id NOT IN (SELECT id FROM prompts)`)
	if err != nil {
		return 0, 0, fmt.Errorf("count shared variables: %w", err)
	}
	return res.RowsAffected, kept, nil
}

// PromptIDs returns the ids of every indexed prompt.
func (s *PromptStore) PromptIDs(ctx context.Context) ([]int64, error) {
	return QueryMany(ctx, s.q, scanInt64, `SELECT id FROM prompts ORDER BY id`)
}
