package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/thebtf/promptvault/pkg/models"
)

// PromptStore provides prompt index operations. Use WithTx to run the same
// operations inside a transaction.
type PromptStore struct {
	store *Store
	q     Querier
}

// NewPromptStore creates a new prompt store.
func NewPromptStore(store *Store) *PromptStore {
	return &PromptStore{store: store, q: store}
}

// WithTx returns a PromptStore bound to q (usually a *sql.Tx).
func (s *PromptStore) WithTx(q Querier) *PromptStore {
	return &PromptStore{store: s.store, q: q}
}

// InTx runs fn with a transaction-bound PromptStore.
func (s *PromptStore) InTx(ctx context.Context, fn func(tx *PromptStore) error) error {
	return s.store.InTx(ctx, func(q Querier) error {
		return fn(s.WithTx(q))
	})
}

// InsertPrompt inserts a prompt row. When p.ID is set the row keeps that id,
// which lets a full rebuild hand prompts back the ids they had before.
func (s *PromptStore) InsertPrompt(ctx context.Context, p *models.Prompt) (int64, error) {
	if p.SyncedAtEpoch == 0 {
		p.SyncedAtEpoch = time.Now().UnixMilli()
	}

	var idArg interface{}
	if p.ID > 0 {
		idArg = p.ID
	}

	const query = `
		INSERT INTO prompts
		(id, uuid, title, primary_category, directory, one_line_description,
		 description, tags, content_hash, body, token_count, synced_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := Exec(ctx, s.q, query,
		idArg, p.UUID, p.Title, p.PrimaryCategory, p.Directory, p.OneLineDescription,
		p.Description, p.Tags, p.ContentHash, p.Body, p.TokenCount, p.SyncedAtEpoch,
	)
	if err != nil {
		return 0, err
	}
	p.ID = res.LastInsertID
	return p.ID, nil
}

// UpsertPrompt inserts or updates a prompt keyed by directory and returns its id.
// An existing row keeps its id.
func (s *PromptStore) UpsertPrompt(ctx context.Context, p *models.Prompt) (int64, error) {
	if p.SyncedAtEpoch == 0 {
		p.SyncedAtEpoch = time.Now().UnixMilli()
	}

	const query = `
		INSERT INTO prompts
		(uuid, title, primary_category, directory, one_line_description,
		 description, tags, content_hash, body, token_count, synced_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(directory) DO UPDATE SET
			uuid = excluded.uuid,
			title = excluded.title,
			primary_category = excluded.primary_category,
			one_line_description = excluded.one_line_description,
			description = excluded.description,
			tags = excluded.tags,
			content_hash = excluded.content_hash,
			body = excluded.body,
			token_count = excluded.token_count,
			synced_at_epoch = excluded.synced_at_epoch
	`
	if _, err := Exec(ctx, s.q, query,
		p.UUID, p.Title, p.PrimaryCategory, p.Directory, p.OneLineDescription,
		p.Description, p.Tags, p.ContentHash, p.Body, p.TokenCount, p.SyncedAtEpoch,
	); err != nil {
		return 0, err
	}

	id, err := QueryOne(ctx, s.q, scanInt64, `SELECT id FROM prompts WHERE directory = ?`, p.Directory)
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

// DeleteAll removes every prompt row and every child row.
func (s *PromptStore) DeleteAll(ctx context.Context) error {
	for _, table := range []string{"prompt_fragments", "variables", "subcategories", "prompts"} {
		// #nosec G202 -- table names are constants
		if _, err := Exec(ctx, s.q, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// DeleteChildren removes subcategories, variables and fragment links of a prompt.
func (s *PromptStore) DeleteChildren(ctx context.Context, promptID int64) error {
	for _, table := range []string{"prompt_fragments", "variables", "subcategories"} {
		// #nosec G202 -- table names are constants
		if _, err := Exec(ctx, s.q, "DELETE FROM "+table+" WHERE prompt_id = ?", promptID); err != nil {
			return fmt.Errorf("clear %s for prompt %d: %w", table, promptID, err)
		}
	}
	return nil
}

// InsertSubcategories inserts subcategory rows for a prompt.
func (s *PromptStore) InsertSubcategories(ctx context.Context, promptID int64, names []string) error {
	const query = `INSERT INTO subcategories (prompt_id, name) VALUES (?, ?)`
	for _, name := range names {
		if _, err := Exec(ctx, s.q, query, promptID, name); err != nil {
			return err
		}
	}
	return nil
}

// InsertVariables inserts variable rows for a prompt.
func (s *PromptStore) InsertVariables(ctx context.Context, promptID int64, vars []models.Variable) error {
	const query = `
		INSERT INTO variables (prompt_id, name, role, optional_for_user, value)
		VALUES (?, ?, ?, ?, ?)
	`
	for _, v := range vars {
		if _, err := Exec(ctx, s.q, query, promptID, v.Name, v.Role, v.OptionalForUser, v.Value); err != nil {
			return err
		}
	}
	return nil
}

// InsertFragmentLinks inserts fragment association rows for a prompt.
func (s *PromptStore) InsertFragmentLinks(ctx context.Context, promptID int64, links []models.FragmentLink) error {
	const query = `INSERT INTO prompt_fragments (prompt_id, category, name, variable) VALUES (?, ?, ?, ?)`
	for _, l := range links {
		if _, err := Exec(ctx, s.q, query, promptID, l.Category, l.Name, l.Variable); err != nil {
			return err
		}
	}
	return nil
}

// DirectoryIDs maps every indexed directory to its prompt id.
func (s *PromptStore) DirectoryIDs(ctx context.Context) (map[string]int64, error) {
	type pair struct {
		dir string
		id  int64
	}
	pairs, err := QueryMany(ctx, s.q, func(r RowScanner) (pair, error) {
		var p pair
		err := r.Scan(&p.dir, &p.id)
		return p, err
	}, `SELECT directory, id FROM prompts`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(pairs))
	for _, p := range pairs {
		out[p.dir] = p.id
	}
	return out, nil
}

// VariableValues returns non-empty variable values keyed by directory then name.
func (s *PromptStore) VariableValues(ctx context.Context) (map[string]map[string]string, error) {
	type row struct {
		dir, name, value string
	}
	rows, err := QueryMany(ctx, s.q, func(r RowScanner) (row, error) {
		var v row
		err := r.Scan(&v.dir, &v.name, &v.value)
		return v, err
	}, `
		SELECT p.directory, v.name, v.value
		FROM variables v
		JOIN prompts p ON p.id = v.prompt_id
		WHERE v.value != ''
	`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string)
	for _, r := range rows {
		if out[r.dir] == nil {
			out[r.dir] = make(map[string]string)
		}
		out[r.dir][r.name] = r.value
	}
	return out, nil
}

// GetPrompt returns a prompt by id.
func (s *PromptStore) GetPrompt(ctx context.Context, id int64) (*models.Prompt, error) {
	p, err := QueryOne(ctx, s.q, scanPrompt, `SELECT `+promptColumns+` FROM prompts WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return s.withSubcategories(ctx, &p)
}

// GetPromptByDirectory returns a prompt by its directory.
func (s *PromptStore) GetPromptByDirectory(ctx context.Context, directory string) (*models.Prompt, error) {
	p, err := QueryOne(ctx, s.q, scanPrompt, `SELECT `+promptColumns+` FROM prompts WHERE directory = ?`, directory)
	if err != nil {
		return nil, err
	}
	return s.withSubcategories(ctx, &p)
}

func (s *PromptStore) withSubcategories(ctx context.Context, p *models.Prompt) (*models.Prompt, error) {
	names, err := QueryMany(ctx, s.q, scanString,
		`SELECT name FROM subcategories WHERE prompt_id = ? ORDER BY id`, p.ID)
	if err != nil {
		return nil, err
	}
	p.Subcategories = names
	return p, nil
}

// ListPrompts returns every prompt ordered by category and title, with
// subcategories attached.
func (s *PromptStore) ListPrompts(ctx context.Context) ([]models.Prompt, error) {
	prompts, err := QueryMany(ctx, s.q, scanPrompt,
		`SELECT `+promptColumns+` FROM prompts ORDER BY primary_category, title, id`)
	if err != nil {
		return nil, err
	}

	subs, err := QueryMany(ctx, s.q, scanSubcategory,
		`SELECT id, prompt_id, name FROM subcategories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	byPrompt := make(map[int64][]string)
	for _, sc := range subs {
		byPrompt[sc.PromptID] = append(byPrompt[sc.PromptID], sc.Name)
	}
	for i := range prompts {
		prompts[i].Subcategories = byPrompt[prompts[i].ID]
	}
	return prompts, nil
}

// CountPrompts returns the number of indexed prompts.
func (s *PromptStore) CountPrompts(ctx context.Context) (int64, error) {
	return QueryOne(ctx, s.q, scanInt64, `SELECT COUNT(*) FROM prompts`)
}

// GetVariables returns the variables of a prompt in declaration order.
func (s *PromptStore) GetVariables(ctx context.Context, promptID int64) ([]models.Variable, error) {
	return QueryMany(ctx, s.q, scanVariable, `
		SELECT id, prompt_id, name, role, optional_for_user, value
		FROM variables WHERE prompt_id = ? ORDER BY id
	`, promptID)
}

// GetFragmentLinks returns the fragment associations of a prompt.
func (s *PromptStore) GetFragmentLinks(ctx context.Context, promptID int64) ([]models.FragmentLink, error) {
	return QueryMany(ctx, s.q, scanFragmentLink, `
		SELECT id, prompt_id, category, name, variable
		FROM prompt_fragments WHERE prompt_id = ? ORDER BY id
	`, promptID)
}

// GetDetail returns a prompt with its variables and fragment links.
func (s *PromptStore) GetDetail(ctx context.Context, id int64) (*models.PromptDetail, error) {
	p, err := s.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	vars, err := s.GetVariables(ctx, id)
	if err != nil {
		return nil, err
	}
	frags, err := s.GetFragmentLinks(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.PromptDetail{Prompt: *p, Variables: vars, Fragments: frags}, nil
}

// SetVariableValue sets the stored value of one of a prompt's variables.
func (s *PromptStore) SetVariableValue(ctx context.Context, promptID int64, name, value string) error {
	res, err := Exec(ctx, s.q,
		`UPDATE variables SET value = ? WHERE prompt_id = ? AND name = ?`,
		value, promptID, name)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return &Error{Op: "set variable", Kind: KindNotFound,
			Err: fmt.Errorf("prompt %d has no variable %q", promptID, name)}
	}
	return nil
}

// SearchPrompts runs a full-text query over titles, descriptions and bodies.
func (s *PromptStore) SearchPrompts(ctx context.Context, query string, limit int) ([]models.Prompt, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	// Quote every term so user input never reaches the FTS5 query syntax
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}

	const sqlQuery = `
		SELECT p.id, p.uuid, p.title, p.primary_category, p.directory, p.one_line_description,
		       p.description, p.tags, p.content_hash, p.body, p.token_count, p.synced_at_epoch
		FROM prompts_fts f
		JOIN prompts p ON p.id = f.rowid
		WHERE prompts_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`
	return QueryMany(ctx, s.q, scanPrompt, sqlQuery, strings.Join(terms, " "), limit)
}
