package sqlite

import (
	"strings"

	"github.com/thebtf/promptvault/pkg/models"
)

// promptColumns is the column list shared by every prompt query.
const promptColumns = `id, uuid, title, primary_category, directory, one_line_description,
	description, tags, content_hash, body, token_count, synced_at_epoch`

// placeholders generates n comma-separated placeholders for SQL IN clauses.
// e.g., placeholders(3) returns "?, ?, ?"
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// int64SliceToInterface converts []int64 to []interface{} for SQL queries.
func int64SliceToInterface(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// scanPrompt scans a single prompt from a row scanner.
func scanPrompt(scanner RowScanner) (models.Prompt, error) {
	var p models.Prompt
	err := scanner.Scan(
		&p.ID, &p.UUID, &p.Title, &p.PrimaryCategory, &p.Directory, &p.OneLineDescription,
		&p.Description, &p.Tags, &p.ContentHash, &p.Body, &p.TokenCount, &p.SyncedAtEpoch,
	)
	return p, err
}

func scanVariable(scanner RowScanner) (models.Variable, error) {
	var v models.Variable
	err := scanner.Scan(&v.ID, &v.PromptID, &v.Name, &v.Role, &v.OptionalForUser, &v.Value)
	return v, err
}

func scanFragmentLink(scanner RowScanner) (models.FragmentLink, error) {
	var f models.FragmentLink
	err := scanner.Scan(&f.ID, &f.PromptID, &f.Category, &f.Name, &f.Variable)
	return f, err
}

func scanSubcategory(scanner RowScanner) (models.Subcategory, error) {
	var s models.Subcategory
	err := scanner.Scan(&s.ID, &s.PromptID, &s.Name)
	return s, err
}

func scanInt64(scanner RowScanner) (int64, error) {
	var v int64
	err := scanner.Scan(&v)
	return v, err
}

func scanString(scanner RowScanner) (string, error) {
	var v string
	err := scanner.Scan(&v)
	return v, err
}
