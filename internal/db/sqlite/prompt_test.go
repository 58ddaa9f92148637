package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/promptvault/pkg/models"
)

func testPromptStore(t *testing.T) *PromptStore {
	t.Helper()
	return NewPromptStore(testStore(t))
}

func seedPrompt(t *testing.T, ps *PromptStore, dir string) int64 {
	t.Helper()
	ctx := context.Background()

	p := &models.Prompt{
		UUID:               "uuid-" + dir,
		Title:              "Title " + dir,
		PrimaryCategory:    "coding",
		Directory:          dir,
		OneLineDescription: "one line for " + dir,
		Body:               "Body of " + dir + " with {{TOPIC}}",
		Tags:               models.Tags{"go", "test"},
	}
	id, err := ps.InsertPrompt(ctx, p)
	require.NoError(t, err)
	require.NoError(t, ps.InsertSubcategories(ctx, id, []string{"backend", "tools"}))
	require.NoError(t, ps.InsertVariables(ctx, id, []models.Variable{
		{Name: "TOPIC", Role: "subject"},
		{Name: "STYLE", Role: "tone", OptionalForUser: true},
	}))
	require.NoError(t, ps.InsertFragmentLinks(ctx, id, []models.FragmentLink{
		{Category: "formatting", Name: "markdown", Variable: "STYLE"},
	}))
	return id
}

func TestPromptStore_InsertAndGet(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()

	id := seedPrompt(t, ps, "alpha")
	assert.Greater(t, id, int64(0))

	detail, err := ps.GetDetail(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alpha", detail.Directory)
	assert.Equal(t, models.Tags{"go", "test"}, detail.Tags)
	assert.Equal(t, []string{"backend", "tools"}, detail.Subcategories)
	require.Len(t, detail.Variables, 2)
	assert.Equal(t, "TOPIC", detail.Variables[0].Name)
	assert.True(t, detail.Variables[1].OptionalForUser)
	require.Len(t, detail.Fragments, 1)
	assert.Equal(t, "markdown", detail.Fragments[0].Name)

	byDir, err := ps.GetPromptByDirectory(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, id, byDir.ID)
}

func TestPromptStore_InsertKeepsExplicitID(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()

	p := &models.Prompt{UUID: "u", Title: "t", Directory: "kept", ID: 77}
	id, err := ps.InsertPrompt(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)

	// New rows continue after the highest id.
	next := seedPrompt(t, ps, "next")
	assert.Greater(t, next, int64(77))
}

func TestPromptStore_GetMissing(t *testing.T) {
	ps := testPromptStore(t)

	_, err := ps.GetPrompt(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPromptStore_UpsertKeepsID(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()

	id := seedPrompt(t, ps, "alpha")

	updated := &models.Prompt{UUID: "uuid-alpha", Title: "Renamed", Directory: "alpha"}
	got, err := ps.UpsertPrompt(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	p, err := ps.GetPrompt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Title)

	n, err := ps.CountPrompts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPromptStore_DeleteChildren(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()

	id := seedPrompt(t, ps, "alpha")
	require.NoError(t, ps.DeleteChildren(ctx, id))

	detail, err := ps.GetDetail(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, detail.Variables)
	assert.Empty(t, detail.Fragments)
	assert.Empty(t, detail.Subcategories)
}

func TestPromptStore_DeleteAll(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()

	seedPrompt(t, ps, "alpha")
	seedPrompt(t, ps, "beta")
	require.NoError(t, ps.DeleteAll(ctx))

	n, err := ps.CountPrompts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	vars, err := QueryOne(ctx, ps.q, scanInt64, "SELECT COUNT(*) FROM variables")
	require.NoError(t, err)
	assert.Zero(t, vars)
}

func TestPromptStore_VariableValues(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()

	id := seedPrompt(t, ps, "alpha")
	seedPrompt(t, ps, "beta")
	require.NoError(t, ps.SetVariableValue(ctx, id, "TOPIC", "databases"))

	values, err := ps.VariableValues(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]string{"alpha": {"TOPIC": "databases"}}, values)

	err = ps.SetVariableValue(ctx, id, "MISSING", "x")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPromptStore_DirectoryIDs(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()

	a := seedPrompt(t, ps, "alpha")
	b := seedPrompt(t, ps, "beta")

	ids, err := ps.DirectoryIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"alpha": a, "beta": b}, ids)
}

func TestPromptStore_ListPrompts(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()

	seedPrompt(t, ps, "beta")
	seedPrompt(t, ps, "alpha")

	prompts, err := ps.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 2)
	assert.Equal(t, "alpha", prompts[0].Directory)
	assert.Equal(t, []string{"backend", "tools"}, prompts[1].Subcategories)
}

func TestPromptStore_SearchPrompts(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()

	seedPrompt(t, ps, "alpha")
	seedPrompt(t, ps, "beta")

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "title term", query: "alpha", want: []string{"alpha"}},
		{name: "body term in both", query: "Body", want: []string{"alpha", "beta"}},
		{name: "quotes are escaped", query: `"beta`, want: []string{"beta"}},
		{name: "empty", query: "   ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ps.SearchPrompts(ctx, tt.query, 10)
			require.NoError(t, err)
			var dirs []string
			for _, p := range got {
				dirs = append(dirs, p.Directory)
			}
			assert.ElementsMatch(t, tt.want, dirs)
		})
	}
}

func TestPromptStore_DeletePromptsNotIn(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()

	seedPrompt(t, ps, "alpha")
	seedPrompt(t, ps, "beta")
	seedPrompt(t, ps, "gamma")

	removed, err := ps.DeletePromptsNotIn(ctx, []string{"alpha", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	counts, err := ps.DeleteDanglingLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["subcategories"])
	assert.Equal(t, int64(1), counts["prompt_fragments"])

	_, err = ps.DeletePromptsNotIn(ctx, nil)
	assert.Error(t, err)

	ids, err := ps.PromptIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestPromptStore_DeleteUnsharedDanglingVariables(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()

	a := seedPrompt(t, ps, "alpha")
	b := seedPrompt(t, ps, "beta")
	require.NoError(t, ps.InsertVariables(ctx, a, []models.Variable{{Name: "ONLY_ALPHA"}}))

	// alpha disappears; TOPIC and STYLE are still declared by beta
	_, err := ps.DeletePromptsNotIn(ctx, []string{"beta"})
	require.NoError(t, err)

	deleted, kept, err := ps.DeleteUnsharedDanglingVariables(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, int64(2), kept)

	names, err := QueryMany(ctx, ps.q, scanString,
		`SELECT name FROM variables WHERE prompt_id = ? ORDER BY name`, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"STYLE", "TOPIC"}, names)

	// beta disappears too: nothing shares the names any more
	_, err = Exec(ctx, ps.q, `DELETE FROM prompts WHERE id = ?`, b)
	require.NoError(t, err)
	deleted, kept, err = ps.DeleteUnsharedDanglingVariables(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	assert.Zero(t, kept)
}

func TestPromptStore_InTxRollback(t *testing.T) {
	ps := testPromptStore(t)
	ctx := context.Background()
	seedPrompt(t, ps, "alpha")

	err := ps.InTx(ctx, func(tx *PromptStore) error {
		if err := tx.DeleteAll(ctx); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	n, err := ps.CountPrompts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
