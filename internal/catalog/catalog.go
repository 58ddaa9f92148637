// Package catalog serves prompt queries, memoizing the aggregate ones in the
// TTL cache.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/thebtf/promptvault/internal/cache"
	"github.com/thebtf/promptvault/internal/db/sqlite"
	"github.com/thebtf/promptvault/pkg/models"
)

// ErrNoMatch is returned when a prompt reference matches nothing.
var ErrNoMatch = errors.New("no prompt matches")

// AmbiguousError is returned when a substring reference matches more than one
// prompt.
type AmbiguousError struct {
	Ref     string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%q matches %d prompts: %s", e.Ref, len(e.Matches), strings.Join(e.Matches, ", "))
}

// Category groups the prompts sharing a primary category.
type Category struct {
	Name    string          `json:"name"`
	Prompts []models.Prompt `json:"prompts"`
}

// Catalog answers prompt queries.
type Catalog struct {
	prompts *sqlite.PromptStore
	cache   *cache.Cache
}

// New creates a Catalog.
func New(prompts *sqlite.PromptStore, c *cache.Cache) *Catalog {
	return &Catalog{prompts: prompts, cache: c}
}

// All returns every prompt ordered by category and title. The slice is a copy;
// Tags and Subcategories of its elements are still shared with the cache and
// must not be modified.
func (c *Catalog) All(ctx context.Context) ([]models.Prompt, error) {
	all, err := c.cachedAll(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(all), nil
}

func (c *Catalog) cachedAll(ctx context.Context) ([]models.Prompt, error) {
	return cache.Remember(ctx, c.cache, cache.KeyAllPrompts, c.prompts.ListPrompts)
}

// ByCategory returns the prompts grouped by primary category, sorted by name.
// Prompts without a category are grouped under "uncategorized". The groups
// and their prompt slices are copies, as in All.
func (c *Catalog) ByCategory(ctx context.Context) ([]Category, error) {
	groups, err := c.cachedByCategory(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Category, len(groups))
	for i, g := range groups {
		out[i] = Category{Name: g.Name, Prompts: slices.Clone(g.Prompts)}
	}
	return out, nil
}

func (c *Catalog) cachedByCategory(ctx context.Context) ([]Category, error) {
	return cache.Remember(ctx, c.cache, cache.KeyByCategory, func(ctx context.Context) ([]Category, error) {
		all, err := c.cachedAll(ctx)
		if err != nil {
			return nil, err
		}
		index := make(map[string]int)
		var groups []Category
		for _, p := range all {
			name := p.PrimaryCategory
			if name == "" {
				name = "uncategorized"
			}
			i, ok := index[name]
			if !ok {
				i = len(groups)
				index[name] = i
				groups = append(groups, Category{Name: name})
			}
			groups[i].Prompts = append(groups[i].Prompts, p)
		}
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
		return groups, nil
	})
}

// Categories returns the distinct primary categories.
func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	names, err := cache.Remember(ctx, c.cache, cache.KeyCategories, func(ctx context.Context) ([]string, error) {
		groups, err := c.cachedByCategory(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(groups))
		for i, g := range groups {
			names[i] = g.Name
		}
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(names), nil
}

// Find resolves a user supplied reference to a prompt. It tries, in order, a
// numeric id, an exact directory, then a unique directory substring and a
// unique title substring (case-insensitive).
func (c *Catalog) Find(ctx context.Context, ref string) (*models.Prompt, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrNoMatch
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		p, err := c.prompts.GetPrompt(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, sqlite.ErrNotFound) {
			return nil, err
		}
	}

	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Directory == ref {
			p := all[i]
			return &p, nil
		}
	}

	needle := strings.ToLower(ref)
	match := func(field func(models.Prompt) string) (*models.Prompt, error) {
		var found []int
		for i := range all {
			if strings.Contains(strings.ToLower(field(all[i])), needle) {
				found = append(found, i)
			}
		}
		switch len(found) {
		case 0:
			return nil, nil
		case 1:
			p := all[found[0]]
			return &p, nil
		default:
			dirs := make([]string, len(found))
			for i, idx := range found {
				dirs[i] = all[idx].Directory
			}
			return nil, &AmbiguousError{Ref: ref, Matches: dirs}
		}
	}

	if p, err := match(func(p models.Prompt) string { return p.Directory }); p != nil || err != nil {
		return p, err
	}
	if p, err := match(func(p models.Prompt) string { return p.Title }); p != nil || err != nil {
		return p, err
	}
	return nil, fmt.Errorf("%q: %w", ref, ErrNoMatch)
}

// Detail finds a prompt and loads its variables and fragment links.
func (c *Catalog) Detail(ctx context.Context, ref string) (*models.PromptDetail, error) {
	p, err := c.Find(ctx, ref)
	if err != nil {
		return nil, err
	}
	return c.prompts.GetDetail(ctx, p.ID)
}

// DefaultSearchLimit caps Search results when no limit is given.
const DefaultSearchLimit = 20

// Search ranks prompts for a free-text query. Full-text hits are fused with
// title and tag matches from the cached listing, so a prompt whose title
// contains the query ranks well even when the tokenizer splits it differently.
// Results are not cached.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]models.Prompt, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	hits, err := c.prompts.SearchPrompts(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Prompt, len(all))
	for _, p := range all {
		byID[p.ID] = p
	}
	fts := make([]int64, 0, len(hits))
	for _, p := range hits {
		fts = append(fts, p.ID)
		if _, ok := byID[p.ID]; !ok {
			byID[p.ID] = p
		}
	}

	needle := strings.ToLower(query)
	terms := strings.Fields(needle)
	var titles, tags []int64
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Title), needle) {
			titles = append(titles, p.ID)
		}
		if hasTag(p.Tags, terms) {
			tags = append(tags, p.ID)
		}
	}

	ranked := fuse(fts, titles, tags)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]models.Prompt, 0, len(ranked))
	for _, id := range ranked {
		out = append(out, byID[id])
	}
	return out, nil
}

func hasTag(tags []string, terms []string) bool {
	for _, t := range tags {
		t = strings.ToLower(t)
		for _, term := range terms {
			if t == term {
				return true
			}
		}
	}
	return false
}

// SetVariableValue stores a value for one of a prompt's variables.
func (c *Catalog) SetVariableValue(ctx context.Context, promptID int64, name, value string) error {
	if err := c.prompts.SetVariableValue(ctx, promptID, name, value); err != nil {
		return err
	}
	c.cache.Invalidate()
	return nil
}

// Stats reports cache activity.
func (c *Catalog) Stats() cache.Stats {
	return c.cache.Stats()
}
