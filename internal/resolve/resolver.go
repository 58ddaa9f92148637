package resolve

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptvault/pkg/models"
)

// MaxAliasDepth bounds how many $env: hops a single lookup may follow.
const MaxAliasDepth = 16

// FragmentReader returns fragment content.
type FragmentReader interface {
	ReadFragment(category, name string) (string, error)
}

// EnvSource returns the env variables visible to a prompt: every global plus
// the ones scoped to promptID.
type EnvSource interface {
	ListInScope(ctx context.Context, promptID int64) ([]models.EnvVariable, error)
}

// Resolver resolves variable values against fragments and env variables.
type Resolver struct {
	fragments FragmentReader
	envs      EnvSource
}

// New creates a Resolver. envs may be nil when only Resolve is used.
func New(fragments FragmentReader, envs EnvSource) *Resolver {
	return &Resolver{fragments: fragments, envs: envs}
}

// Resolve returns the concrete value of raw given an env snapshot. A
// reference that cannot be resolved (missing fragment, unknown env name,
// alias cycle, too many hops) comes back unchanged so it stays visible in
// the output.
func (r *Resolver) Resolve(raw string, envs []models.EnvVariable) string {
	return r.resolve(raw, scopeIndex(envs))
}

func (r *Resolver) resolve(raw string, index map[string]string) string {
	switch ref := Parse(raw).(type) {
	case FragmentRef:
		if r.fragments == nil || ref.Category == "" || ref.Name == "" {
			return raw
		}
		content, err := r.fragments.ReadFragment(ref.Category, ref.Name)
		if err != nil {
			log.Debug().Err(err).Str("ref", raw).Msg("Fragment reference left unresolved")
			return raw
		}
		return content
	case EnvRef:
		value, ok := lookupEnv(ref.Name, index)
		if !ok {
			log.Debug().Str("ref", raw).Msg("Env reference left unresolved")
			return raw
		}
		return value
	default:
		return raw
	}
}

// lookupEnv follows $env: aliases starting at name.
func lookupEnv(name string, index map[string]string) (string, bool) {
	visited := make(map[string]struct{}, 4)
	for depth := 0; depth < MaxAliasDepth; depth++ {
		if _, seen := visited[name]; seen {
			log.Warn().Str("name", name).Msg("Env alias cycle")
			return "", false
		}
		visited[name] = struct{}{}

		value, ok := index[name]
		if !ok {
			return "", false
		}
		next, isAlias := Parse(value).(EnvRef)
		if !isAlias {
			return value, true
		}
		name = next.Name
	}
	log.Warn().Str("name", name).Int("depth", MaxAliasDepth).Msg("Env alias chain too deep")
	return "", false
}

// scopeIndex maps names to values. Prompt-scoped variables shadow globals.
func scopeIndex(envs []models.EnvVariable) map[string]string {
	index := make(map[string]string, len(envs))
	for _, e := range envs {
		if e.IsGlobal() {
			if _, taken := index[e.Name]; !taken {
				index[e.Name] = e.Value
			}
		}
	}
	for _, e := range envs {
		if !e.IsGlobal() {
			index[e.Name] = e.Value
		}
	}
	return index
}

// ResolveAll resolves every referenced value in values for the prompt with
// promptID. Literals are copied through. The env snapshot is fetched once;
// failing to fetch it fails the whole batch.
func (r *Resolver) ResolveAll(ctx context.Context, promptID int64, values map[string]string) (map[string]string, error) {
	if r.envs == nil {
		return nil, fmt.Errorf("resolve variables: no env source")
	}
	envs, err := r.envs.ListInScope(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("load env variables: %w", err)
	}
	index := scopeIndex(envs)

	out := make(map[string]string, len(values))
	for k, v := range values {
		if IsReference(v) {
			out[k] = r.resolve(v, index)
		} else {
			out[k] = v
		}
	}
	return out, nil
}
