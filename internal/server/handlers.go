package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptvault/internal/catalog"
	"github.com/thebtf/promptvault/internal/db/sqlite"
	"github.com/thebtf/promptvault/internal/library"
	"github.com/thebtf/promptvault/pkg/models"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var amb *catalog.AmbiguousError
	switch {
	case errors.Is(err, catalog.ErrNoMatch),
		errors.Is(err, sqlite.ErrNotFound),
		errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &amb):
		return http.StatusConflict
	case errors.Is(err, library.ErrInvalidSidecar):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Catalog.All(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.deps.Version,
		"prompts": len(all),
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"cache":   s.deps.Catalog.Stats(),
		"clients": s.deps.Events.ClientCount(),
	})
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if q := r.URL.Query().Get("q"); q != "" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		prompts, err := s.deps.Catalog.Search(ctx, q, limit)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"prompts": nonNil(prompts)})
		return
	}

	groups, err := s.deps.Catalog.ByCategory(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := []catalog.Category{}
		for _, g := range groups {
			if g.Name == category {
				filtered = append(filtered, g)
			}
		}
		groups = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": nonNil(groups)})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Catalog.Categories(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": nonNil(names)})
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	detail, err := s.deps.Catalog.Detail(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type resolveRequest struct {
	Values map[string]string `json:"values"`
}

type resolveResponse struct {
	Values    map[string]string `json:"values"`
	Directory string            `json:"directory"`
	PromptID  int64             `json:"prompt_id"`
}

// handleResolve resolves the prompt's stored variable values, overridden by
// any values in the request body.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resolveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	detail, err := s.deps.Catalog.Detail(ctx, chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	values := make(map[string]string, len(detail.Variables)+len(req.Values))
	for _, v := range detail.Variables {
		values[v.Name] = v.Value
	}
	for k, v := range req.Values {
		values[k] = v
	}

	resolved, err := s.deps.Resolver.ResolveAll(ctx, detail.ID, values)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if s.deps.History != nil {
		if _, err := s.deps.History.RecordExecution(ctx, models.Execution{
			PromptUUID: detail.UUID,
			Directory:  detail.Directory,
			Variables:  values,
		}); err != nil {
			log.Warn().Err(err).Str("directory", detail.Directory).Msg("Failed to record execution")
		}
	}

	writeJSON(w, http.StatusOK, resolveResponse{Values: resolved, Directory: detail.Directory, PromptID: detail.ID})
}

func (s *Server) handleFragments(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Library.FragmentCategories()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	out := make(map[string][]models.Fragment, len(cats))
	for _, c := range cats {
		frags, err := s.deps.Library.ListFragments(c)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		out[c] = nonNil(frags)
	}
	writeJSON(w, http.StatusOK, map[string]any{"fragments": out})
}

func (s *Server) handleFragment(w http.ResponseWriter, r *http.Request) {
	category, name := chi.URLParam(r, "category"), chi.URLParam(r, "name")
	content, err := s.deps.Library.ReadFragment(category, name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, models.Fragment{Category: category, Name: name, Content: content})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if dir := r.URL.Query().Get("directory"); dir != "" {
		if err := s.deps.Reconciler.SyncOne(ctx, dir); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"synced": 1, "directory": dir})
		return
	}

	report, err := s.deps.Reconciler.SyncAll(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Reconciler.CleanupOrphans(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
