package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/thebtf/promptvault/internal/cache"
	"github.com/thebtf/promptvault/internal/catalog"
	dbgorm "github.com/thebtf/promptvault/internal/db/gorm"
	"github.com/thebtf/promptvault/internal/db/sqlite"
	"github.com/thebtf/promptvault/internal/library"
	"github.com/thebtf/promptvault/internal/reconcile"
	"github.com/thebtf/promptvault/internal/resolve"
	"github.com/thebtf/promptvault/internal/server/sse"
)

type ServerSuite struct {
	suite.Suite
	ctx        context.Context
	promptsDir string
	fragsDir   string
	envs       *dbgorm.EnvStore
	history    *dbgorm.HistoryStore
	rec        *reconcile.Reconciler
	srv        *Server
	events     *sse.Broadcaster
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.ctx = context.Background()
	root := s.T().TempDir()
	s.promptsDir = filepath.Join(root, "prompts")
	s.fragsDir = filepath.Join(root, "fragments")

	gs, err := dbgorm.NewStore(dbgorm.Config{
		Path:     filepath.Join(root, "index.db"),
		LogLevel: logger.Silent,
	})
	s.Require().NoError(err)
	raw := sqlite.NewStoreFromDB(gs.GetRawDB())
	s.T().Cleanup(func() {
		_ = raw.Close()
		_ = gs.Close()
	})

	prompts := sqlite.NewPromptStore(raw)
	s.envs = dbgorm.NewEnvStore(gs)
	s.history = dbgorm.NewHistoryStore(gs)
	c := cache.New(time.Minute)
	lib := library.New(nil, s.promptsDir, s.fragsDir)
	s.events = sse.NewBroadcaster()

	s.rec = reconcile.New(lib, prompts, s.envs, c, reconcile.Options{
		OnEvent: func(e reconcile.Event) { s.events.Publish(e.Op, e) },
	})
	s.srv = New(Deps{
		Catalog:    catalog.New(prompts, c),
		Reconciler: s.rec,
		Resolver:   resolve.New(lib, s.envs),
		Library:    lib,
		History:    s.history,
		Events:     s.events,
		Version:    "test",
	})

	s.writePrompt("code-review", "Code Review", "engineering", "LANGUAGE", "CONTEXT")
	s.writePrompt("release-notes", "Release Notes", "writing", "AUDIENCE")
	s.writeFragment("style", "concise", "Be brief.")

	_, err = s.rec.SyncAll(s.ctx)
	s.Require().NoError(err)
}

func (s *ServerSuite) writePrompt(dir, title, category string, vars ...string) {
	path := filepath.Join(s.promptsDir, dir)
	s.Require().NoError(os.MkdirAll(path, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(path, library.PromptFile), []byte("Body of "+title), 0o644))

	meta := "title: " + title + "\nprimary_category: " + category + "\ntags: [x]\nvariables:\n"
	for _, v := range vars {
		meta += "  - name: " + v + "\n    role: r\n"
	}
	s.Require().NoError(os.WriteFile(filepath.Join(path, library.SidecarFile), []byte(meta), 0o644))
}

func (s *ServerSuite) writeFragment(category, name, content string) {
	dir := filepath.Join(s.fragsDir, category)
	s.Require().NoError(os.MkdirAll(dir, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o644))
}

func (s *ServerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (s *ServerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *ServerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/api/health", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("application/json", rec.Header().Get("Content-Type"))

	var out map[string]any
	s.decode(rec, &out)
	s.Equal("ok", out["status"])
	s.Equal("test", out["version"])
	s.EqualValues(2, out["prompts"])
}

func (s *ServerSuite) TestListPrompts_Grouped() {
	rec := s.do(http.MethodGet, "/api/prompts", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var out struct {
		Categories []catalog.Category `json:"categories"`
	}
	s.decode(rec, &out)
	s.Require().Len(out.Categories, 2)
	s.Equal("engineering", out.Categories[0].Name)
	s.Equal("writing", out.Categories[1].Name)
}

func (s *ServerSuite) TestListPrompts_CategoryFilter() {
	rec := s.do(http.MethodGet, "/api/prompts?category=writing", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var out struct {
		Categories []catalog.Category `json:"categories"`
	}
	s.decode(rec, &out)
	s.Require().Len(out.Categories, 1)
	s.Require().Len(out.Categories[0].Prompts, 1)
	s.Equal("release-notes", out.Categories[0].Prompts[0].Directory)
}

func (s *ServerSuite) TestListPrompts_Search() {
	rec := s.do(http.MethodGet, "/api/prompts?q=release", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var out struct {
		Prompts []map[string]any `json:"prompts"`
	}
	s.decode(rec, &out)
	s.Require().Len(out.Prompts, 1)
	s.Equal("release-notes", out.Prompts[0]["directory"])
}

func (s *ServerSuite) TestCategories() {
	rec := s.do(http.MethodGet, "/api/categories", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var out struct {
		Categories []string `json:"categories"`
	}
	s.decode(rec, &out)
	s.Equal([]string{"engineering", "writing"}, out.Categories)
}

func (s *ServerSuite) TestGetPrompt() {
	tests := []struct {
		name   string
		ref    string
		status int
	}{
		{name: "by directory", ref: "code-review", status: http.StatusOK},
		{name: "by title substring", ref: "release", status: http.StatusOK},
		{name: "missing", ref: "nothing-here", status: http.StatusNotFound},
		{name: "ambiguous", ref: "e", status: http.StatusConflict},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.do(http.MethodGet, "/api/prompts/"+tt.ref, nil)
			s.Equal(tt.status, rec.Code, rec.Body.String())
		})
	}
}

func (s *ServerSuite) TestResolve() {
	_, err := s.envs.SetGlobal(s.ctx, "LANG_DEFAULT", "Go")
	s.Require().NoError(err)

	rec := s.do(http.MethodPost, "/api/prompts/code-review/resolve", map[string]any{
		"values": map[string]string{
			"LANGUAGE": "$env:LANG_DEFAULT",
			"CONTEXT":  "$fragment:style/concise",
		},
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var out resolveResponse
	s.decode(rec, &out)
	s.Equal("code-review", out.Directory)
	s.Equal("Go", out.Values["LANGUAGE"])
	s.Equal("Be brief.", out.Values["CONTEXT"])

	execs, err := s.history.RecentExecutions(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(execs, 1)
	s.Equal("code-review", execs[0].Directory)
	s.Equal("$env:LANG_DEFAULT", execs[0].Variables["LANGUAGE"])
}

func (s *ServerSuite) TestResolve_BadBody() {
	req := httptest.NewRequest(http.MethodPost, "/api/prompts/code-review/resolve", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.srv.Handler().ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestFragments() {
	rec := s.do(http.MethodGet, "/api/fragments", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "concise")

	rec = s.do(http.MethodGet, "/api/fragments/style/concise", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "Be brief.")

	rec = s.do(http.MethodGet, "/api/fragments/style/missing", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) TestSyncAndCleanup() {
	s.writePrompt("new-one", "New One", "writing")

	rec := s.do(http.MethodPost, "/api/sync?directory=new-one", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/prompts/new-one", nil)
	s.Equal(http.StatusOK, rec.Code)

	s.Require().NoError(os.RemoveAll(filepath.Join(s.promptsDir, "new-one")))
	rec = s.do(http.MethodPost, "/api/cleanup", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var report reconcile.CleanupReport
	s.decode(rec, &report)
	s.EqualValues(1, report.RemovedPrompts)

	rec = s.do(http.MethodPost, "/api/sync", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var sync reconcile.SyncReport
	s.decode(rec, &sync)
	s.Equal(2, sync.Synced)
}

func (s *ServerSuite) TestSyncOne_Missing() {
	rec := s.do(http.MethodPost, "/api/sync?directory=ghost", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) TestMetrics() {
	s.Require().Equal(http.StatusOK, s.do(http.MethodGet, "/api/prompts/code-review", nil).Code)

	rec := s.do(http.MethodGet, "/metrics", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	body := rec.Body.String()
	s.Contains(body, "promptvault_http_requests_total")
	s.Contains(body, `route="/api/prompts/{ref}"`)
	s.Contains(body, "promptvault_event_stream_clients")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "no match", err: catalog.ErrNoMatch, want: http.StatusNotFound},
		{name: "library missing", err: library.ErrNotFound, want: http.StatusNotFound},
		{name: "store missing", err: &sqlite.Error{Kind: sqlite.KindNotFound}, want: http.StatusNotFound},
		{name: "ambiguous", err: &catalog.AmbiguousError{Ref: "x"}, want: http.StatusConflict},
		{name: "bad sidecar", err: library.ErrInvalidSidecar, want: http.StatusUnprocessableEntity},
		{name: "other", err: assert.AnError, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestAddr(t *testing.T) {
	require.Equal(t, "127.0.0.1:37780", Addr(37780))
}
