package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	dbgorm "github.com/thebtf/promptvault/internal/db/gorm"
)

// testStore opens a migrated database in a temp dir and wraps its raw handle.
func testStore(t *testing.T) *Store {
	t.Helper()

	gs, err := dbgorm.NewStore(dbgorm.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		MaxConns: 1,
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)

	store := NewStoreFromDB(gs.GetRawDB())
	t.Cleanup(func() {
		_ = store.Close()
		_ = gs.Close()
	})
	return store
}

// StoreSuite is a test suite for Store operations.
type StoreSuite struct {
	suite.Suite
	store *Store
}

func (s *StoreSuite) SetupTest() {
	s.store = testStore(s.T())
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) TestGetStmt() {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{name: "valid simple query", query: "SELECT 1"},
		{name: "valid query with parameter", query: "SELECT * FROM prompts WHERE id = ?"},
		{name: "invalid query syntax", query: "SELECT * FROM nonexistent_table WHERE", wantErr: true},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			stmt, err := s.store.GetStmt(tt.query)
			if tt.wantErr {
				s.Error(err)
				s.Nil(stmt)
				return
			}
			s.NoError(err)
			s.NotNil(stmt)

			// Second call should return cached statement
			stmt2, err := s.store.GetStmt(tt.query)
			s.NoError(err)
			s.Same(stmt, stmt2)
		})
	}
}

func (s *StoreSuite) TestQueryOne_NotFound() {
	_, err := QueryOne(context.Background(), s.store, scanInt64, "SELECT id FROM prompts WHERE id = ?", 42)
	s.Require().Error(err)
	s.True(errors.Is(err, ErrNotFound))

	var se *Error
	s.Require().True(errors.As(err, &se))
	s.Equal(KindNotFound, se.Kind)
}

func (s *StoreSuite) TestExec_ConstraintViolation() {
	ctx := context.Background()
	const insert = `INSERT INTO prompts (uuid, title, directory) VALUES (?, ?, ?)`

	_, err := Exec(ctx, s.store, insert, "u-1", "One", "same-dir")
	s.Require().NoError(err)

	_, err = Exec(ctx, s.store, insert, "u-2", "Two", "same-dir")
	s.Require().Error(err)

	var se *Error
	s.Require().True(errors.As(err, &se))
	s.Equal(KindConstraint, se.Kind)
	s.False(errors.Is(err, ErrNotFound))
}

func (s *StoreSuite) TestInTx_RollsBackOnError() {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.store.InTx(ctx, func(q Querier) error {
		if _, err := Exec(ctx, q, `INSERT INTO prompts (uuid, title, directory) VALUES ('u', 't', 'd')`); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	n, err := QueryOne(ctx, s.store, scanInt64, "SELECT COUNT(*) FROM prompts")
	s.NoError(err)
	s.Equal(int64(0), n)
}

func (s *StoreSuite) TestInTx_Commits() {
	ctx := context.Background()

	err := s.store.InTx(ctx, func(q Querier) error {
		_, err := Exec(ctx, q, `INSERT INTO prompts (uuid, title, directory) VALUES ('u', 't', 'd')`)
		return err
	})
	s.NoError(err)

	n, err := QueryOne(ctx, s.store, scanInt64, "SELECT COUNT(*) FROM prompts")
	s.NoError(err)
	s.Equal(int64(1), n)
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindUnknown, "unknown"},
		{KindNotFound, "not_found"},
		{KindConstraint, "constraint"},
		{KindBusy, "busy"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
