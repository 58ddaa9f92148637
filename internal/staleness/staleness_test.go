package staleness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/promptvault/internal/library"
	"github.com/thebtf/promptvault/pkg/models"
)

func TestHash(t *testing.T) {
	h := Hash("hello")
	assert.Len(t, h, HashSize*2)
	assert.Equal(t, h, Hash("hello"))
	assert.NotEqual(t, h, Hash("hello "))
}

func TestShouldRegenerate(t *testing.T) {
	body := "Summarise {{TEXT}}"
	current := Hash(body)

	tests := []struct {
		name     string
		meta     *models.PromptMetadata
		force    bool
		want     bool
		wantHash string
	}{
		{name: "no metadata", meta: nil, want: true, wantHash: current},
		{name: "no stored hash", meta: &models.PromptMetadata{}, want: true, wantHash: current},
		{name: "hash differs", meta: &models.PromptMetadata{ContentHash: "deadbeef"}, want: true, wantHash: current},
		{name: "hash matches", meta: &models.PromptMetadata{ContentHash: current}, want: false, wantHash: current},
		{name: "force overrides match", meta: &models.PromptMetadata{ContentHash: current}, force: true, want: true, wantHash: current},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hash := ShouldRegenerate(body, tt.meta, tt.force)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantHash, hash)
		})
	}
}

func TestShouldRegenerate_IdempotentAfterPersist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, library.SidecarFile)
	require.NoError(t, os.WriteFile(path, []byte("title: T\n"), 0o644))

	body := "body text"
	needed, hash := ShouldRegenerate(body, nil, false)
	require.True(t, needed)
	require.NoError(t, PersistHash(library.OSFS{}, path, hash))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	meta, err := library.ParseSidecar(data)
	require.NoError(t, err)

	needed, again := ShouldRegenerate(body, meta, false)
	assert.False(t, needed)
	assert.Equal(t, hash, again)
}

func TestReplaceHashLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "replace in place",
			in:   "title: A\ncontent_hash: old\ntags: []\n",
			want: "title: A\ncontent_hash: new\ntags: []\n",
		},
		{
			name: "keeps crlf",
			in:   "title: A\r\ncontent_hash: old\r\n",
			want: "title: A\r\ncontent_hash: new\r\n",
		},
		{
			name: "append when absent",
			in:   "title: A\n",
			want: "title: A\ncontent_hash: new\n",
		},
		{
			name: "append adds missing newline",
			in:   "title: A",
			want: "title: A\ncontent_hash: new\n",
		},
		{
			name: "empty file",
			in:   "",
			want: "content_hash: new\n",
		},
		{
			name: "last line without newline",
			in:   "title: A\ncontent_hash: old",
			want: "title: A\ncontent_hash: new",
		},
		{
			name: "indented key is not touched",
			in:   "nested:\n  content_hash: keep\n",
			want: "nested:\n  content_hash: keep\ncontent_hash: new\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(replaceHashLine([]byte(tt.in), "new")))
		})
	}
}

type failingFS struct {
	library.OSFS
}

func (failingFS) WriteFile(string, []byte) error {
	return errors.New("read-only filesystem")
}

func TestPersistHash_WriteFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), library.SidecarFile)
	require.NoError(t, os.WriteFile(path, []byte("title: T\n"), 0o644))

	err := PersistHash(failingFS{}, path, "abc")
	assert.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "title: T\n", string(data))
}
