package gitsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func initRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "deck.md"), []byte("Q: a\nA: b\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("deck.md")
	require.NoError(t, err)
	hash, err := wt.Commit("add deck", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, hash.String()
}

func TestHead(t *testing.T) {
	dir, want := initRepo(t)
	got, err := Head(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Head(t.TempDir())
	assert.Error(t, err)
}

func TestSyncExistingNonRepo(t *testing.T) {
	err := Sync(context.Background(), "https://example.com/decks.git", t.TempDir(), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open existing repo")
}
