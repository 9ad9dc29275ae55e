package sync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conorfennell/learning-accelerator/internal/domain"
	"github.com/conorfennell/learning-accelerator/internal/knol"
	"github.com/conorfennell/learning-accelerator/internal/sm2"
	"github.com/conorfennell/learning-accelerator/internal/storage"
)

var t0 = time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)

const deck = `# Go basics

Q: Zero value of a map?
A: nil
---
Q: Keyword to start a goroutine?
A: go
C: concurrency
`

func newSyncer(t *testing.T, prune bool) (*Syncer, storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, filepath.Join(t.TempDir(), "repos"), prune, func() time.Time { return t0 }, zap.NewNop()), store
}

func writeDeck(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestSourceType(t *testing.T) {
	testCases := []struct {
		path string
		want string
	}{
		{"/home/me/decks", domain.SourceLocal},
		{"./decks", domain.SourceLocal},
		{"https://github.com/me/decks", domain.SourceGit},
		{"git@github.com:me/decks.git", domain.SourceGit},
		{"/srv/decks.git", domain.SourceGit},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, SourceType(tc.path), tc.path)
	}
}

func TestGitURLToLocalPath(t *testing.T) {
	testCases := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "https://github.com/me/decks.git", want: filepath.Join("repos", "github.com", "me", "decks")},
		{url: "http://git.local/team/cards", want: filepath.Join("repos", "git.local", "team", "cards")},
		{url: "git@github.com:me/decks.git", want: filepath.Join("repos", "github.com", "me", "decks")},
		{url: "ftp://example.com/x.git", wantErr: true},
		{url: "https://github.com/", wantErr: true},
		{url: "not a url", wantErr: true},
		{url: "https://example.com/../../../../tmp/pwned.git", wantErr: true},
		{url: "git@host:../../../../x.git", wantErr: true},
		{url: "git@host:..", wantErr: true},
		{url: "https://../x.git", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			got, err := gitURLToLocalPath("repos", tc.url)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAddSource(t *testing.T) {
	ctx := context.Background()
	s, _ := newSyncer(t, false)
	dir := t.TempDir()

	src, err := s.AddSource(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLocal, src.Type)
	assert.Equal(t, dir, src.Path)

	again, err := s.AddSource(ctx, dir)
	assert.ErrorIs(t, err, ErrSourceExists)
	assert.Equal(t, src.ID, again.ID)

	git, err := s.AddSource(ctx, "https://github.com/me/decks.git")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceGit, git.Type)

	_, err = s.AddSource(ctx, filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrInvalidSource)
	_, err = s.AddSource(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidSource)
	_, err = s.AddSource(ctx, "https://example.com/../../../../tmp/decks.git")
	assert.ErrorIs(t, err, ErrInvalidSource)

	sources, err := s.Sources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 2)

	require.NoError(t, s.RemoveSource(ctx, git.ID))
	sources, err = s.Sources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestRunImportsLocalDecks(t *testing.T) {
	ctx := context.Background()
	s, store := newSyncer(t, false)
	dir := t.TempDir()
	writeDeck(t, dir, "go.md", deck)
	writeDeck(t, filepath.Join(dir, "nested"), "more.MD", "Q: Capital of Go?\nA: none\n")
	writeDeck(t, dir, "notes.txt", "Q: ignored\nA: ignored\n")
	writeDeck(t, filepath.Join(dir, ".git"), "hidden.md", "Q: ignored\nA: ignored\n")

	src, err := s.AddSource(ctx, dir)
	require.NoError(t, err)

	report, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Sources: 1, Parsed: 3, Inserted: 3}, report)

	cards, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 3)
	for _, c := range cards {
		assert.Equal(t, knol.Hash(c), c.ID)
		assert.Equal(t, src.ID, c.SourceID)
		assert.Equal(t, sm2.InitialEaseFactor, c.EaseFactor)
		assert.True(t, c.NextReview.DueAt(t0))
	}

	sources, err := s.Sources(ctx)
	require.NoError(t, err)
	require.NotNil(t, sources[0].LastScanned)
	assert.True(t, sources[0].LastScanned.Equal(t0))
}

func TestRunKeepsSchedulingState(t *testing.T) {
	ctx := context.Background()
	s, store := newSyncer(t, false)
	dir := t.TempDir()
	writeDeck(t, dir, "go.md", deck)
	_, err := s.AddSource(ctx, dir)
	require.NoError(t, err)

	_, err = s.Run(ctx)
	require.NoError(t, err)

	cards, err := store.List(ctx)
	require.NoError(t, err)
	reviewed, err := store.Update(ctx, cards[0].ID, func(c *domain.ReviewCard) error {
		next, err := sm2.ScheduleReview(*c, sm2.Perfect, t0)
		*c = next
		return err
	})
	require.NoError(t, err)

	report, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
	assert.Equal(t, 2, report.Parsed)

	after, err := store.Get(ctx, cards[0].ID)
	require.NoError(t, err)
	assert.Equal(t, reviewed.Repetitions, after.Repetitions)
	assert.Equal(t, reviewed.NextReview, after.NextReview)
}

func TestRunPrune(t *testing.T) {
	for _, prune := range []bool{false, true} {
		t.Run("prune="+map[bool]string{false: "off", true: "on"}[prune], func(t *testing.T) {
			ctx := context.Background()
			s, store := newSyncer(t, prune)
			dir := t.TempDir()
			writeDeck(t, dir, "go.md", deck)
			_, err := s.AddSource(ctx, dir)
			require.NoError(t, err)
			require.NoError(t, store.Insert(ctx, sm2.NewCard("manual", "f", "b", t0)))

			_, err = s.Run(ctx)
			require.NoError(t, err)

			writeDeck(t, dir, "go.md", "Q: Zero value of a map?\nA: nil\n")
			report, err := s.Run(ctx)
			require.NoError(t, err)

			n, err := store.Count(ctx)
			require.NoError(t, err)
			if prune {
				assert.Equal(t, 1, report.Pruned)
				assert.Equal(t, 2, n)
			} else {
				assert.Zero(t, report.Pruned)
				assert.Equal(t, 3, n)
			}

			_, err = store.Get(ctx, "manual")
			assert.NoError(t, err)
		})
	}
}

func TestRunSkipsPruneAfterParseError(t *testing.T) {
	ctx := context.Background()
	s, store := newSyncer(t, true)
	dir := t.TempDir()
	writeDeck(t, dir, "go.md", deck)
	_, err := s.AddSource(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, sm2.NewCard("manual", "f", "b", t0)))

	_, err = s.Run(ctx)
	require.NoError(t, err)

	// A line longer than the scanner buffer aborts parsing of the whole file.
	writeDeck(t, dir, "go.md", deck+"Q: "+strings.Repeat("x", 70*1024)+"\nA: y\n")
	report, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Zero(t, report.Pruned)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRunNoSources(t *testing.T) {
	s, _ := newSyncer(t, false)
	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestRunGitFailureIsCounted(t *testing.T) {
	ctx := context.Background()
	s, store := newSyncer(t, false)
	local := t.TempDir()
	writeDeck(t, local, "go.md", deck)
	_, err := s.AddSource(ctx, local)
	require.NoError(t, err)

	// A plain directory where the clone should be makes the pull fail.
	broken := "https://example.invalid/me/decks.git"
	_, err = s.AddSource(ctx, broken)
	require.NoError(t, err)
	dest, err := gitURLToLocalPath(s.reposDir, broken)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dest, 0o755))

	report, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 2, report.Inserted)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
