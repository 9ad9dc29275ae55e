package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/learning-accelerator/internal/domain"
	"github.com/conorfennell/learning-accelerator/internal/gitsource"
	"github.com/conorfennell/learning-accelerator/internal/knol"
	"github.com/conorfennell/learning-accelerator/internal/parser"
	"github.com/conorfennell/learning-accelerator/internal/sm2"
	"github.com/conorfennell/learning-accelerator/internal/storage"
)

// maxFetches bounds concurrent clones and pulls.
const maxFetches = 4

var (
	ErrSourceExists  = errors.New("sync: source already registered")
	ErrInvalidSource = errors.New("sync: invalid source")
)

// Report summarises one sync run.
type Report struct {
	Sources  int `json:"sources"`
	Parsed   int `json:"parsed"`
	Inserted int `json:"inserted"`
	Pruned   int `json:"pruned"`
	Errors   int `json:"errors"`
}

// Syncer imports markdown decks from registered sources into the card store.
type Syncer struct {
	store    storage.Store
	reposDir string
	prune    bool
	now      func() time.Time
	log      *zap.Logger
}

func New(store storage.Store, reposDir string, prune bool, now func() time.Time, log *zap.Logger) *Syncer {
	return &Syncer{store: store, reposDir: reposDir, prune: prune, now: now, log: log}
}

// SourceType classifies path as a git URL or a local directory.
func SourceType(path string) string {
	switch {
	case strings.HasSuffix(path, ".git"),
		strings.HasPrefix(path, "git@"),
		strings.HasPrefix(path, "https://"),
		strings.HasPrefix(path, "http://"):
		return domain.SourceGit
	default:
		return domain.SourceLocal
	}
}

// AddSource registers a deck source. Local paths are made absolute and
// must name an existing directory.
func (s *Syncer) AddSource(ctx context.Context, path string) (domain.Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.Source{}, fmt.Errorf("%w: empty path", ErrInvalidSource)
	}

	typ := SourceType(path)
	if typ == domain.SourceLocal {
		abs, err := filepath.Abs(path)
		if err != nil {
			return domain.Source{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return domain.Source{}, fmt.Errorf("%w: %s is not a directory", ErrInvalidSource, abs)
		}
		path = abs
	} else if _, err := gitURLToLocalPath(s.reposDir, path); err != nil {
		return domain.Source{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	existing, err := s.store.FindSourceByPath(ctx, path)
	if err != nil {
		return domain.Source{}, err
	}
	if existing != nil {
		return *existing, ErrSourceExists
	}

	id, err := s.store.InsertSource(ctx, path, typ)
	if err != nil {
		return domain.Source{}, err
	}
	s.log.Info("source added", zap.Int64("source_id", id), zap.String("type", typ), zap.String("path", path))
	return domain.Source{ID: id, Path: path, Type: typ}, nil
}

// RemoveSource unregisters a source. Its cards stay in the store.
func (s *Syncer) RemoveSource(ctx context.Context, id int64) error {
	return s.store.DeleteSource(ctx, id)
}

// Sources lists the registered sources.
func (s *Syncer) Sources(ctx context.Context) ([]domain.Source, error) {
	return s.store.GetAllSources(ctx)
}

// Run fetches git sources, then reconciles every source against the store.
// Per-source failures are logged and counted; only store failures abort.
func (s *Syncer) Run(ctx context.Context) (Report, error) {
	sources, err := s.store.GetAllSources(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Report{Sources: len(sources)}
	if len(sources) == 0 {
		s.log.Info("no sources configured, add one with --add-source <path/or/url.git>")
		return report, nil
	}

	dirs, fetchErrs := s.fetch(ctx, sources)
	report.Errors += fetchErrs

	for _, source := range sources {
		dir, ok := dirs[source.ID]
		if !ok {
			continue
		}
		if err := s.reconcile(ctx, source, dir, &report); err != nil {
			return report, err
		}
	}

	s.log.Info("sync complete",
		zap.Int("sources", report.Sources),
		zap.Int("parsed", report.Parsed),
		zap.Int("inserted", report.Inserted),
		zap.Int("pruned", report.Pruned),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

// fetch resolves each source to a local directory, cloning or pulling git
// sources. Sources that could not be fetched are missing from the result.
func (s *Syncer) fetch(ctx context.Context, sources []domain.Source) (map[int64]string, int) {
	dirs := make(map[int64]string, len(sources))
	gitDirs := make([]string, len(sources))
	gitErrs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFetches)
	for i, source := range sources {
		if source.Type != domain.SourceGit {
			dirs[source.ID] = source.Path
			continue
		}
		g.Go(func() error {
			local, err := gitURLToLocalPath(s.reposDir, source.Path)
			if err == nil {
				err = gitsource.Sync(gctx, source.Path, local, s.log)
			}
			gitDirs[i], gitErrs[i] = local, err
			return nil
		})
	}
	g.Wait()

	failed := 0
	for i, source := range sources {
		if source.Type != domain.SourceGit {
			continue
		}
		if gitErrs[i] != nil {
			s.log.Error("failed to fetch git source", zap.Int64("source_id", source.ID), zap.String("url", source.Path), zap.Error(gitErrs[i]))
			failed++
			continue
		}
		dirs[source.ID] = gitDirs[i]
	}
	return dirs, failed
}

func (s *Syncer) reconcile(ctx context.Context, source domain.Source, dir string, report *Report) error {
	log := s.log.With(zap.Int64("source_id", source.ID), zap.String("path", dir))

	var (
		parsed []domain.ReviewCard
		// A deck that failed to parse may still hold cards the store
		// knows about, so pruning is unsafe for this pass.
		incomplete bool
	)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		cards, err := parser.ParseFile(path)
		if err != nil {
			log.Warn("failed to parse deck", zap.String("file", path), zap.Error(err))
			report.Errors++
			incomplete = true
		}
		parsed = append(parsed, cards...)
		return nil
	})
	if walkErr != nil {
		log.Error("failed to walk source", zap.Error(walkErr))
		report.Errors++
		return nil
	}

	now := s.now()
	found := make(map[string]bool, len(parsed))
	for _, p := range parsed {
		id := knol.Hash(p)
		if found[id] {
			continue
		}
		found[id] = true
		report.Parsed++

		card := sm2.NewCard(id, p.Front, p.Back, now)
		card.Context = p.Context
		card.SourceID = source.ID
		err := s.store.Insert(ctx, card)
		switch {
		case err == nil:
			report.Inserted++
		case errors.Is(err, storage.ErrCardExists):
		default:
			return err
		}
	}

	if s.prune && incomplete {
		log.Warn("skipping prune after parse errors")
	}
	if s.prune && !incomplete {
		cards, err := s.store.List(ctx)
		if err != nil {
			return err
		}
		for _, c := range storage.CardsBySource(cards, source.ID) {
			if found[c.ID] {
				continue
			}
			if err := s.store.Delete(ctx, c.ID); err != nil && !errors.Is(err, storage.ErrCardNotFound) {
				return err
			}
			log.Info("pruned card", zap.String("card_id", c.ID))
			report.Pruned++
		}
	}

	if err := s.store.UpdateSourceLastScanned(ctx, source.ID, now); err != nil {
		log.Warn("failed to update last scanned", zap.Error(err))
	}
	return nil
}

func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		// scp-like syntax: git@host:owner/repo.git
		if user, rest, ok := strings.Cut(repoURL, "@"); ok && user != "" {
			host, repoPath, ok := strings.Cut(rest, ":")
			if ok && host != "" && repoPath != "" {
				return within(baseDir, filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), repoURL)
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	if parsedURL.Host == "" || strings.Trim(sanitizedPath, "/") == "" {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	return within(baseDir, filepath.Join(baseDir, parsedURL.Host, sanitizedPath), repoURL)
}

// within rejects clone paths that resolve to baseDir itself or outside it.
func within(baseDir, path, repoURL string) (string, error) {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("git URL escapes the repository directory: %s", repoURL)
	}
	return path, nil
}
