package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/conorfennell/learning-accelerator/internal/domain"
)

const (
	QuizStateFile = "quiz-state.json"
	ProgressFile  = "progress.json"
	SourcesFile   = "sources.json"
	ReviewLogFile = "review-log.jsonl"
)

// quizState is the on-disk layout of quiz-state.json.
// Stats is carried through untouched.
type quizState struct {
	Cards []domain.ReviewCard `json:"cards"`
	Stats json.RawMessage     `json:"stats,omitempty"`
}

type sourcesFile struct {
	NextID  int64           `json:"nextId"`
	Sources []domain.Source `json:"sources"`
}

// FileStore keeps state in JSON documents under a runtime directory
// (quiz-state.json, progress.json). Every operation re-reads the file
// it needs; writes replace the file atomically so a failed write leaves
// the previous document intact.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*FileStore)(nil)

// OpenFileStore prepares dir and returns a store over it.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Close is a no-op; files are not held open between operations.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readJSON decodes name into v. A missing file leaves v untouched.
func (s *FileStore) readJSON(name string, v any) error {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(s.path(name), data, 0o644)
}

func (s *FileStore) loadQuiz() (quizState, error) {
	var q quizState
	if err := s.readJSON(QuizStateFile, &q); err != nil {
		return q, persistErr("read "+QuizStateFile, err)
	}
	if q.Cards == nil {
		q.Cards = []domain.ReviewCard{}
	}
	return q, nil
}

func (s *FileStore) saveQuiz(q quizState) error {
	if err := s.writeJSON(QuizStateFile, q); err != nil {
		return persistErr("write "+QuizStateFile, err)
	}
	return nil
}

func indexOf(cards []domain.ReviewCard, id string) int {
	for i, c := range cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Get retrieves a card by id.
func (s *FileStore) Get(_ context.Context, id string) (domain.ReviewCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.loadQuiz()
	if err != nil {
		return domain.ReviewCard{}, err
	}
	i := indexOf(q.Cards, id)
	if i < 0 {
		return domain.ReviewCard{}, &CardNotFoundError{ID: id}
	}
	return q.Cards[i], nil
}

// List returns the cards in file order.
func (s *FileStore) List(_ context.Context) ([]domain.ReviewCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.loadQuiz()
	if err != nil {
		return nil, err
	}
	return q.Cards, nil
}

// Count returns the number of stored cards.
func (s *FileStore) Count(ctx context.Context) (int, error) {
	cards, err := s.List(ctx)
	return len(cards), err
}

// Insert appends a new card.
func (s *FileStore) Insert(_ context.Context, card domain.ReviewCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.loadQuiz()
	if err != nil {
		return err
	}
	if indexOf(q.Cards, card.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrCardExists, card.ID)
	}
	q.Cards = append(q.Cards, card)
	return s.saveQuiz(q)
}

// Update applies fn to a copy of the card and rewrites the document.
func (s *FileStore) Update(_ context.Context, id string, fn func(*domain.ReviewCard) error) (domain.ReviewCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.loadQuiz()
	if err != nil {
		return domain.ReviewCard{}, err
	}
	i := indexOf(q.Cards, id)
	if i < 0 {
		return domain.ReviewCard{}, &CardNotFoundError{ID: id}
	}

	current := q.Cards[i]
	next := current
	if err := fn(&next); err != nil {
		return current, err
	}
	next.ID, next.Front, next.Back, next.Context = current.ID, current.Front, current.Back, current.Context
	next.Created, next.SourceID, next.Extra = current.Created, current.SourceID, current.Extra

	q.Cards[i] = next
	if err := s.saveQuiz(q); err != nil {
		return current, err
	}
	return next, nil
}

// Delete removes a card by id.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.loadQuiz()
	if err != nil {
		return err
	}
	i := indexOf(q.Cards, id)
	if i < 0 {
		return &CardNotFoundError{ID: id}
	}
	q.Cards = append(q.Cards[:i], q.Cards[i+1:]...)
	return s.saveQuiz(q)
}

// AppendReviewLog appends one JSON line to the review log.
func (s *FileStore) AppendReviewLog(_ context.Context, log domain.ReviewLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(log)
	if err != nil {
		return persistErr("encode review log", err)
	}
	f, err := os.OpenFile(s.path(ReviewLogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return persistErr("open "+ReviewLogFile, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return persistErr("append "+ReviewLogFile, err)
	}
	return nil
}

// ReviewLogs returns the review history of a card, oldest first.
func (s *FileStore) ReviewLogs(_ context.Context, cardID string) ([]domain.ReviewLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path(ReviewLogFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("open "+ReviewLogFile, err)
	}
	defer f.Close()

	var logs []domain.ReviewLog
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line domain.ReviewLog
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, persistErr("decode "+ReviewLogFile, err)
		}
		if line.CardID == cardID {
			logs = append(logs, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, persistErr("read "+ReviewLogFile, err)
	}
	return logs, nil
}

func (s *FileStore) loadProgress() (domain.Progress, error) {
	p := domain.NewProgress()
	if err := s.readJSON(ProgressFile, &p); err != nil {
		return p, persistErr("read "+ProgressFile, err)
	}
	if p.CompletedSkills == nil {
		p.CompletedSkills = []string{}
	}
	if p.CompletedLessons == nil {
		p.CompletedLessons = []string{}
	}
	return p, nil
}

// GetProgress reads progress.json, or returns a fresh progress when absent.
func (s *FileStore) GetProgress(_ context.Context) (domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadProgress()
}

// UpdateProgress applies fn to the progress document and rewrites it.
func (s *FileStore) UpdateProgress(_ context.Context, fn func(*domain.Progress) error) (domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadProgress()
	if err != nil {
		return current, err
	}
	next := current
	next.CompletedSkills = append([]string{}, current.CompletedSkills...)
	next.CompletedLessons = append([]string{}, current.CompletedLessons...)
	if err := fn(&next); err != nil {
		return current, err
	}
	if err := s.writeJSON(ProgressFile, next); err != nil {
		return current, persistErr("write "+ProgressFile, err)
	}
	return next, nil
}

func (s *FileStore) loadSources() (sourcesFile, error) {
	var sf sourcesFile
	if err := s.readJSON(SourcesFile, &sf); err != nil {
		return sf, fmt.Errorf("failed to read %s: %w", SourcesFile, err)
	}
	if sf.Sources == nil {
		sf.Sources = []domain.Source{}
	}
	return sf, nil
}

// InsertSource records a new source and returns its ID.
func (s *FileStore) InsertSource(_ context.Context, path, sourceType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.loadSources()
	if err != nil {
		return 0, err
	}
	for _, src := range sf.Sources {
		if src.Path == path {
			return 0, fmt.Errorf("failed to insert source %s: already exists", path)
		}
	}
	sf.NextID++
	sf.Sources = append(sf.Sources, domain.Source{ID: sf.NextID, Path: path, Type: sourceType})
	if err := s.writeJSON(SourcesFile, sf); err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	return sf.NextID, nil
}

// FindSourceByPath returns nil, nil when no source has the given path.
func (s *FileStore) FindSourceByPath(_ context.Context, path string) (*domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.loadSources()
	if err != nil {
		return nil, err
	}
	for _, src := range sf.Sources {
		if src.Path == path {
			return &src, nil
		}
	}
	return nil, nil
}

// GetAllSources returns every source in creation order.
func (s *FileStore) GetAllSources(_ context.Context) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.loadSources()
	return sf.Sources, err
}

// UpdateSourceLastScanned stamps a source with its last scan time.
func (s *FileStore) UpdateSourceLastScanned(_ context.Context, sourceID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.loadSources()
	if err != nil {
		return err
	}
	for i := range sf.Sources {
		if sf.Sources[i].ID == sourceID {
			scanned := at.UTC()
			sf.Sources[i].LastScanned = &scanned
			return s.writeJSON(SourcesFile, sf)
		}
	}
	return fmt.Errorf("%w: %d", ErrSourceNotFound, sourceID)
}

// DeleteSource removes a source. Cards imported from it are kept and detached.
func (s *FileStore) DeleteSource(_ context.Context, sourceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.loadSources()
	if err != nil {
		return err
	}
	kept := sf.Sources[:0]
	for _, src := range sf.Sources {
		if src.ID != sourceID {
			kept = append(kept, src)
		}
	}
	if len(kept) == len(sf.Sources) {
		return fmt.Errorf("%w: %d", ErrSourceNotFound, sourceID)
	}
	sf.Sources = kept

	q, err := s.loadQuiz()
	if err != nil {
		return err
	}
	for i := range q.Cards {
		if q.Cards[i].SourceID == sourceID {
			q.Cards[i].SourceID = 0
		}
	}
	if err := s.saveQuiz(q); err != nil {
		return err
	}
	return s.writeJSON(SourcesFile, sf)
}
