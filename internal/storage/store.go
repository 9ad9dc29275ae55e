package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/learning-accelerator/internal/domain"
)

var (
	ErrCardNotFound   = errors.New("storage: card not found")
	ErrCardExists     = errors.New("storage: card already exists")
	ErrSourceNotFound = errors.New("storage: source not found")
	ErrPersistence    = errors.New("storage: persistence failure")
)

// CardNotFoundError reports an id that does not resolve to a stored card.
type CardNotFoundError struct {
	ID string
}

func (e *CardNotFoundError) Error() string {
	return fmt.Sprintf("storage: card %q not found", e.ID)
}

func (e *CardNotFoundError) Is(target error) bool {
	return target == ErrCardNotFound
}

// PersistenceError wraps a failure of the underlying store. The previously
// persisted state is left intact when it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// CardStore holds review cards.
type CardStore interface {
	Get(ctx context.Context, id string) (domain.ReviewCard, error)
	// List returns every card in insertion order.
	List(ctx context.Context) ([]domain.ReviewCard, error)
	Count(ctx context.Context) (int, error)
	// Insert adds a new card. It fails with ErrCardExists for a known id.
	Insert(ctx context.Context, card domain.ReviewCard) error
	// Update loads the card, applies fn to a copy and persists the result
	// atomically. Nothing is written when fn returns an error.
	Update(ctx context.Context, id string, fn func(*domain.ReviewCard) error) (domain.ReviewCard, error)
	Delete(ctx context.Context, id string) error
}

// ReviewLogStore is an append-only history of reviews.
type ReviewLogStore interface {
	AppendReviewLog(ctx context.Context, log domain.ReviewLog) error
	ReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error)
}

// ProgressStore holds the single learner's progress document.
type ProgressStore interface {
	GetProgress(ctx context.Context) (domain.Progress, error)
	UpdateProgress(ctx context.Context, fn func(*domain.Progress) error) (domain.Progress, error)
}

// SourceStore tracks deck sources.
type SourceStore interface {
	InsertSource(ctx context.Context, path, sourceType string) (int64, error)
	FindSourceByPath(ctx context.Context, path string) (*domain.Source, error)
	GetAllSources(ctx context.Context) ([]domain.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error
	DeleteSource(ctx context.Context, sourceID int64) error
}

// Store is the full persistence surface used by the application.
type Store interface {
	CardStore
	ReviewLogStore
	ProgressStore
	SourceStore
	Close() error
}

// CardsBySource filters cards imported from the given source.
func CardsBySource(cards []domain.ReviewCard, sourceID int64) []domain.ReviewCard {
	var out []domain.ReviewCard
	for _, c := range cards {
		if c.SourceID == sourceID {
			out = append(out, c)
		}
	}
	return out
}

const (
	DriverSQLite = "sqlite"
	DriverJSON   = "json"
)

// OpenDriver opens the store selected by driver: a SQLite database at dsn
// or JSON documents under runtimeDir.
func OpenDriver(driver, dsn, runtimeDir string) (Store, error) {
	switch driver {
	case DriverSQLite:
		return Open(dsn)
	case DriverJSON:
		return OpenFileStore(runtimeDir)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
