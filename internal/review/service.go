package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conorfennell/learning-accelerator/internal/domain"
	"github.com/conorfennell/learning-accelerator/internal/sm2"
	"github.com/conorfennell/learning-accelerator/internal/storage"
)

// MatureInterval is the interval in days from which a card counts as mastered.
const MatureInterval = 21

var ErrEmptyCard = errors.New("review: card front and back are required")

// ActivityRecorder is notified after every successful review.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context) (int, error)
}

// Result is the outcome of a submitted review.
type Result struct {
	Card       domain.ReviewCard
	NextReview time.Time
}

// Stats counts cards by learning stage.
type Stats struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Learning int `json:"learning"`
	Mastered int `json:"mastered"`
}

// Service applies reviews to stored cards.
type Service struct {
	cards    storage.CardStore
	logs     storage.ReviewLogStore
	activity ActivityRecorder
	now      func() time.Time
	log      *zap.Logger
	locks    keyedMutex
}

// NewService wires the review service. activity may be nil.
func NewService(cards storage.CardStore, logs storage.ReviewLogStore, activity ActivityRecorder, now func() time.Time, log *zap.Logger) *Service {
	return &Service{
		cards:    cards,
		logs:     logs,
		activity: activity,
		now:      now,
		log:      log,
	}
}

// Submit applies a review of the given quality to a card and persists it.
// An invalid quality is rejected before the store is touched; on any
// error the stored card keeps its previous state.
func (s *Service) Submit(ctx context.Context, cardID string, quality int) (Result, error) {
	q := sm2.Quality(quality)
	if !q.IsValid() {
		return Result{}, &sm2.InvalidRatingError{Quality: quality}
	}

	unlock := s.locks.Lock(cardID)
	defer unlock()

	now := s.now()
	card, err := s.cards.Update(ctx, cardID, func(c *domain.ReviewCard) error {
		next, err := sm2.ScheduleReview(*c, q, now)
		if err != nil {
			return err
		}
		*c = next
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	nextReview, _ := card.NextReview.Time()
	s.log.Info("review recorded",
		zap.String("card_id", card.ID),
		zap.Int("quality", quality),
		zap.Int("repetitions", card.Repetitions),
		zap.Int("interval", card.Interval),
		zap.Float64("ease_factor", card.EaseFactor),
		zap.Time("next_review", nextReview),
	)

	// The review is already persisted; history and streak are best effort.
	err = s.logs.AppendReviewLog(ctx, domain.ReviewLog{
		CardID:     card.ID,
		ReviewedAt: now,
		Quality:    quality,
		Interval:   card.Interval,
		EaseFactor: card.EaseFactor,
	})
	if err != nil {
		s.log.Warn("failed to append review log", zap.String("card_id", card.ID), zap.Error(err))
	}
	if s.activity != nil {
		if _, err := s.activity.RecordActivity(ctx); err != nil {
			s.log.Warn("failed to update streak", zap.Error(err))
		}
	}

	return Result{Card: card, NextReview: nextReview}, nil
}

// Due returns the cards due now, in store order.
func (s *Service) Due(ctx context.Context) ([]domain.ReviewCard, error) {
	cards, err := s.cards.List(ctx)
	if err != nil {
		return nil, err
	}
	return sm2.FindDueCards(cards, s.now()), nil
}

// AddCard stores a learner-authored card, due immediately.
func (s *Service) AddCard(ctx context.Context, front, back, cardContext string) (domain.ReviewCard, error) {
	front, back = strings.TrimSpace(front), strings.TrimSpace(back)
	if front == "" || back == "" {
		return domain.ReviewCard{}, ErrEmptyCard
	}

	card := sm2.NewCard(uuid.NewString(), front, back, s.now())
	card.Context = strings.TrimSpace(cardContext)
	if err := s.cards.Insert(ctx, card); err != nil {
		return domain.ReviewCard{}, fmt.Errorf("failed to add card: %w", err)
	}
	s.log.Info("card added", zap.String("card_id", card.ID))
	return card, nil
}

// History returns the review log of a card.
func (s *Service) History(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	if _, err := s.cards.Get(ctx, cardID); err != nil {
		return nil, err
	}
	return s.logs.ReviewLogs(ctx, cardID)
}

// Stats counts cards by stage: new cards were never reviewed, mastered
// cards have an interval of at least MatureInterval days.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	cards, err := s.cards.List(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Total: len(cards)}
	for _, c := range cards {
		switch {
		case !c.Reviewed():
			st.New++
		case c.Interval >= MatureInterval:
			st.Mastered++
		default:
			st.Learning++
		}
	}
	return st, nil
}

// Seed inserts the given cards with fresh scheduling state when the store
// holds no cards yet. It returns the number of cards inserted.
func (s *Service) Seed(ctx context.Context, seed []domain.ReviewCard) (int, error) {
	n, err := s.cards.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 || len(seed) == 0 {
		return 0, nil
	}

	now := s.now()
	inserted := 0
	for _, c := range seed {
		card := sm2.NewCard(c.ID, c.Front, c.Back, now)
		card.Context, card.Extra = c.Context, c.Extra
		if card.ID == "" {
			card.ID = uuid.NewString()
		}
		if err := s.cards.Insert(ctx, card); err != nil {
			if errors.Is(err, storage.ErrCardExists) {
				continue
			}
			return inserted, err
		}
		inserted++
	}
	s.log.Info("seeded review cards", zap.Int("count", inserted))
	return inserted, nil
}
