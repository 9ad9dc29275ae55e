package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/conorfennell/learning-accelerator/internal/content"
	"github.com/conorfennell/learning-accelerator/internal/domain"
	"github.com/conorfennell/learning-accelerator/internal/sm2"
	"github.com/conorfennell/learning-accelerator/internal/storage"
)

var (
	ErrLessonNotFound    = errors.New("progress: lesson not found")
	ErrChallengeNotFound = errors.New("progress: challenge not found")
)

// Completion is the outcome of completing a lesson or challenge.
type Completion struct {
	AlreadyCompleted bool
	XP               int
	XPGained         int
	Streak           int
	Milestones       []Milestone
	Progress         domain.Progress
}

// NextChallenge is the first challenge not yet completed.
type NextChallenge struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	XP    int    `json:"xp"`
	Time  any    `json:"time"`
}

// Dashboard summarises the learner's state for the home screen.
type Dashboard struct {
	XP              int            `json:"xp"`
	Streak          int            `json:"streak"`
	CardsDue        int            `json:"cardsdue"`
	NextChallenge   *NextChallenge `json:"nextChallenge"`
	Milestones      []Milestone    `json:"milestones"`
	CompletedSkills int            `json:"completedSkills"`
	TotalSkills     int            `json:"totalSkills"`
}

// TierProgress counts completed challenges in a tier.
type TierProgress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Overview is the full progress document with per-tier counts.
type Overview struct {
	domain.Progress
	TierProgress map[string]TierProgress `json:"tierProgress"`
	Milestones   []Milestone             `json:"milestones"`
}

// Service awards XP and keeps the streak.
type Service struct {
	store   storage.ProgressStore
	cards   storage.CardStore
	library *content.Library
	now     func() time.Time
	log     *zap.Logger
}

func NewService(store storage.ProgressStore, cards storage.CardStore, library *content.Library, now func() time.Time, log *zap.Logger) *Service {
	return &Service{store: store, cards: cards, library: library, now: now, log: log}
}

// CompleteLesson awards LessonXP for the lesson once.
func (s *Service) CompleteLesson(ctx context.Context, lessonID string) (Completion, error) {
	lesson, ok := s.library.Lesson(lessonID)
	if !ok {
		return Completion{}, fmt.Errorf("%w: %s", ErrLessonNotFound, lessonID)
	}

	var fresh bool
	p, err := s.store.UpdateProgress(ctx, func(p *domain.Progress) error {
		fresh = CompleteLesson(p, lesson.ID, s.now())
		return nil
	})
	if err != nil {
		return Completion{}, err
	}

	if fresh {
		s.log.Info("lesson completed",
			zap.String("lesson_id", lesson.ID),
			zap.Int("level", lesson.Level),
			zap.Int("xp", p.XP),
			zap.Int("completed", len(p.CompletedLessons)),
		)
	}
	return completion(p, fresh, LessonXP), nil
}

// CompleteChallenge awards the challenge's XP once.
func (s *Service) CompleteChallenge(ctx context.Context, challengeID string) (Completion, error) {
	challenge, ok := s.library.Challenge(challengeID)
	if !ok {
		return Completion{}, fmt.Errorf("%w: %s", ErrChallengeNotFound, challengeID)
	}

	var fresh bool
	p, err := s.store.UpdateProgress(ctx, func(p *domain.Progress) error {
		fresh = CompleteChallenge(p, challenge.ID, challenge.XP, s.now())
		return nil
	})
	if err != nil {
		return Completion{}, err
	}

	if fresh {
		s.log.Info("challenge completed", zap.String("challenge_id", challenge.ID), zap.Int("xp", p.XP))
	}
	return completion(p, fresh, challenge.XP), nil
}

func completion(p domain.Progress, fresh bool, gained int) Completion {
	c := Completion{
		AlreadyCompleted: !fresh,
		XP:               p.XP,
		Streak:           p.Streak,
		Milestones:       Milestones(p.XP),
		Progress:         p,
	}
	if fresh {
		c.XPGained = gained
	}
	return c
}

// RecordActivity touches the streak and returns its new length.
func (s *Service) RecordActivity(ctx context.Context) (int, error) {
	p, err := s.store.UpdateProgress(ctx, func(p *domain.Progress) error {
		TouchStreak(p, s.now())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return p.Streak, nil
}

// Dashboard builds the home screen summary.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	p, err := s.store.GetProgress(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	cards, err := s.cards.List(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	challenges := s.library.Challenges()

	d := Dashboard{
		XP:              p.XP,
		Streak:          p.Streak,
		CardsDue:        len(sm2.FindDueCards(cards, s.now())),
		Milestones:      Milestones(p.XP),
		CompletedSkills: len(p.CompletedSkills),
		TotalSkills:     len(challenges),
	}
	for _, c := range challenges {
		if !slices.Contains(p.CompletedSkills, c.ID) {
			d.NextChallenge = &NextChallenge{ID: c.ID, Title: c.Title, XP: c.XP, Time: c.TimeEstimate}
			break
		}
	}
	return d, nil
}

// Overview returns the progress document with per-tier challenge counts.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	p, err := s.store.GetProgress(ctx)
	if err != nil {
		return Overview{}, err
	}

	tiers := make(map[string]TierProgress, len(content.Tiers))
	for _, tier := range content.Tiers {
		tiers[tier] = TierProgress{}
	}
	for _, c := range s.library.Challenges() {
		tp, ok := tiers[c.Tier]
		if !ok {
			continue
		}
		tp.Total++
		if slices.Contains(p.CompletedSkills, c.ID) {
			tp.Completed++
		}
		tiers[c.Tier] = tp
	}

	return Overview{Progress: p, TierProgress: tiers, Milestones: Milestones(p.XP)}, nil
}

// Challenges returns every challenge document with its "completed" flag set.
func (s *Service) Challenges(ctx context.Context) ([]json.RawMessage, error) {
	p, err := s.store.GetProgress(ctx)
	if err != nil {
		return nil, err
	}

	challenges := s.library.Challenges()
	docs := make([]json.RawMessage, 0, len(challenges))
	for _, c := range challenges {
		doc, err := c.WithCompleted(slices.Contains(p.CompletedSkills, c.ID))
		if err != nil {
			return nil, fmt.Errorf("failed to encode challenge %s: %w", c.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
