package sm2

import (
	"math"
	"time"

	"github.com/conorfennell/learning-accelerator/internal/domain"
)

// Quality is the learner's self-assessment of recall for a single review.
type Quality int

const (
	Blackout  Quality = 0 // no recall at all
	Wrong     Quality = 1 // wrong, but the answer felt familiar
	Hazy      Quality = 2 // wrong, but the answer was easy to recall once seen
	Difficult Quality = 3 // recalled with serious difficulty
	Hesitant  Quality = 4 // recalled after hesitation
	Perfect   Quality = 5 // perfect recall
)

const (
	InitialEaseFactor = 2.5
	MinEaseFactor     = 1.3

	// passThreshold is the lowest quality that counts as "remembered".
	passThreshold = Difficult
)

// IsValid reports whether q lies in the closed range [0, 5].
func (q Quality) IsValid() bool {
	return q >= Blackout && q <= Perfect
}

// Passed reports whether q counts as a successful recall.
func (q Quality) Passed() bool {
	return q >= passThreshold
}

// NewCard returns a card with initial scheduling state, due immediately.
func NewCard(id, front, back string, now time.Time) domain.ReviewCard {
	return domain.ReviewCard{
		ID:          id,
		Front:       front,
		Back:        back,
		Repetitions: 0,
		Interval:    0,
		EaseFactor:  InitialEaseFactor,
		NextReview:  domain.ScheduledFor(now),
		Created:     now,
	}
}

// ScheduleReview applies one SM-2 review with the given quality at now and
// returns the updated card. The input card is not modified.
func ScheduleReview(card domain.ReviewCard, quality Quality, now time.Time) (domain.ReviewCard, error) {
	if !quality.IsValid() {
		return card, &InvalidRatingError{Quality: int(quality)}
	}

	next := card
	if quality.Passed() {
		// The interval keys off the repetition count before it is incremented.
		next.Interval = nextInterval(card.Repetitions, card.Interval, card.EaseFactor)
		next.Repetitions = card.Repetitions + 1
	} else {
		next.Repetitions = 0
		next.Interval = 1
	}

	next.EaseFactor = NextEaseFactor(card.EaseFactor, quality)
	next.NextReview = domain.ScheduledFor(NextReviewDate(now, next.Interval))

	reviewed := now
	next.LastReviewed = &reviewed

	return next, nil
}

// nextInterval returns the interval in days after a successful review.
func nextInterval(repetitions, interval int, easeFactor float64) int {
	switch repetitions {
	case 0:
		return 1
	case 1:
		return 6
	default:
		// A passed review never yields a zero interval, even for cards
		// loaded with interval 0 or no ease factor.
		return max(int(math.Round(float64(interval)*easeFactor)), 1)
	}
}

// NextEaseFactor applies the SM-2 ease update:
// EF' = EF + (0.1 - (5-q) * (0.08 + (5-q) * 0.02)), floored at 1.3.
func NextEaseFactor(easeFactor float64, quality Quality) float64 {
	d := float64(Perfect - quality)
	ef := easeFactor + (0.1 - d*(0.08+d*0.02))
	return math.Max(ef, MinEaseFactor)
}

// NextReviewDate adds interval calendar days to now.
func NextReviewDate(now time.Time, interval int) time.Time {
	return now.AddDate(0, 0, interval)
}

// FindDueCards returns the cards due at now, preserving their input order.
// A card is due when it is unscheduled or its next review is at or before now.
func FindDueCards(cards []domain.ReviewCard, now time.Time) []domain.ReviewCard {
	due := make([]domain.ReviewCard, 0, len(cards))
	for _, c := range cards {
		if c.NextReview.DueAt(now) {
			due = append(due, c)
		}
	}
	return due
}
