package sm2

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/conorfennell/learning-accelerator/internal/domain"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

const epsilon = 1e-9

func card(reps, interval int, ease float64) domain.ReviewCard {
	return domain.ReviewCard{
		ID:          "card-1",
		Front:       "What is SM-2?",
		Back:        "A spaced repetition algorithm.",
		Repetitions: reps,
		Interval:    interval,
		EaseFactor:  ease,
		NextReview:  domain.ScheduledFor(t0),
		Created:     t0,
	}
}

func mustReview(t *testing.T, c domain.ReviewCard, q Quality, now time.Time) domain.ReviewCard {
	t.Helper()
	next, err := ScheduleReview(c, q, now)
	if err != nil {
		t.Fatalf("ScheduleReview(q=%d): %v", q, err)
	}
	return next
}

func TestNewCard(t *testing.T) {
	c := NewCard("id", "front", "back", t0)
	if c.Repetitions != 0 || c.Interval != 0 || c.EaseFactor != InitialEaseFactor {
		t.Errorf("unexpected initial state %+v", c)
	}
	if !c.Created.Equal(t0) {
		t.Errorf("Created = %v, want %v", c.Created, t0)
	}
	if at, ok := c.NextReview.Time(); !ok || !at.Equal(t0) {
		t.Errorf("NextReview = %v, want %v", c.NextReview, t0)
	}
	if c.Reviewed() {
		t.Error("new card must not have a lastReviewed stamp")
	}
}

func TestOnboardingSequence(t *testing.T) {
	for _, q := range []Quality{Difficult, Hesitant, Perfect} {
		fresh := NewCard("id", "f", "b", t0)

		first := mustReview(t, fresh, q, t0)
		if first.Interval != 1 || first.Repetitions != 1 {
			t.Errorf("q=%d first pass: interval=%d reps=%d, want 1/1", q, first.Interval, first.Repetitions)
		}

		second := mustReview(t, first, q, t0.AddDate(0, 0, 1))
		if second.Interval != 6 || second.Repetitions != 2 {
			t.Errorf("q=%d second pass: interval=%d reps=%d, want 6/2", q, second.Interval, second.Repetitions)
		}
	}
}

func TestLapseResets(t *testing.T) {
	testCases := []struct {
		name string
		card domain.ReviewCard
	}{
		{"fresh", card(0, 0, 2.5)},
		{"young", card(2, 6, 2.5)},
		{"mature", card(9, 180, 2.8)},
	}

	for _, tc := range testCases {
		for _, q := range []Quality{Blackout, Wrong, Hazy} {
			t.Run(fmt.Sprintf("%s/q=%d", tc.name, q), func(t *testing.T) {
				next := mustReview(t, tc.card, q, t0)
				if next.Repetitions != 0 || next.Interval != 1 {
					t.Errorf("q=%d: reps=%d interval=%d, want 0/1", q, next.Repetitions, next.Interval)
				}
				if next.EaseFactor >= tc.card.EaseFactor && tc.card.EaseFactor > MinEaseFactor {
					t.Errorf("q=%d: expected ease to decrease from %.2f, got %.2f", q, tc.card.EaseFactor, next.EaseFactor)
				}
			})
		}
	}
}

func TestEaseFloor(t *testing.T) {
	c := NewCard("id", "f", "b", t0)
	for i := 0; i < 20; i++ {
		c = mustReview(t, c, Blackout, t0.AddDate(0, 0, i))
		if c.EaseFactor < MinEaseFactor {
			t.Fatalf("review %d: ease %.4f dropped below %.1f", i, c.EaseFactor, MinEaseFactor)
		}
	}
	if c.EaseFactor != MinEaseFactor {
		t.Errorf("expected ease to settle at %.1f, got %.4f", MinEaseFactor, c.EaseFactor)
	}
}

func TestEaseUnchangedForQualityFour(t *testing.T) {
	for _, ease := range []float64{1.3, 1.9, 2.5, 3.1} {
		next := mustReview(t, card(3, 20, ease), Hesitant, t0)
		if math.Abs(next.EaseFactor-ease) > epsilon {
			t.Errorf("ease %.2f changed to %.6f on quality 4", ease, next.EaseFactor)
		}
	}
}

func TestNextEaseFactor(t *testing.T) {
	testCases := []struct {
		quality Quality
		delta   float64
	}{
		{Perfect, 0.1},
		{Hesitant, 0},
		{Difficult, -0.14},
		{Hazy, -0.32},
		{Wrong, -0.54},
		{Blackout, -0.8},
	}

	for _, tc := range testCases {
		got := NextEaseFactor(2.5, tc.quality)
		want := math.Max(2.5+tc.delta, MinEaseFactor)
		if math.Abs(got-want) > epsilon {
			t.Errorf("NextEaseFactor(2.5, %d) = %.6f, want %.6f", tc.quality, got, want)
		}
	}
}

func TestNextReviewIsCalendarDays(t *testing.T) {
	for _, interval := range []int{0, 1, 6, 15, 400} {
		got := NextReviewDate(t0, interval)
		if !got.Equal(t0.AddDate(0, 0, interval)) {
			t.Errorf("interval %d: got %v", interval, got)
		}
	}

	t.Run("keeps wall clock across DST", func(t *testing.T) {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			t.Skipf("tzdata unavailable: %v", err)
		}
		before := time.Date(2025, 3, 8, 9, 30, 0, 0, loc)
		after := NextReviewDate(before, 1)
		if after.Hour() != 9 || after.Minute() != 30 || after.Day() != 9 {
			t.Errorf("expected 2025-03-09 09:30 local, got %v", after)
		}
	})
}

func TestScenarioPerfectOnYoungCard(t *testing.T) {
	next := mustReview(t, card(2, 6, 2.5), Perfect, t0)

	if next.Repetitions != 3 {
		t.Errorf("Repetitions = %d, want 3", next.Repetitions)
	}
	if next.Interval != 15 {
		t.Errorf("Interval = %d, want 15", next.Interval)
	}
	if math.Abs(next.EaseFactor-2.6) > epsilon {
		t.Errorf("EaseFactor = %.6f, want 2.6", next.EaseFactor)
	}
	if at, _ := next.NextReview.Time(); !at.Equal(t0.AddDate(0, 0, 15)) {
		t.Errorf("NextReview = %v, want %v", at, t0.AddDate(0, 0, 15))
	}
	if next.LastReviewed == nil || !next.LastReviewed.Equal(t0) {
		t.Errorf("LastReviewed = %v, want %v", next.LastReviewed, t0)
	}
}

func TestScenarioBlackoutOnMatureCard(t *testing.T) {
	next := mustReview(t, card(3, 15, 2.6), Blackout, t0)

	if next.Repetitions != 0 || next.Interval != 1 {
		t.Errorf("reps=%d interval=%d, want 0/1", next.Repetitions, next.Interval)
	}
	// 2.6 + (0.1 - 5*(0.08 + 5*0.02)) = 1.8, above the floor.
	if math.Abs(next.EaseFactor-1.8) > epsilon {
		t.Errorf("EaseFactor = %.6f, want 1.8", next.EaseFactor)
	}
	if at, _ := next.NextReview.Time(); !at.Equal(t0.AddDate(0, 0, 1)) {
		t.Errorf("NextReview = %v, want %v", at, t0.AddDate(0, 0, 1))
	}
}

func TestIntervalRounding(t *testing.T) {
	// 7 * 2.5 = 17.5 rounds up, 7 * 1.3 = 9.1 rounds down.
	if got := mustReview(t, card(2, 7, 2.5), Hesitant, t0).Interval; got != 18 {
		t.Errorf("interval = %d, want 18", got)
	}
	if got := mustReview(t, card(2, 7, 1.3), Hesitant, t0).Interval; got != 9 {
		t.Errorf("interval = %d, want 9", got)
	}
}

func TestPassedReviewIntervalAtLeastOneDay(t *testing.T) {
	testCases := []struct {
		name string
		card domain.ReviewCard
	}{
		{"zero interval after repetitions", card(2, 0, 2.5)},
		{"missing ease factor", card(3, 6, 0)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			next := mustReview(t, tc.card, Hesitant, t0)
			if next.Interval != 1 {
				t.Errorf("Interval = %d, want 1", next.Interval)
			}
			if at, _ := next.NextReview.Time(); !at.Equal(t0.AddDate(0, 0, 1)) {
				t.Errorf("NextReview = %v, want %v", at, t0.AddDate(0, 0, 1))
			}
		})
	}
}

func TestInvalidRating(t *testing.T) {
	original := card(2, 6, 2.5)
	for _, q := range []Quality{-1, 6, 42} {
		got, err := ScheduleReview(original, q, t0)
		if !errors.Is(err, ErrInvalidRating) {
			t.Fatalf("q=%d: expected ErrInvalidRating, got %v", q, err)
		}
		var ire *InvalidRatingError
		if !errors.As(err, &ire) || ire.Quality != int(q) {
			t.Errorf("q=%d: expected *InvalidRatingError carrying the quality, got %v", q, err)
		}
		if !reflect.DeepEqual(got, original) {
			t.Errorf("q=%d: card changed on invalid rating", q)
		}
	}
}

func TestScheduleReviewDoesNotMutateInput(t *testing.T) {
	original := card(1, 1, 2.5)
	_ = mustReview(t, original, Perfect, t0)
	if original.Repetitions != 1 || original.Interval != 1 || original.LastReviewed != nil {
		t.Errorf("input card was mutated: %+v", original)
	}
}

func TestFindDueCards(t *testing.T) {
	unscheduled := card(0, 0, 2.5)
	unscheduled.ID = "unscheduled"
	unscheduled.NextReview = domain.Unscheduled()

	boundary := card(1, 1, 2.5)
	boundary.ID = "boundary"
	boundary.NextReview = domain.ScheduledFor(t0)

	future := card(2, 6, 2.5)
	future.ID = "future"
	future.NextReview = domain.ScheduledFor(t0.AddDate(0, 0, 1))

	overdue := card(3, 15, 2.6)
	overdue.ID = "overdue"
	overdue.NextReview = domain.ScheduledFor(t0.AddDate(0, 0, -3))

	due := FindDueCards([]domain.ReviewCard{overdue, future, unscheduled, boundary}, t0)

	want := []string{"overdue", "unscheduled", "boundary"}
	if len(due) != len(want) {
		t.Fatalf("expected %d due cards, got %d", len(want), len(due))
	}
	for i, id := range want {
		if due[i].ID != id {
			t.Errorf("due[%d] = %s, want %s", i, due[i].ID, id)
		}
	}

	t.Run("empty input", func(t *testing.T) {
		if got := FindDueCards(nil, t0); len(got) != 0 {
			t.Errorf("expected no due cards, got %d", len(got))
		}
	})
}
