package progress

import (
	"slices"
	"time"

	"github.com/conorfennell/learning-accelerator/internal/domain"
)

// LessonXP is awarded for every completed lesson.
const LessonXP = 100

const dateLayout = "2006-01-02"

// Milestone is an XP threshold with a badge.
type Milestone struct {
	Threshold int    `json:"threshold"`
	Title     string `json:"title"`
	Emoji     string `json:"emoji"`
	Unlocked  bool   `json:"unlocked"`
}

var milestones = []Milestone{
	{Threshold: 100, Title: "Bronze Learner", Emoji: "🥉"},
	{Threshold: 300, Title: "Silver Builder", Emoji: "🥈"},
	{Threshold: 600, Title: "Gold Shipper", Emoji: "🥇"},
	{Threshold: 1000, Title: "Diamond Maker", Emoji: "💎"},
}

// Milestones returns the milestones unlocked at the given XP, lowest first.
func Milestones(xp int) []Milestone {
	unlocked := []Milestone{}
	for _, m := range milestones {
		if xp >= m.Threshold {
			m.Unlocked = true
			unlocked = append(unlocked, m)
		}
	}
	return unlocked
}

// TouchStreak records activity at now. Days are UTC calendar days:
// activity on the same day keeps the streak, activity on the following
// day extends it, and anything else restarts it at 1.
func TouchStreak(p *domain.Progress, now time.Time) {
	today := now.UTC().Format(dateLayout)
	if p.LastActive == today {
		return
	}

	yesterday := now.UTC().AddDate(0, 0, -1).Format(dateLayout)
	if p.LastActive == yesterday {
		p.Streak++
	} else {
		p.Streak = 1
	}
	p.LastActive = today
}

// CompleteLesson marks a lesson done and awards LessonXP.
// It reports false when the lesson was already completed.
func CompleteLesson(p *domain.Progress, lessonID string, now time.Time) bool {
	if slices.Contains(p.CompletedLessons, lessonID) {
		return false
	}
	p.CompletedLessons = append(p.CompletedLessons, lessonID)
	p.XP += LessonXP
	TouchStreak(p, now)
	return true
}

// CompleteChallenge marks a challenge done and awards its XP.
// It reports false when the challenge was already completed.
func CompleteChallenge(p *domain.Progress, challengeID string, xp int, now time.Time) bool {
	if slices.Contains(p.CompletedSkills, challengeID) {
		return false
	}
	p.CompletedSkills = append(p.CompletedSkills, challengeID)
	p.XP += xp
	TouchStreak(p, now)
	return true
}
