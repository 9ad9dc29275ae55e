package domain

// Progress is the learner's gamification state.
type Progress struct {
	XP               int      `json:"xp"`
	Streak           int      `json:"streak"`
	LastActive       string   `json:"lastActive,omitempty"` // UTC date, YYYY-MM-DD
	CompletedSkills  []string `json:"completedSkills"`
	CompletedLessons []string `json:"completedLessons"`
}

// NewProgress returns the state of a learner who has not done anything yet.
func NewProgress() Progress {
	return Progress{
		CompletedSkills:  []string{},
		CompletedLessons: []string{},
	}
}
