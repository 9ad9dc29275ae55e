package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/conorfennell/learning-accelerator/internal/progress"
)

var (
	emptyQuiz      = map[string]any{"inLessonQuizzes": []any{}, "finalQuiz": nil}
	emptyExercises = map[string]any{"exercises": []any{}}
)

type lessonCompletion struct {
	Message            string               `json:"message"`
	XP                 int                  `json:"xp"`
	XPGained           int                  `json:"xpGained,omitempty"`
	Streak             int                  `json:"streak"`
	Milestones         []progress.Milestone `json:"milestones,omitempty"`
	CompletedLessons   int                  `json:"completedLessons"`
	CompletedLessonIDs []string             `json:"completedLessonIds,omitempty"`
}

type challengeCompletion struct {
	Message    string               `json:"message"`
	XP         int                  `json:"xp,omitempty"`
	XPGained   int                  `json:"xpGained,omitempty"`
	Streak     int                  `json:"streak,omitempty"`
	Milestones []progress.Milestone `json:"milestones,omitempty"`
}

func (s *Server) handleGetLessons() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lessons := s.library.Lessons()
		if len(lessons) == 0 {
			s.writeError(w, http.StatusNotFound, "No lesson content found", nil)
			return
		}
		s.writeJSON(w, http.StatusOK, lessons)
	}
}

func (s *Server) handleGetLesson() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lesson, ok := s.library.Lesson(r.PathValue("id"))
		if !ok {
			s.writeError(w, http.StatusNotFound, "Lesson not found", nil)
			return
		}
		s.writeJSON(w, http.StatusOK, lesson)
	}
}

// handleCompleteLesson awards lesson XP the first time a lesson is completed.
func (s *Server) handleCompleteLesson() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.progress.CompleteLesson(r.Context(), r.PathValue("id"))
		switch {
		case errors.Is(err, progress.ErrLessonNotFound):
			s.writeError(w, http.StatusNotFound, "Lesson not found", nil)
			return
		case err != nil:
			s.serverError(w, r, "Failed to complete lesson", err)
			return
		}

		resp := lessonCompletion{
			Message:          "Already completed",
			XP:               c.XP,
			Streak:           c.Streak,
			CompletedLessons: len(c.Progress.CompletedLessons),
		}
		if !c.AlreadyCompleted {
			resp.Message = fmt.Sprintf("+%d XP! Total: %d", c.XPGained, c.XP)
			resp.XPGained = c.XPGained
			resp.Milestones = c.Milestones
			resp.CompletedLessonIDs = c.Progress.CompletedLessons
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleGetChallenges() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		challenges, err := s.progress.Challenges(r.Context())
		if err != nil {
			s.serverError(w, r, "Failed to load challenges", err)
			return
		}
		s.writeJSON(w, http.StatusOK, challenges)
	}
}

func (s *Server) handleCompleteChallenge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.progress.CompleteChallenge(r.Context(), r.PathValue("id"))
		switch {
		case errors.Is(err, progress.ErrChallengeNotFound):
			s.writeError(w, http.StatusNotFound, "Challenge not found", nil)
			return
		case err != nil:
			s.serverError(w, r, "Failed to complete challenge", err)
			return
		}

		if c.AlreadyCompleted {
			s.writeJSON(w, http.StatusOK, challengeCompletion{Message: "Already completed"})
			return
		}
		s.writeJSON(w, http.StatusOK, challengeCompletion{
			Message:    fmt.Sprintf("+%d XP! Total: %d", c.XPGained, c.XP),
			XP:         c.XP,
			XPGained:   c.XPGained,
			Streak:     c.Streak,
			Milestones: c.Milestones,
		})
	}
}

func (s *Server) handleGetLessonQuiz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quiz, ok := s.library.Quiz(r.PathValue("lessonId"))
		if !ok {
			s.writeJSON(w, http.StatusOK, emptyQuiz)
			return
		}
		s.writeJSON(w, http.StatusOK, quiz)
	}
}

func (s *Server) handleGetCodeExercises() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exercises, ok := s.library.CodeExercises(r.PathValue("lessonId"))
		if !ok {
			s.writeJSON(w, http.StatusOK, emptyExercises)
			return
		}
		s.writeJSON(w, http.StatusOK, exercises)
	}
}

func (s *Server) handleGetDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := s.progress.Dashboard(r.Context())
		if err != nil {
			s.serverError(w, r, "Failed to load dashboard", err)
			return
		}
		s.writeJSON(w, http.StatusOK, d)
	}
}

// handleGetProgress returns the progress document. Responses are never cached.
func (s *Server) handleGetProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := s.progress.Overview(r.Context())
		if err != nil {
			s.serverError(w, r, "Failed to load progress", err)
			return
		}
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		s.writeJSON(w, http.StatusOK, o)
	}
}
