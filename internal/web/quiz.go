package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/conorfennell/learning-accelerator/internal/review"
	"github.com/conorfennell/learning-accelerator/internal/sm2"
	"github.com/conorfennell/learning-accelerator/internal/storage"
)

type reviewRequest struct {
	CardID  string `json:"cardId" validate:"required"`
	Quality *int   `json:"quality" validate:"required"`
}

type reviewResponse struct {
	Message    string    `json:"message"`
	NextReview time.Time `json:"nextReview"`
}

type cardRequest struct {
	Front   string `json:"front" validate:"required"`
	Back    string `json:"back" validate:"required"`
	Context string `json:"context"`
}

// handleGetDueCards lists the cards due for review now.
func (s *Server) handleGetDueCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		due, err := s.reviews.Due(r.Context())
		if err != nil {
			s.serverError(w, r, "Failed to load due cards", err)
			return
		}
		s.writeJSON(w, http.StatusOK, due)
	}
}

// handlePostReview records a review of one card.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid review request", err)
			return
		}

		res, err := s.reviews.Submit(r.Context(), req.CardID, *req.Quality)
		switch {
		case err == nil:
			s.writeJSON(w, http.StatusOK, reviewResponse{Message: "Review recorded", NextReview: res.NextReview})
		case errors.Is(err, sm2.ErrInvalidRating):
			s.writeError(w, http.StatusBadRequest, "Invalid rating", err)
		case errors.Is(err, storage.ErrCardNotFound):
			s.writeError(w, http.StatusNotFound, "Card not found", err)
		default:
			s.serverError(w, r, "Failed to record review", err)
		}
	}
}

// handlePostCard adds a learner-authored card.
func (s *Server) handlePostCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid card", err)
			return
		}

		card, err := s.reviews.AddCard(r.Context(), req.Front, req.Back, req.Context)
		switch {
		case err == nil:
			s.writeJSON(w, http.StatusCreated, card)
		case errors.Is(err, review.ErrEmptyCard):
			s.writeError(w, http.StatusBadRequest, "Invalid card", err)
		default:
			s.serverError(w, r, "Failed to add card", err)
		}
	}
}

func (s *Server) handleGetCardHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := s.reviews.History(r.Context(), r.PathValue("id"))
		switch {
		case err == nil:
			s.writeJSON(w, http.StatusOK, logs)
		case errors.Is(err, storage.ErrCardNotFound):
			s.writeError(w, http.StatusNotFound, "Card not found", err)
		default:
			s.serverError(w, r, "Failed to load review history", err)
		}
	}
}

func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.reviews.Stats(r.Context())
		if err != nil {
			s.serverError(w, r, "Failed to load card stats", err)
			return
		}
		s.writeJSON(w, http.StatusOK, st)
	}
}
