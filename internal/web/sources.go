package web

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/conorfennell/learning-accelerator/internal/storage"
	"github.com/conorfennell/learning-accelerator/internal/sync"
)

type sourceRequest struct {
	Path string `json:"path" validate:"required"`
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.syncer.Sources(r.Context())
		if err != nil {
			s.serverError(w, r, "Failed to load sources", err)
			return
		}
		s.writeJSON(w, http.StatusOK, sources)
	}
}

// handlePostSource registers a new deck source.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if err := s.decode(w, r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Path cannot be empty", err)
			return
		}

		source, err := s.syncer.AddSource(r.Context(), req.Path)
		switch {
		case err == nil:
			s.writeJSON(w, http.StatusCreated, source)
		case errors.Is(err, sync.ErrSourceExists):
			s.writeError(w, http.StatusConflict, "Source already exists", err)
		case errors.Is(err, sync.ErrInvalidSource):
			s.writeError(w, http.StatusBadRequest, "Invalid source", err)
		default:
			s.serverError(w, r, "Failed to add source", err)
		}
	}
}

// handleDeleteSource unregisters a source; its cards are kept.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid source ID", err)
			return
		}

		err = s.syncer.RemoveSource(r.Context(), id)
		switch {
		case err == nil:
			s.writeJSON(w, http.StatusOK, messageResponse{Message: "Source deleted"})
		case errors.Is(err, storage.ErrSourceNotFound):
			s.writeError(w, http.StatusNotFound, "Source not found", err)
		default:
			s.serverError(w, r, "Failed to delete source", err)
		}
	}
}

// handlePostSync syncs every source and reloads the lesson content.
// It runs in the foreground so the caller sees the result.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.syncer.Run(r.Context())
		if err != nil {
			s.serverError(w, r, "Failed to sync sources", err)
			return
		}
		if err := s.library.Reload(); err != nil {
			s.serverError(w, r, "Failed to reload content", err)
			return
		}
		s.log.Info("content reloaded", zap.Int("lessons", len(s.library.Lessons())))
		s.writeJSON(w, http.StatusOK, report)
	}
}
