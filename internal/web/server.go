package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/conorfennell/learning-accelerator/internal/content"
	"github.com/conorfennell/learning-accelerator/internal/progress"
	"github.com/conorfennell/learning-accelerator/internal/review"
	"github.com/conorfennell/learning-accelerator/internal/sync"
)

// Options configures the HTTP layer.
type Options struct {
	Env        string
	Production bool
	// Port is reported by the health check.
	Port string
	// PublicDir holds the static front end. Empty disables it.
	PublicDir string
	Now       func() time.Time
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	opts     Options
	router   *http.ServeMux
	handler  http.Handler
	reviews  *review.Service
	progress *progress.Service
	library  *content.Library
	syncer   *sync.Syncer
	validate *validator.Validate
	log      *zap.Logger
	started  time.Time
}

// NewServer creates and configures a new server.
func NewServer(opts Options, reviews *review.Service, progress *progress.Service, library *content.Library, syncer *sync.Syncer, log *zap.Logger) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:     opts,
		router:   http.NewServeMux(),
		reviews:  reviews,
		progress: progress,
		library:  library,
		syncer:   syncer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
		started:  opts.Now(),
	}
	s.routes()

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(s.logRequests(s.router))
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /health", s.handleHealth())

	// Review scheduler
	s.router.HandleFunc("GET /api/quiz/due", s.handleGetDueCards())
	s.router.HandleFunc("POST /api/quiz/review", s.handlePostReview())
	s.router.HandleFunc("POST /api/quiz/cards", s.handlePostCard())
	s.router.HandleFunc("GET /api/quiz/cards/{id}/history", s.handleGetCardHistory())
	s.router.HandleFunc("GET /api/quiz/stats", s.handleGetStats())

	// Lesson content
	s.router.HandleFunc("GET /api/quiz/{lessonId}", s.handleGetLessonQuiz())
	s.router.HandleFunc("GET /api/code-exercises/{lessonId}", s.handleGetCodeExercises())
	s.router.HandleFunc("GET /api/lessons", s.handleGetLessons())
	s.router.HandleFunc("GET /api/lessons/{id}", s.handleGetLesson())
	s.router.HandleFunc("POST /api/lessons/{id}/complete", s.handleCompleteLesson())
	s.router.HandleFunc("GET /api/challenges", s.handleGetChallenges())
	s.router.HandleFunc("POST /api/challenges/{id}/complete", s.handleCompleteChallenge())

	// Progress
	s.router.HandleFunc("GET /api/dashboard", s.handleGetDashboard())
	s.router.HandleFunc("GET /api/progress", s.handleGetProgress())

	// Source management routes
	s.router.HandleFunc("GET /api/sources", s.handleGetSources())
	s.router.HandleFunc("POST /api/sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /api/sync", s.handlePostSync())

	s.router.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not found", nil)
	})

	if s.opts.PublicDir != "" {
		s.router.Handle("/", http.FileServer(http.Dir(s.opts.PublicDir)))
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := s.opts.Now()
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"timestamp":   now.UTC(),
			"uptime":      now.Sub(s.started).Seconds(),
			"environment": s.opts.Env,
			"port":        s.opts.Port,
		})
	}
}
