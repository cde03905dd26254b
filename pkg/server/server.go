package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/saint0x/ggchangelog/pkg/log"
	"github.com/saint0x/ggchangelog/pkg/models"
	"github.com/saint0x/ggchangelog/pkg/pipeline"
	"github.com/saint0x/ggchangelog/pkg/progress"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Generator runs changelog generations
type Generator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Store reads stored repositories and commits
type Store interface {
	ListRepositories(ctx context.Context) ([]models.Repository, error)
	GetRepository(ctx context.Context, id uint) (*models.Repository, error)
	ListCommits(ctx context.Context, repoID uint, limit, offset int) ([]models.Commit, error)
	CountCommits(ctx context.Context, repoID uint) (int64, error)
	Ping(ctx context.Context) error
}

// Config holds server settings
type Config struct {
	Port string
	// JobTimeout bounds one generation, independent of the client.
	JobTimeout time.Duration
	// AllowedOrigins get credentialed CORS; everyone else gets "*".
	AllowedOrigins []string
}

// Server serves the changelog API
type Server struct {
	logger    *log.Logger
	generator Generator
	store     Store
	progress  *progress.Registry
	cfg       Config
	validate  *validator.Validate
	srv       *http.Server
	addr      string
	mu        sync.RWMutex
}

// New creates a new server instance
func New(logger *log.Logger, gen Generator, st Store, reg *progress.Registry, cfg Config) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("progress registry is required")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 15 * time.Minute
	}

	if logger.IsDebug() {
		logger.Info("Initializing server with components:")
		logger.Info("- Generator: ✓")
		logger.Info("- Store: ✓")
		logger.Info("- Progress registry: ✓")
	}

	return &Server{
		logger:    logger,
		generator: gen,
		store:     st,
		progress:  reg,
		cfg:       cfg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Handler builds the router. Routes are served both at the root and under
// /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.CleanPath,
		s.corsMiddleware,
		s.requestLogger,
	)

	r.Group(s.routes)
	r.Route("/api", s.routes)
	return r
}

func (s *Server) routes(r chi.Router) {
	r.Get("/", s.handleHome)
	r.Get("/health", s.handleHealth)
	r.Post("/generate-changelog", s.handleGenerate)
	r.Get("/generate-changelog/progress", s.handleProgress)
	r.Get("/repositories", s.handleListRepositories)
	r.Get("/repositories/{id}", s.handleGetRepository)
	r.Get("/repositories/{id}/commits", s.handleListCommits)
}

// Start starts the server and blocks until ctx is done
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.logger.IsDebug() {
		s.logger.Info("Starting server initialization...")
	}

	listener, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on port %s: %w", s.cfg.Port, err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port
	s.addr = listener.Addr().String()

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error: %v", err)
		}
	}()

	s.logger.Success("Server is running on port %d", actualPort)
	if s.logger.IsDebug() {
		s.logger.Info("Changelog endpoint: http://localhost:%d/generate-changelog", actualPort)
		s.logger.Info("Press Ctrl+C to stop")
	}

	// Wait for context cancellation
	<-ctx.Done()
	return s.Stop()
}

// Addr is the listening address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Stop stops the server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		// Progress streams end first so Shutdown is not held up by them.
		s.progress.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to stop server: %v", err)
			return fmt.Errorf("failed to stop server: %w", err)
		}
		s.srv = nil
		s.logger.Success("Server stopped")
	}

	return nil
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello, World!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.ListRepositories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if repos == nil {
		repos = []models.Repository{}
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) handleGetRepository(w http.ResponseWriter, r *http.Request) {
	id, ok := s.repositoryID(w, r)
	if !ok {
		return
	}
	repo, err := s.store.GetRepository(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (s *Server) handleListCommits(w http.ResponseWriter, r *http.Request) {
	id, ok := s.repositoryID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetRepository(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 500 || offset < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be 1-500 and offset >= 0"})
		return
	}

	commits, err := s.store.ListCommits(r.Context(), id, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	total, err := s.store.CountCommits(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if commits == nil {
		commits = []models.Commit{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"commits": commits,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) repositoryID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid repository id"})
		return 0, false
	}
	return uint(id), true
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= 500 {
		s.logger.Error("%s %s: %v", r.Method, r.URL.Path, err)
	}
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "generation timed out"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
