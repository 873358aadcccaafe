// Package web exposes the schedule engine and the exam catalog over HTTP.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"examplan/internal/config"
	"examplan/internal/ics"
	appLog "examplan/internal/log"
	"examplan/internal/model"
	"examplan/internal/schedule"
)

// Catalog is the part of the exam search API the server proxies.
type Catalog interface {
	Subjects(ctx context.Context, campus string) ([]string, error)
	Courses(ctx context.Context, campus, subject string) ([]string, error)
	Sections(ctx context.Context, campus, subject, course string) ([]string, error)
	Search(ctx context.Context, p model.SearchParams) (model.Page[model.Exam], error)
	ExportURL(ids []int64, filename string) string
}

// Server provides the JSON API over one schedule engine.
type Server struct {
	cfg     *config.Config
	engine  *schedule.Engine
	catalog Catalog
	metrics http.Handler
	now     func() time.Time
	mux     *http.ServeMux
}

// NewServer constructs a Server. catalog and metrics may be nil, in which
// case the routes depending on them answer 503 and 404 respectively.
func NewServer(cfg *config.Config, engine *schedule.Engine, catalog Catalog, metrics http.Handler) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		catalog: catalog,
		metrics: metrics,
		now:     time.Now,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := logRequests(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="examplan", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"took", time.Since(start),
		)
	})
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("GET /api/schedule", s.handleSchedule)
	s.mux.HandleFunc("POST /api/schedule", s.handleAdd)
	s.mux.HandleFunc("POST /api/schedule/clear", s.handleClear)
	s.mux.HandleFunc("GET /api/schedule/ics", s.handleScheduleICS)
	s.mux.HandleFunc("GET /api/schedule/{id}", s.handleContains)
	s.mux.HandleFunc("DELETE /api/schedule/{id}", s.handleRemove)

	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("POST /api/history", s.handleSave)
	s.mux.HandleFunc("DELETE /api/history/{id}", s.handleDeleteHistory)
	s.mux.HandleFunc("POST /api/history/{id}/load", s.handleLoadHistory)
	s.mux.HandleFunc("GET /api/history/{id}/ics", s.handleHistoryICS)
	s.mux.HandleFunc("GET /api/history/{id}/export-url", s.handleExportURL)

	s.mux.HandleFunc("GET /api/semesters", s.handleSemesters)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/meta/subjects", s.handleSubjects)
	s.mux.HandleFunc("GET /api/meta/courses", s.handleCourses)
	s.mux.HandleFunc("GET /api/meta/sections", s.handleSections)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

func writeCalendar(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ics.SafeFilename(filename)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func optionalInt(s string) *int {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
