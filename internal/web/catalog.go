package web

import (
	"errors"
	"net/http"

	"examplan/internal/catalog"
	appLog "examplan/internal/log"
	"examplan/internal/model"
)

func (s *Server) catalogReady(w http.ResponseWriter) bool {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not configured")
		return false
	}
	return true
}

func writeCatalogError(w http.ResponseWriter, what string, err error) {
	appLog.Error("catalog proxy failed", err, "what", what)
	var se *catalog.StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	writeError(w, http.StatusBadGateway, "catalog unavailable")
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.catalogReady(w) {
		return
	}
	q := r.URL.Query()
	p := model.SearchParams{
		Campus:  q.Get("campus"),
		Subject: q.Get("subject"),
		Course:  q.Get("course"),
		Section: q.Get("section"),
		Page:    optionalInt(q.Get("page")),
		Size:    optionalInt(q.Get("size")),
		Sort:    q.Get("sort"),
	}
	if p.Size != nil && *p.Size > 100 {
		p.Size = model.IntPtr(100)
	}
	page, err := s.catalog.Search(r.Context(), p)
	if err != nil {
		writeCatalogError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	if !s.catalogReady(w) {
		return
	}
	out, err := s.catalog.Subjects(r.Context(), r.URL.Query().Get("campus"))
	if err != nil {
		writeCatalogError(w, "subjects", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	if !s.catalogReady(w) {
		return
	}
	q := r.URL.Query()
	if q.Get("subject") == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}
	out, err := s.catalog.Courses(r.Context(), q.Get("campus"), q.Get("subject"))
	if err != nil {
		writeCatalogError(w, "courses", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	if !s.catalogReady(w) {
		return
	}
	q := r.URL.Query()
	if q.Get("subject") == "" || q.Get("course") == "" {
		writeError(w, http.StatusBadRequest, "subject and course are required")
		return
	}
	out, err := s.catalog.Sections(r.Context(), q.Get("campus"), q.Get("subject"), q.Get("course"))
	if err != nil {
		writeCatalogError(w, "sections", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
