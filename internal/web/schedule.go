package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"examplan/internal/ics"
	appLog "examplan/internal/log"
	"examplan/internal/model"
	"examplan/internal/schedule"
	"examplan/internal/semester"
)

type scheduleResponse struct {
	Items []model.ScheduleItem `json:"items"`
	Count int                  `json:"count"`
}

type membershipResponse struct {
	ID         int64 `json:"id"`
	InSchedule bool  `json:"inSchedule"`
}

type historyView struct {
	model.HistoryEntry
	State string `json:"state"`
}

type saveRequest struct {
	Name     string `json:"name"`
	Semester string `json:"semester"`
	Year     int    `json:"year"`
}

type exportURLResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

func (s *Server) scheduleResponse() scheduleResponse {
	items := s.engine.Items()
	return scheduleResponse{Items: items, Count: len(items)}
}

func examID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid exam id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleSchedule(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduleResponse())
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var exam model.Exam
	if !decodeJSON(w, r, &exam) {
		return
	}
	if err := s.engine.Add(exam); err != nil {
		if errors.Is(err, schedule.ErrInvalidExam) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		appLog.Error("add exam failed", err, "exam_id", exam.ID)
		writeError(w, http.StatusInternalServerError, "failed to add exam")
		return
	}
	writeJSON(w, http.StatusOK, s.scheduleResponse())
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := examID(w, r)
	if !ok {
		return
	}
	s.engine.Remove(id)
	writeJSON(w, http.StatusOK, s.scheduleResponse())
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.engine.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContains(w http.ResponseWriter, r *http.Request) {
	id, ok := examID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, membershipResponse{ID: id, InSchedule: s.engine.Contains(id)})
}

func (s *Server) handleScheduleICS(w http.ResponseWriter, r *http.Request) {
	body := ics.Generate(ics.ItemsToExams(s.engine.Items()), s.exportOptions())
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = "my-exams"
	}
	writeCalendar(w, name, body)
}

func (s *Server) exportOptions() ics.Options {
	return ics.Options{
		ProdID:             s.cfg.Export.ProdID,
		DefaultDurationMin: s.cfg.Export.DefaultDurationMin,
		Now:                s.now(),
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	entries := s.engine.History()
	out := make([]historyView, 0, len(entries))
	for _, e := range entries {
		state, _ := s.engine.HistoryState(e.ID)
		out = append(out, historyView{HistoryEntry: e, State: state})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Semester != "" {
		year, _, err := semester.ParseLabel(req.Semester)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Year == 0 {
			req.Year = year
		}
	}

	entry, ok := s.engine.Save(req.Name, req.Semester, req.Year)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	state, _ := s.engine.HistoryState(entry.ID)
	writeJSON(w, http.StatusCreated, historyView{HistoryEntry: entry, State: state})
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if !s.engine.DeleteHistory(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "history entry not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadHistory(w http.ResponseWriter, r *http.Request) {
	if !s.engine.LoadHistory(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "history entry not found")
		return
	}
	writeJSON(w, http.StatusOK, s.scheduleResponse())
}

func (s *Server) handleHistoryICS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, ok := s.engine.HistoryEntry(id)
	if !ok {
		writeError(w, http.StatusNotFound, "history entry not found")
		return
	}
	body := ics.Generate(ics.ItemsToExams(entry.Exams), s.exportOptions())
	s.engine.MarkDownloaded(id)
	writeCalendar(w, entry.Name, body)
}

func (s *Server) handleExportURL(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not configured")
		return
	}
	id := r.PathValue("id")
	entry, ok := s.engine.HistoryEntry(id)
	if !ok {
		writeError(w, http.StatusNotFound, "history entry not found")
		return
	}
	ids, _ := s.engine.HistoryExamIDs(id)
	name := ics.SafeFilename(entry.Name)
	writeJSON(w, http.StatusOK, exportURLResponse{URL: s.catalog.ExportURL(ids, name), Filename: name})
}

func (s *Server) handleSemesters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, semester.Options(s.now().In(s.cfg.Location())))
}
