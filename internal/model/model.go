package model

import (
	"strings"
	"time"
)

// Exam is one scheduled final examination as returned by the external
// catalog API. It is treated as read-only data.
type Exam struct {
	ID      int64  `json:"id"`
	Campus  string `json:"campus"`
	Subject string `json:"subject"`
	Course  string `json:"course"`
	Section string `json:"section"`

	StartTime time.Time `json:"startTime"`
	// DurationMin is nil when the catalog does not know the duration.
	DurationMin *int `json:"durationMin"`

	Building *string `json:"building,omitempty"`
	Room     *string `json:"room,omitempty"`
}

// EndTime returns StartTime plus the exam duration, using defaultMin when
// DurationMin is unknown.
func (e Exam) EndTime(defaultMin int) time.Time {
	d := defaultMin
	if e.DurationMin != nil && *e.DurationMin > 0 {
		d = *e.DurationMin
	}
	return e.StartTime.Add(time.Duration(d) * time.Minute)
}

// Location joins building and room, skipping whichever is missing.
func (e Exam) Location() string {
	b := strings.TrimSpace(deref(e.Building))
	r := strings.TrimSpace(deref(e.Room))
	switch {
	case b != "" && r != "":
		return b + " " + r
	case b != "":
		return b
	default:
		return r
	}
}

// Title is the short course label, e.g. "CPSC 110 101".
func (e Exam) Title() string {
	return strings.TrimSpace(strings.Join([]string{e.Subject, e.Course, e.Section}, " "))
}

// ScheduleItem is an Exam picked into the current schedule. Semester and
// Year are computed once when the item is added and stored as-is.
type ScheduleItem struct {
	Exam

	AddedAt  time.Time `json:"addedAt"`
	Semester string    `json:"semester"`
	Year     int       `json:"year"`
}

// HistoryEntry is a named snapshot of a past schedule.
type HistoryEntry struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Semester string         `json:"semester"`
	Year     int            `json:"year"`
	Exams    []ScheduleItem `json:"exams"`

	CreatedAt    time.Time  `json:"createdAt"`
	DownloadedAt *time.Time `json:"downloadedAt,omitempty"`
}

// Clone returns a deep copy so callers cannot alias stored state.
func (h HistoryEntry) Clone() HistoryEntry {
	out := h
	out.Exams = CloneItems(h.Exams)
	if h.DownloadedAt != nil {
		t := *h.DownloadedAt
		out.DownloadedAt = &t
	}
	return out
}

// CloneItems copies a slice of items including their pointer fields.
func CloneItems(items []ScheduleItem) []ScheduleItem {
	if items == nil {
		return nil
	}
	out := make([]ScheduleItem, len(items))
	for i, it := range items {
		out[i] = it
		out[i].Exam = it.Exam.Clone()
	}
	return out
}

// Clone copies the optional pointer fields of an Exam.
func (e Exam) Clone() Exam {
	out := e
	if e.DurationMin != nil {
		v := *e.DurationMin
		out.DurationMin = &v
	}
	if e.Building != nil {
		v := *e.Building
		out.Building = &v
	}
	if e.Room != nil {
		v := *e.Room
		out.Room = &v
	}
	return out
}

// Page is one page of results from the catalog search endpoint.
type Page[T any] struct {
	Content          []T  `json:"content"`
	TotalElements    int  `json:"totalElements"`
	TotalPages       int  `json:"totalPages"`
	Number           int  `json:"number"`
	Size             int  `json:"size"`
	First            bool `json:"first"`
	Last             bool `json:"last"`
	NumberOfElements int  `json:"numberOfElements"`
	Empty            bool `json:"empty"`
}

// SearchParams are the catalog search filters. Zero values are omitted.
type SearchParams struct {
	Campus  string
	Subject string
	Course  string
	Section string
	Page    *int
	Size    *int
	Sort    string
}

// IntPtr and StringPtr help building optional fields.
func IntPtr(v int) *int { return &v }

func StringPtr(v string) *string { return &v }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
