// Package ics writes and reads iCalendar files for exam schedules.
package ics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"examplan/internal/model"
)

const (
	// DefaultDurationMin is used for exams whose duration is unknown.
	DefaultDurationMin = 120
	// DefaultProdID is written when Options.ProdID is empty.
	DefaultProdID = "-//UBC Planner//Exams//EN"

	uidDomain = "examplan"

	propCampus   = ical.ComponentProperty("X-EXAMPLAN-CAMPUS")
	propBuilding = ical.ComponentProperty("X-EXAMPLAN-BUILDING")
	propRoom     = ical.ComponentProperty("X-EXAMPLAN-ROOM")
)

// Options tunes Generate.
type Options struct {
	ProdID             string
	DefaultDurationMin int
	// Now stamps DTSTAMP. Zero means time.Now.
	Now time.Time
}

// Generate renders exams as a VCALENDAR with one VEVENT per exam, ordered
// by start time. An empty list yields a calendar without events.
func Generate(exams []model.Exam, opts Options) []byte {
	if opts.ProdID == "" {
		opts.ProdID = DefaultProdID
	}
	if opts.DefaultDurationMin <= 0 {
		opts.DefaultDurationMin = DefaultDurationMin
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	sorted := make([]model.Exam, len(exams))
	copy(sorted, exams)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	cal := ical.NewCalendar()
	cal.SetProductId(opts.ProdID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)

	for _, ex := range sorted {
		ev := cal.AddEvent(EventUID(ex))
		ev.SetDtStampTime(opts.Now)
		ev.SetStartAt(ex.StartTime)
		ev.SetEndAt(ex.EndTime(opts.DefaultDurationMin))
		ev.SetSummary(ex.Title() + " Final Exam")
		if loc := ex.Location(); loc != "" {
			ev.SetLocation(loc)
		}
		ev.SetDescription(description(ex))

		if ex.Campus != "" {
			ev.SetProperty(propCampus, ex.Campus)
		}
		if ex.Building != nil && *ex.Building != "" {
			ev.SetProperty(propBuilding, *ex.Building)
		}
		if ex.Room != nil && *ex.Room != "" {
			ev.SetProperty(propRoom, *ex.Room)
		}
	}
	return []byte(cal.Serialize())
}

// ItemsToExams strips the schedule metadata off items.
func ItemsToExams(items []model.ScheduleItem) []model.Exam {
	out := make([]model.Exam, len(items))
	for i, it := range items {
		out[i] = it.Exam
	}
	return out
}

// EventUID is stable for an exam id and start time.
func EventUID(ex model.Exam) string {
	return fmt.Sprintf("exam-%d-%d@%s", ex.ID, ex.StartTime.Unix(), uidDomain)
}

func description(ex model.Exam) string {
	var b strings.Builder
	b.WriteString("Campus: " + ex.Campus + "\n")
	b.WriteString("Course: " + strings.TrimSpace(ex.Subject+" "+ex.Course) + "\n")
	b.WriteString("Section: " + ex.Section)
	return b.String()
}

// SafeFilename makes name usable in a Content-Disposition header and
// guarantees the .ics extension.
func SafeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '"', '\\', '/':
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" {
		name = "exams"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".ics") {
		name += ".ics"
	}
	return name
}

func parseUID(uid string) (int64, bool) {
	rest, ok := strings.CutPrefix(uid, "exam-")
	if !ok {
		return 0, false
	}
	idPart, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
