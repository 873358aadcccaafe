package ics

import (
	"bytes"
	"errors"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "examplan/internal/log"
	"examplan/internal/model"
)

// ErrEmpty is returned for an empty calendar body.
var ErrEmpty = errors.New("empty ICS body")

// ParseExams reads a calendar written by Generate back into exams.
// Events whose UID was not produced by Generate are skipped.
func ParseExams(body []byte) ([]model.Exam, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmpty
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, err
	}

	exams := make([]model.Exam, 0)
	for _, ve := range cal.Events() {
		ex, perr := parseEvent(ve)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "uid", ve.Id(), "reason", perr.Error())
			continue
		}
		exams = append(exams, ex)
	}

	appLog.Debug("ics parse completed", "event_count", len(exams))
	return exams, nil
}

func parseEvent(ve *ical.VEvent) (model.Exam, error) {
	var ex model.Exam

	id, ok := parseUID(ve.Id())
	if !ok {
		return ex, errors.New("not an exam UID")
	}
	ex.ID = id

	start, err := ve.GetStartAt()
	if err != nil {
		return ex, err
	}
	ex.StartTime = start.UTC()

	if end, err := ve.GetEndAt(); err == nil && end.After(start) {
		d := int(end.Sub(start).Minutes())
		ex.DurationMin = &d
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		fields := strings.Fields(strings.TrimSuffix(p.Value, " Final Exam"))
		if len(fields) > 0 {
			ex.Subject = fields[0]
		}
		if len(fields) > 1 {
			ex.Course = fields[1]
		}
		if len(fields) > 2 {
			ex.Section = strings.Join(fields[2:], " ")
		}
	}

	ex.Campus = propValue(ve, propCampus)
	if ex.Campus == "" {
		ex.Campus = descriptionField(ve, "Campus")
	}

	if b := propValue(ve, propBuilding); b != "" {
		ex.Building = model.StringPtr(b)
	}
	if r := propValue(ve, propRoom); r != "" {
		ex.Room = model.StringPtr(r)
	}
	// Calendars from other writers only carry LOCATION.
	if ex.Building == nil && ex.Room == nil {
		if loc := propValue(ve, ical.ComponentPropertyLocation); loc != "" {
			ex.Building = model.StringPtr(loc)
		}
	}
	return ex, nil
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

func descriptionField(ve *ical.VEvent, name string) string {
	for _, line := range strings.Split(propValue(ve, ical.ComponentPropertyDescription), "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), name+":"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
