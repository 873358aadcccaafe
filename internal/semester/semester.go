// Package semester maps exam dates onto UBC academic terms.
//
// Winter Session Term 1 runs September to December, Term 2 January to
// April, and the Summer Session May to August. Labels are written as the
// calendar year followed by the term code, e.g. "2024W1", "2025W2", "2024S".
package semester

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Term is the academic term code inside a semester label.
type Term string

const (
	TermW1 Term = "W1"
	TermW2 Term = "W2"
	TermS  Term = "S"
)

// Result is the derived semester label and calendar year of an instant.
type Result struct {
	Label string
	Year  int
	Term  Term
}

// Derive computes the semester of start. The calendar month and year are
// read in loc; a nil loc keeps the timestamp's own location.
func Derive(start time.Time, loc *time.Location) Result {
	if loc != nil {
		start = start.In(loc)
	}
	year := start.Year()
	term := termForMonth(int(start.Month()))
	return Result{
		Label: Label(year, term),
		Year:  year,
		Term:  term,
	}
}

func termForMonth(month int) Term {
	switch {
	case month >= 9 && month <= 12:
		return TermW1
	case month >= 1 && month <= 4:
		return TermW2
	case month >= 5 && month <= 8:
		return TermS
	}
	return TermW1
}

// Label formats a semester label.
func Label(year int, term Term) string {
	return strconv.Itoa(year) + string(term)
}

// ParseLabel splits a label such as "2024W1" into its year and term.
func ParseLabel(label string) (int, Term, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	var term Term
	switch {
	case strings.HasSuffix(label, string(TermW1)):
		term = TermW1
	case strings.HasSuffix(label, string(TermW2)):
		term = TermW2
	case strings.HasSuffix(label, string(TermS)):
		term = TermS
	default:
		return 0, "", fmt.Errorf("semester %q: unknown term", label)
	}
	digits := strings.TrimSuffix(label, string(term))
	if len(digits) != 4 {
		return 0, "", fmt.Errorf("semester %q: year must have four digits", label)
	}
	year, err := strconv.Atoi(digits)
	if err != nil {
		return 0, "", fmt.Errorf("semester %q: %w", label, err)
	}
	return year, term, nil
}

// Option is a selectable semester for save forms.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options lists the terms of now's year followed by the winter terms of
// the next year.
func Options(now time.Time) []Option {
	y := now.Year()
	return []Option{
		{Value: Label(y, TermW1), Label: fmt.Sprintf("%d Fall (W1)", y)},
		{Value: Label(y, TermW2), Label: fmt.Sprintf("%d Winter (W2)", y)},
		{Value: Label(y, TermS), Label: fmt.Sprintf("%d Summer (S)", y)},
		{Value: Label(y+1, TermW1), Label: fmt.Sprintf("%d Fall (W1)", y+1)},
		{Value: Label(y+1, TermW2), Label: fmt.Sprintf("%d Winter (W2)", y+1)},
	}
}
