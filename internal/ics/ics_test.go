package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examplan/internal/model"
)

func exam(id int64, start time.Time) model.Exam {
	return model.Exam{
		ID:        id,
		Campus:    "V",
		Subject:   "CPSC",
		Course:    "110",
		Section:   "101",
		StartTime: start,
	}
}

func TestGenerate(t *testing.T) {
	late := exam(2, time.Date(2024, 12, 18, 19, 0, 0, 0, time.UTC))
	late.DurationMin = model.IntPtr(150)
	late.Building = model.StringPtr("DMP")
	late.Room = model.StringPtr("310")
	early := exam(1, time.Date(2024, 12, 10, 17, 0, 0, 0, time.UTC))

	out := string(Generate([]model.Exam{late, early}, Options{
		Now: time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
	}))

	assert.Contains(t, out, "PRODID:"+DefaultProdID)
	assert.Contains(t, out, "CALSCALE:GREGORIAN")
	assert.Contains(t, out, "METHOD:PUBLISH")
	assert.Contains(t, out, "DTSTAMP:20241101T000000Z")
	assert.Contains(t, out, "SUMMARY:CPSC 110 101 Final Exam")
	assert.Contains(t, out, "LOCATION:DMP 310")

	// default duration for the first, explicit for the second
	assert.Contains(t, out, "DTSTART:20241210T170000Z")
	assert.Contains(t, out, "DTEND:20241210T190000Z")
	assert.Contains(t, out, "DTEND:20241218T213000Z")

	i1 := strings.Index(out, "UID:"+EventUID(early))
	i2 := strings.Index(out, "UID:"+EventUID(late))
	require.True(t, i1 > 0 && i2 > 0)
	assert.Less(t, i1, i2, "events ordered by start")
	assert.Equal(t, 1, strings.Count(out, "LOCATION:"))
}

func TestGenerateEmpty(t *testing.T) {
	out := string(Generate(nil, Options{ProdID: "-//Test//EN"}))
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "PRODID:-//Test//EN")
	assert.NotContains(t, out, "BEGIN:VEVENT")
}

func TestEventUID(t *testing.T) {
	ex := exam(42, time.Unix(1733850000, 0))
	assert.Equal(t, "exam-42-1733850000@examplan", EventUID(ex))

	id, ok := parseUID(EventUID(ex))
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "exam-", "exam-x-1@examplan", "other-1-2@x", "exam-0-1@examplan"} {
		_, ok := parseUID(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseExamsRoundTrip(t *testing.T) {
	a := exam(7, time.Date(2025, 4, 20, 15, 30, 0, 0, time.UTC))
	a.DurationMin = model.IntPtr(180)
	a.Building = model.StringPtr("SWNG")
	a.Room = model.StringPtr("121")
	b := exam(8, time.Date(2025, 4, 12, 8, 30, 0, 0, time.UTC))
	b.Campus = "O"
	b.Subject = "MATH"
	b.Course = "100"
	b.Section = "2A1"

	got, err := ParseExams(Generate([]model.Exam{a, b}, Options{}))
	require.NoError(t, err)
	require.Len(t, got, 2)

	// b starts first
	assert.Equal(t, int64(8), got[0].ID)
	assert.Equal(t, "O", got[0].Campus)
	assert.Equal(t, "MATH", got[0].Subject)
	assert.Equal(t, "2A1", got[0].Section)
	require.NotNil(t, got[0].DurationMin)
	assert.Equal(t, DefaultDurationMin, *got[0].DurationMin)
	assert.Nil(t, got[0].Building)

	assert.Equal(t, a, got[1])
}

func TestParseExamsForeignCalendar(t *testing.T) {
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Other//EN",
		"BEGIN:VEVENT",
		"UID:meeting-1@example.com",
		"DTSTART:20250101T100000Z",
		"SUMMARY:Standup",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:exam-9-1735725600@examplan",
		"DTSTART:20250101T100000Z",
		"SUMMARY:PHYS 101 001 Final Exam",
		"LOCATION:Hennings 200",
		"DESCRIPTION:Campus: V\\nCourse: PHYS 101\\nSection: 001",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	got, err := ParseExams([]byte(body))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(9), got[0].ID)
	assert.Equal(t, "V", got[0].Campus)
	assert.Equal(t, "PHYS", got[0].Subject)
	assert.Nil(t, got[0].DurationMin)
	require.NotNil(t, got[0].Building)
	assert.Equal(t, "Hennings 200", *got[0].Building)
}

func TestParseExamsEmpty(t *testing.T) {
	_, err := ParseExams([]byte("  \r\n"))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSafeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "exams.ics"},
		{"winter", "winter.ics"},
		{"Winter.ICS", "Winter.ICS"},
		{"a\"b\r\nc.ics", "abc.ics"},
		{"../etc/passwd", "..etcpasswd.ics"},
		{"  2024 W1 schedule  ", "2024 W1 schedule.ics"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SafeFilename(tc.in), tc.in)
	}
}

func TestItemsToExams(t *testing.T) {
	items := []model.ScheduleItem{{Exam: exam(1, time.Unix(0, 0)), Semester: "2024W1"}}
	assert.Equal(t, []model.Exam{exam(1, time.Unix(0, 0))}, ItemsToExams(items))
}

func TestFetcherConditionalAndFallback(t *testing.T) {
	var calls atomic.Int32
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), t.TempDir())
	ctx := context.Background()
	url := srv.URL + "/exams/ics?ids=1,2"

	res, err := f.Fetch(ctx, url)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Contains(t, string(res.Body), "BEGIN:VCALENDAR")

	res, err = f.Fetch(ctx, url)
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	fail.Store(true)
	res, err = f.Fetch(ctx, url)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Contains(t, string(res.Body), "BEGIN:VCALENDAR")
	assert.Equal(t, int32(3), calls.Load())

	_, err = f.Fetch(ctx, srv.URL+"/other")
	assert.Error(t, err)
}

func TestFetcherWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	f := NewFetcher(nil, "")
	for range 2 {
		res, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	}
	_, err := f.Fetch(context.Background(), "")
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://api.test/...(redacted)", redactURL("https://api.test/exams/ics?token=abc"))
	assert.Equal(t, "(redacted)", redactURL("nonsense"))
}
