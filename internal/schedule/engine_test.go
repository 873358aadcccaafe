package schedule

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examplan/internal/model"
	"examplan/internal/store"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func exam(id int64, start time.Time) model.Exam {
	return model.Exam{
		ID:          id,
		Campus:      "V",
		Subject:     "CPSC",
		Course:      fmt.Sprintf("%d", 100+id),
		Section:     "101",
		StartTime:   start,
		DurationMin: model.IntPtr(150),
		Building:    model.StringPtr("SWNG"),
		Room:        model.StringPtr("121"),
	}
}

var (
	oct2024 = time.Date(2024, 10, 15, 17, 0, 0, 0, time.UTC)
	feb2025 = time.Date(2025, 2, 20, 17, 0, 0, 0, time.UTC)
	jul2024 = time.Date(2024, 7, 10, 17, 0, 0, 0, time.UTC)
)

func newEngine(t *testing.T, b store.Backend) (*Engine, *store.Adapter) {
	t.Helper()
	if b == nil {
		b = store.NewMemory()
	}
	a := store.NewAdapter(b, nil)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := 0
	e := New(context.Background(), a,
		WithClock(clock.Now),
		WithLocation(time.UTC),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("h%d", n) }),
	)
	return e, a
}

func ids(items []model.ScheduleItem) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestAddIsIdempotent(t *testing.T) {
	e, _ := newEngine(t, nil)

	require.NoError(t, e.Add(exam(1, oct2024)))
	once := e.Items()
	require.NoError(t, e.Add(exam(1, feb2025)))

	assert.Equal(t, once, e.Items())
	assert.Equal(t, 1, e.Len())
	assert.Equal(t, "2024W1", e.Items()[0].Semester)
}

func TestAddDerivesSemester(t *testing.T) {
	e, _ := newEngine(t, nil)
	require.NoError(t, e.Add(exam(1, oct2024)))
	require.NoError(t, e.Add(exam(2, feb2025)))
	require.NoError(t, e.Add(exam(3, jul2024)))

	items := e.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "2024W1", items[0].Semester)
	assert.Equal(t, 2024, items[0].Year)
	assert.Equal(t, "2025W2", items[1].Semester)
	assert.Equal(t, 2025, items[1].Year)
	assert.Equal(t, "2024S", items[2].Semester)
	assert.Equal(t, 2024, items[2].Year)
	assert.False(t, items[0].AddedAt.IsZero())
}

func TestAddRejectsIncompleteExam(t *testing.T) {
	e, _ := newEngine(t, nil)
	assert.ErrorIs(t, e.Add(model.Exam{StartTime: oct2024}), ErrInvalidExam)
	assert.ErrorIs(t, e.Add(model.Exam{ID: 5}), ErrInvalidExam)
	assert.Zero(t, e.Len())
}

func TestUniquenessAcrossOperations(t *testing.T) {
	e, _ := newEngine(t, nil)
	for i := 0; i < 3; i++ {
		for id := int64(1); id <= 4; id++ {
			require.NoError(t, e.Add(exam(id, oct2024)))
		}
		e.Remove(2)
	}
	_, ok := e.Save("snap", "2024W1", 2024)
	require.True(t, ok)
	require.NoError(t, e.Add(exam(2, oct2024)))
	require.True(t, e.LoadHistory("h1"))

	seen := map[int64]bool{}
	for _, it := range e.Items() {
		assert.False(t, seen[it.ID], "duplicate id %d", it.ID)
		seen[it.ID] = true
	}
	assert.Equal(t, []int64{1, 3, 4}, e.ExamIDs())
}

func TestRemoveIsTotal(t *testing.T) {
	e, _ := newEngine(t, nil)
	require.NoError(t, e.Add(exam(1, oct2024)))
	require.NoError(t, e.Add(exam(2, oct2024)))

	assert.True(t, e.Remove(1))
	assert.False(t, e.Contains(1))
	assert.False(t, e.Remove(1))
	assert.False(t, e.Remove(99))
	assert.False(t, e.Contains(99))
	assert.Equal(t, []int64{2}, e.ExamIDs())
}

func TestRemoveMissingRewritesStoredList(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	e, a := newEngine(t, mem)
	require.NoError(t, e.Add(exam(1, oct2024)))

	// Another process left a different list behind.
	require.NoError(t, mem.Put(ctx, store.KeyCurrentSchedule, []byte(`[]`)))

	assert.False(t, e.Remove(99))
	stored, res := store.Load[[]model.ScheduleItem](ctx, a, store.KeyCurrentSchedule)
	require.Equal(t, store.StatusLoaded, res.Status)
	assert.Equal(t, []int64{1}, ids(stored))
}

func TestClear(t *testing.T) {
	e, a := newEngine(t, nil)
	require.NoError(t, e.Add(exam(1, oct2024)))
	e.Clear()
	assert.Zero(t, e.Len())
	assert.NotNil(t, e.Items())

	stored, res := store.Load[[]model.ScheduleItem](context.Background(), a, store.KeyCurrentSchedule)
	assert.Equal(t, store.StatusLoaded, res.Status)
	assert.Empty(t, stored)
}

func TestSaveIsCopy(t *testing.T) {
	e, _ := newEngine(t, nil)
	require.NoError(t, e.Add(exam(1, oct2024)))
	require.NoError(t, e.Add(exam(2, oct2024)))

	entry, ok := e.Save("Fall finals", "2024W1", 2024)
	require.True(t, ok)
	assert.Equal(t, "h1", entry.ID)
	assert.Equal(t, "Fall finals", entry.Name)
	assert.Equal(t, []int64{1, 2}, ids(entry.Exams))
	assert.Equal(t, 2, e.Len(), "save must not clear the schedule")

	e.Remove(1)
	require.NoError(t, e.Add(exam(3, oct2024)))
	e.Clear()

	got, ok := e.HistoryEntry(entry.ID)
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2}, ids(got.Exams))

	// Mutating a returned copy must not leak back either.
	*got.Exams[0].Room = "999"
	again, _ := e.HistoryEntry(entry.ID)
	assert.Equal(t, "121", *again.Exams[0].Room)
}

func TestEmptySaveIsNoop(t *testing.T) {
	e, _ := newEngine(t, nil)
	require.NoError(t, e.Add(exam(1, oct2024)))
	_, ok := e.Save("first", "2024W1", 2024)
	require.True(t, ok)
	e.Clear()

	before := e.History()
	_, ok = e.Save("empty", "2024W1", 2024)
	assert.False(t, ok)
	assert.Equal(t, before, e.History())
}

func TestHistoryNewestFirstAndStable(t *testing.T) {
	e, _ := newEngine(t, nil)
	require.NoError(t, e.Add(exam(1, oct2024)))
	first, _ := e.Save("one", "2024W1", 2024)
	require.NoError(t, e.Add(exam(2, oct2024)))
	second, _ := e.Save("two", "2024W1", 2024)

	h := e.History()
	require.Len(t, h, 2)
	assert.Equal(t, second.ID, h[0].ID)
	assert.Equal(t, first, h[1])
	assert.True(t, h[0].CreatedAt.After(h[1].CreatedAt))
}

func TestLoadReplaces(t *testing.T) {
	e, _ := newEngine(t, nil)
	require.NoError(t, e.Add(exam(3, oct2024)))
	snap, ok := e.Save("C only", "2024W1", 2024)
	require.True(t, ok)

	e.Clear()
	require.NoError(t, e.Add(exam(1, oct2024)))
	require.NoError(t, e.Add(exam(2, oct2024)))

	require.True(t, e.LoadHistory(snap.ID))
	assert.Equal(t, []int64{3}, e.ExamIDs())
	assert.True(t, e.Contains(3))
	assert.False(t, e.Contains(1))

	// Loaded items are copies of the snapshot.
	e.Remove(3)
	got, _ := e.HistoryEntry(snap.ID)
	assert.Equal(t, []int64{3}, ids(got.Exams))

	assert.False(t, e.LoadHistory("missing"))
	assert.Empty(t, e.ExamIDs())
}

func TestLoadKeepsStoredDerivation(t *testing.T) {
	e, _ := newEngine(t, nil)
	require.NoError(t, e.Add(exam(1, oct2024)))
	snap, _ := e.Save("s", "2024W1", 2024)
	e.Clear()

	require.True(t, e.LoadHistory(snap.ID))
	assert.Equal(t, snap.Exams, e.Items())
}

func TestDeleteHistory(t *testing.T) {
	e, _ := newEngine(t, nil)
	require.NoError(t, e.Add(exam(1, oct2024)))
	a, _ := e.Save("a", "2024W1", 2024)
	b, _ := e.Save("b", "2024W1", 2024)

	assert.True(t, e.DeleteHistory(a.ID))
	assert.False(t, e.DeleteHistory(a.ID))
	assert.False(t, e.DeleteHistory("nope"))

	h := e.History()
	require.Len(t, h, 1)
	assert.Equal(t, b.ID, h[0].ID)
	_, ok := e.HistoryState(a.ID)
	assert.False(t, ok)
	assert.False(t, e.MarkDownloaded(a.ID))
}

func TestMarkDownloadedLifecycle(t *testing.T) {
	e, _ := newEngine(t, nil)
	require.NoError(t, e.Add(exam(1, oct2024)))
	entry, _ := e.Save("a", "2024W1", 2024)
	assert.Nil(t, entry.DownloadedAt)

	state, ok := e.HistoryState(entry.ID)
	require.True(t, ok)
	assert.Equal(t, StateCreated, state)

	require.True(t, e.MarkDownloaded(entry.ID))
	got, _ := e.HistoryEntry(entry.ID)
	require.NotNil(t, got.DownloadedAt)
	firstAt := *got.DownloadedAt
	state, _ = e.HistoryState(entry.ID)
	assert.Equal(t, StateDownloaded, state)

	require.True(t, e.MarkDownloaded(entry.ID))
	got, _ = e.HistoryEntry(entry.ID)
	assert.True(t, got.DownloadedAt.After(firstAt))
	assert.Equal(t, []int64{1}, ids(got.Exams))
}

func TestDuplicateGeneratedIDsStayUnique(t *testing.T) {
	a := store.NewAdapter(store.NewMemory(), nil)
	e := New(context.Background(), a, WithIDGenerator(func() string { return "same" }))
	require.NoError(t, e.Add(exam(1, oct2024)))

	x, _ := e.Save("x", "2024W1", 2024)
	y, _ := e.Save("y", "2024W1", 2024)
	z, _ := e.Save("z", "2024W1", 2024)
	assert.Equal(t, "same", x.ID)
	assert.Equal(t, "same-2", y.ID)
	assert.Equal(t, "same-3", z.ID)
}

func TestDefaultIDsAreUUIDv7(t *testing.T) {
	e := New(context.Background(), nil)
	require.NoError(t, e.Add(exam(1, oct2024)))
	x, _ := e.Save("x", "2024W1", 2024)
	y, _ := e.Save("y", "2024W1", 2024)
	assert.Len(t, x.ID, 36)
	assert.NotEqual(t, x.ID, y.ID)
	assert.Less(t, x.ID, y.ID, "v7 ids sort by creation time")
}

func TestRoundTripPersistence(t *testing.T) {
	mem := store.NewMemory()
	e, _ := newEngine(t, mem)
	require.NoError(t, e.Add(exam(1, oct2024)))
	require.NoError(t, e.Add(exam(2, feb2025)))
	snap, _ := e.Save("s", "2024W1", 2024)
	require.True(t, e.MarkDownloaded(snap.ID))

	reloaded, _ := newEngine(t, mem)
	assert.Equal(t, e.Items(), reloaded.Items())
	assert.Equal(t, []int64{1, 2}, reloaded.ExamIDs())
	assert.Equal(t, e.History(), reloaded.History())

	state, ok := reloaded.HistoryState(snap.ID)
	require.True(t, ok)
	assert.Equal(t, StateDownloaded, state)
}

func TestCorruptStorageStartsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Put(ctx, store.KeyCurrentSchedule, []byte(`{"oops":`)))
	require.NoError(t, mem.Put(ctx, store.KeyScheduleHistory, []byte(`"not a list"`)))

	e, _ := newEngine(t, mem)
	assert.Zero(t, e.Len())
	assert.Empty(t, e.History())

	// The engine keeps working and overwrites the bad data.
	require.NoError(t, e.Add(exam(1, oct2024)))
	reloaded, _ := newEngine(t, mem)
	assert.Equal(t, []int64{1}, reloaded.ExamIDs())
}

func TestStoredDuplicatesAreDropped(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	raw := `[{"id":1,"startTime":"2024-10-15T17:00:00Z","semester":"2024W1","year":2024},
	         {"id":1,"startTime":"2025-02-20T17:00:00Z","semester":"2025W2","year":2025},
	         {"id":2,"startTime":"2024-10-15T17:00:00Z","semester":"2024W1","year":2024}]`
	require.NoError(t, mem.Put(ctx, store.KeyCurrentSchedule, []byte(raw)))

	e, _ := newEngine(t, mem)
	assert.Equal(t, []int64{1, 2}, e.ExamIDs())
	assert.Equal(t, "2024W1", e.Items()[0].Semester)
}

type brokenBackend struct{ *store.Memory }

func (*brokenBackend) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestWriteFailureKeepsMemoryState(t *testing.T) {
	e, _ := newEngine(t, &brokenBackend{Memory: store.NewMemory()})
	require.NoError(t, e.Add(exam(1, oct2024)))
	_, ok := e.Save("s", "2024W1", 2024)
	require.True(t, ok)

	assert.True(t, e.Contains(1))
	assert.Len(t, e.History(), 1)
}

func TestReload(t *testing.T) {
	mem := store.NewMemory()
	tab1, _ := newEngine(t, mem)
	tab2, _ := newEngine(t, mem)

	require.NoError(t, tab1.Add(exam(1, oct2024)))
	assert.Zero(t, tab2.Len(), "engines are not coordinated")

	tab2.Reload(context.Background())
	assert.Equal(t, []int64{1}, tab2.ExamIDs())
}
