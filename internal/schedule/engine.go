// Package schedule owns the user's exam selection ("current schedule") and
// the list of saved snapshots ("history").
//
// An Engine is created once at startup and shared by every consumer. All
// mutations are serialized and each one that changes state is followed by a
// synchronous write of the affected slot. Storage failures are logged and
// never surface to callers: the in-memory state stays authoritative for the
// rest of the process.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	appLog "examplan/internal/log"
	"examplan/internal/metrics"
	"examplan/internal/model"
	"examplan/internal/semester"
	"examplan/internal/store"
)

// ErrInvalidExam is returned by Add for an exam without identifier or
// start time.
var ErrInvalidExam = errors.New("schedule: exam needs an id and a start time")

// Operation names used in logs and metrics.
const (
	opAdd      = "add"
	opRemove   = "remove"
	opClear    = "clear"
	opSave     = "save"
	opDelete   = "delete_history"
	opLoad     = "load_history"
	opDownload = "mark_downloaded"
)

// Engine is the schedule state. The zero value is not usable; call New.
type Engine struct {
	mu sync.Mutex

	store *store.Adapter
	rec   *metrics.Recorder
	now   func() time.Time
	loc   *time.Location
	newID func() string

	items   []model.ScheduleItem
	index   map[int64]struct{}
	history []model.HistoryEntry
	states  map[string]*fsm.FSM
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the zone used to read an exam's calendar month.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithIDGenerator overrides the history identifier generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithRecorder attaches metrics.
func WithRecorder(rec *metrics.Recorder) Option {
	return func(e *Engine) { e.rec = rec }
}

// New builds an Engine and hydrates it from st. A nil st keeps everything
// in memory.
func New(ctx context.Context, st *store.Adapter, opts ...Option) *Engine {
	e := &Engine{
		store: st,
		now:   time.Now,
		newID: newHistoryID,
		index: map[int64]struct{}{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.mu.Lock()
	e.hydrateLocked(ctx)
	e.mu.Unlock()
	return e
}

// newHistoryID returns a UUIDv7: time-ordered and unique.
func newHistoryID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Reload replaces the in-memory state with what is currently stored.
func (e *Engine) Reload(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hydrateLocked(ctx)
	appLog.Info("schedule reloaded from storage", "items", len(e.items), "history", len(e.history))
}

func (e *Engine) hydrateLocked(ctx context.Context) {
	items, _ := store.Load[[]model.ScheduleItem](ctx, e.store, store.KeyCurrentSchedule)
	history, _ := store.Load[[]model.HistoryEntry](ctx, e.store, store.KeyScheduleHistory)

	e.setItemsLocked(items)

	e.history = make([]model.HistoryEntry, 0, len(history))
	e.states = make(map[string]*fsm.FSM, len(history))
	for _, h := range history {
		if h.ID == "" {
			appLog.Warn("dropping stored history entry without id", "name", h.Name)
			continue
		}
		if _, dup := e.states[h.ID]; dup {
			appLog.Warn("dropping duplicate stored history entry", "id", h.ID)
			continue
		}
		h.Exams = dedupe(h.Exams)
		e.history = append(e.history, h)
		e.states[h.ID] = newLifecycle(h)
	}
	e.gaugesLocked()
}

// setItemsLocked replaces the current items, keeping the first occurrence
// of every exam id.
func (e *Engine) setItemsLocked(items []model.ScheduleItem) {
	e.items = dedupe(items)
	e.index = make(map[int64]struct{}, len(e.items))
	for _, it := range e.items {
		e.index[it.ID] = struct{}{}
	}
}

func dedupe(items []model.ScheduleItem) []model.ScheduleItem {
	seen := make(map[int64]struct{}, len(items))
	out := make([]model.ScheduleItem, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ID]; ok {
			appLog.Warn("dropping duplicate schedule item", "exam_id", it.ID)
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// newItem turns an exam into a schedule item, deriving its semester and
// year from the start time. Add is its only caller; stored items are
// never re-derived.
func newItem(exam model.Exam, addedAt time.Time, loc *time.Location) model.ScheduleItem {
	sem := semester.Derive(exam.StartTime, loc)
	return model.ScheduleItem{
		Exam:     exam.Clone(),
		AddedAt:  addedAt,
		Semester: sem.Label,
		Year:     sem.Year,
	}
}

// Add inserts exam unless an item with the same id already exists, in
// which case nothing happens.
func (e *Engine) Add(exam model.Exam) error {
	if exam.ID == 0 || exam.StartTime.IsZero() {
		e.rec.IncMutation(opAdd, metrics.OutcomeRejected)
		return fmt.Errorf("%w (id=%d)", ErrInvalidExam, exam.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.index[exam.ID]; ok {
		e.rec.IncMutation(opAdd, metrics.OutcomeNoop)
		return nil
	}
	e.items = append(e.items, newItem(exam, e.now(), e.loc))
	e.index[exam.ID] = struct{}{}
	e.rec.IncMutation(opAdd, metrics.OutcomeApplied)
	appLog.Debug("exam added to schedule", "exam_id", exam.ID, "title", exam.Title())
	e.persistItemsLocked()
	return nil
}

// Remove deletes the item with examID. It reports whether one existed.
func (e *Engine) Remove(examID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.index[examID]; !ok {
		// Still rewrite the stored list so a stale copy converges.
		e.rec.IncMutation(opRemove, metrics.OutcomeNoop)
		e.persistItemsLocked()
		return false
	}
	out := e.items[:0:0]
	for _, it := range e.items {
		if it.ID != examID {
			out = append(out, it)
		}
	}
	e.items = out
	delete(e.index, examID)
	e.rec.IncMutation(opRemove, metrics.OutcomeApplied)
	e.persistItemsLocked()
	return true
}

// Clear empties the current schedule.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.items = []model.ScheduleItem{}
	e.index = map[int64]struct{}{}
	e.rec.IncMutation(opClear, metrics.OutcomeApplied)
	e.persistItemsLocked()
}

// Save snapshots the current schedule into a new history entry placed at
// the front of the history. An empty schedule is not saved and ok is false.
// The current schedule is left untouched.
func (e *Engine) Save(name, sem string, year int) (entry model.HistoryEntry, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.items) == 0 {
		e.rec.IncMutation(opSave, metrics.OutcomeNoop)
		return model.HistoryEntry{}, false
	}

	entry = model.HistoryEntry{
		ID:        e.uniqueIDLocked(),
		Name:      name,
		Semester:  sem,
		Year:      year,
		Exams:     model.CloneItems(e.items),
		CreatedAt: e.now(),
	}
	e.history = append([]model.HistoryEntry{entry}, e.history...)
	e.states[entry.ID] = newLifecycle(entry)
	e.rec.IncMutation(opSave, metrics.OutcomeApplied)
	appLog.Info("schedule saved to history", "id", entry.ID, "name", name, "exams", len(entry.Exams))
	e.persistHistoryLocked()
	return entry.Clone(), true
}

func (e *Engine) uniqueIDLocked() string {
	id := e.newID()
	if _, taken := e.states[id]; !taken {
		return id
	}
	for n := 2; ; n++ {
		candidate := id + "-" + strconv.Itoa(n)
		if _, taken := e.states[candidate]; !taken {
			return candidate
		}
	}
}

// DeleteHistory removes the entry with historyID. It reports whether one
// existed.
func (e *Engine) DeleteHistory(historyID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.historyIndexLocked(historyID)
	if i < 0 {
		e.rec.IncMutation(opDelete, metrics.OutcomeNoop)
		return false
	}
	if err := fire(context.Background(), e.states[historyID], eventDelete); err != nil {
		appLog.Error("history entry delete transition failed", err, "id", historyID)
	}
	delete(e.states, historyID)
	e.history = append(e.history[:i:i], e.history[i+1:]...)
	e.rec.IncMutation(opDelete, metrics.OutcomeApplied)
	e.persistHistoryLocked()
	return true
}

// LoadHistory replaces the current schedule with a copy of the items of
// entry historyID. It reports whether the entry existed.
func (e *Engine) LoadHistory(historyID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.historyIndexLocked(historyID)
	if i < 0 {
		e.rec.IncMutation(opLoad, metrics.OutcomeNoop)
		return false
	}
	e.setItemsLocked(model.CloneItems(e.history[i].Exams))
	e.rec.IncMutation(opLoad, metrics.OutcomeApplied)
	appLog.Info("schedule loaded from history", "id", historyID, "items", len(e.items))
	e.persistItemsLocked()
	return true
}

// MarkDownloaded records that entry historyID was exported. Exporting it
// again refreshes the timestamp.
func (e *Engine) MarkDownloaded(historyID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.historyIndexLocked(historyID)
	if i < 0 {
		e.rec.IncMutation(opDownload, metrics.OutcomeNoop)
		return false
	}
	if err := fire(context.Background(), e.states[historyID], eventDownload); err != nil {
		appLog.Error("history entry download transition failed", err, "id", historyID)
		e.rec.IncMutation(opDownload, metrics.OutcomeRejected)
		return false
	}
	at := e.now()
	e.history[i].DownloadedAt = &at
	e.rec.IncMutation(opDownload, metrics.OutcomeApplied)
	e.persistHistoryLocked()
	return true
}

func (e *Engine) historyIndexLocked(id string) int {
	for i := range e.history {
		if e.history[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) persistItemsLocked() {
	e.gaugesLocked()
	// Errors are already logged by the adapter.
	_ = e.store.Save(context.Background(), store.KeyCurrentSchedule, e.items)
}

func (e *Engine) persistHistoryLocked() {
	e.gaugesLocked()
	_ = e.store.Save(context.Background(), store.KeyScheduleHistory, e.history)
}

func (e *Engine) gaugesLocked() {
	e.rec.SetScheduleSize(len(e.items))
	e.rec.SetHistorySize(len(e.history))
}
