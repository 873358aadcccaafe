package schedule

import (
	"examplan/internal/model"
)

// Contains reports whether an exam is in the current schedule.
func (e *Engine) Contains(examID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.index[examID]
	return ok
}

// Items returns a copy of the current schedule in insertion order.
func (e *Engine) Items() []model.ScheduleItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := model.CloneItems(e.items)
	if out == nil {
		out = []model.ScheduleItem{}
	}
	return out
}

// Len is the number of items in the current schedule.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

// ExamIDs lists the exam ids of the current schedule in insertion order.
func (e *Engine) ExamIDs() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return examIDs(e.items)
}

// History returns copies of all history entries, newest first.
func (e *Engine) History() []model.HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.HistoryEntry, len(e.history))
	for i, h := range e.history {
		out[i] = h.Clone()
	}
	return out
}

// HistoryEntry returns a copy of one entry.
func (e *Engine) HistoryEntry(historyID string) (model.HistoryEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.historyIndexLocked(historyID)
	if i < 0 {
		return model.HistoryEntry{}, false
	}
	return e.history[i].Clone(), true
}

// HistoryExamIDs lists the exam ids of one entry.
func (e *Engine) HistoryExamIDs(historyID string) ([]int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.historyIndexLocked(historyID)
	if i < 0 {
		return nil, false
	}
	return examIDs(e.history[i].Exams), true
}

// HistoryState is the lifecycle state of an entry ("created" or
// "downloaded"). Deleted entries are gone and report false.
func (e *Engine) HistoryState(historyID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.states[historyID]
	if !ok {
		return "", false
	}
	return f.Current(), true
}

func examIDs(items []model.ScheduleItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	out := make([]int64, 0, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it.ID)
	}
	return out
}
