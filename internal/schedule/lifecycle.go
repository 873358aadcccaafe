package schedule

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	appLog "examplan/internal/log"
	"examplan/internal/model"
)

// History entry states.
const (
	StateCreated    = "created"
	StateDownloaded = "downloaded"
	StateDeleted    = "deleted"
)

const (
	eventDownload = "download"
	eventDelete   = "delete"
)

// newLifecycle builds the state machine of one history entry. Entries
// restored from storage start in "downloaded" when they carry a download
// timestamp. "deleted" is terminal.
func newLifecycle(e model.HistoryEntry) *fsm.FSM {
	initial := StateCreated
	if e.DownloadedAt != nil {
		initial = StateDownloaded
	}
	id := e.ID
	return fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: eventDownload, Src: []string{StateCreated, StateDownloaded}, Dst: StateDownloaded},
			{Name: eventDelete, Src: []string{StateCreated, StateDownloaded}, Dst: StateDeleted},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				appLog.Debug("history entry transition", "id", id, "from", ev.Src, "to", ev.Dst)
			},
		},
	)
}

// fire triggers event. Repeating a transition into the current state
// (a second download) is not an error.
func fire(ctx context.Context, f *fsm.FSM, event string) error {
	err := f.Event(ctx, event)
	var same fsm.NoTransitionError
	if errors.As(err, &same) {
		return nil
	}
	return err
}
