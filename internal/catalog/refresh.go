package catalog

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	appLog "examplan/internal/log"
)

// Refresher keeps the subject lists of a set of campuses warm on a cron
// schedule.
type Refresher struct {
	client   *Client
	campuses []string
	expr     string
	loc      *time.Location
}

func NewRefresher(client *Client, expr string, campuses []string, loc *time.Location) *Refresher {
	if loc == nil {
		loc = time.Local
	}
	return &Refresher{client: client, campuses: campuses, expr: expr, loc: loc}
}

// Start schedules the refresh job and returns immediately. The job stops
// when ctx is canceled. An invalid cron expression is returned as an error.
func (r *Refresher) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(r.loc))
	if _, err := c.AddFunc(r.expr, func() { r.RunOnce(ctx) }); err != nil {
		return err
	}
	c.Start()
	appLog.Info("catalog refresher started", "cron", r.expr, "campuses", r.campuses)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Debug("catalog refresher stopped")
	}()
	return nil
}

// RunOnce refreshes every campus. Failures are logged per campus.
func (r *Refresher) RunOnce(ctx context.Context) {
	for _, campus := range r.campuses {
		if ctx.Err() != nil {
			return
		}
		subjects, err := r.client.RefreshSubjects(ctx, campus)
		if err != nil {
			appLog.Error("catalog refresh failed", err, "campus", campus)
			continue
		}
		appLog.Info("catalog subjects refreshed", "campus", campus, "count", len(subjects))
	}
}
