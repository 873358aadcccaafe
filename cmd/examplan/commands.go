package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"examplan/internal/catalog"
	"examplan/internal/ics"
	appLog "examplan/internal/log"
	"examplan/internal/metrics"
	"examplan/internal/model"
	"examplan/internal/semester"
	"examplan/internal/store"
	"examplan/internal/web"
)

// ServeCmd runs the HTTP API until interrupted.
type ServeCmd struct {
	Listen string `help:"HTTP listen address (overrides config if set)"`
}

func (c *ServeCmd) Run(rt *runtime) error {
	if c.Listen != "" {
		rt.cfg.Listen = c.Listen
	}
	eng, err := rt.Engine()
	if err != nil {
		return err
	}
	cat := rt.Catalog()

	if rt.cfg.Storage.Watch {
		fb, ok := rt.adapter.Backend().(*store.File)
		if !ok {
			appLog.Warn("storage.watch ignored: only supported by the file driver", "driver", rt.cfg.Storage.Driver)
		} else {
			go func() {
				err := fb.Watch(rt.ctx, func(key string) {
					appLog.Info("stored schedule changed externally; reloading", "key", key)
					eng.Reload(rt.ctx)
				})
				if err != nil {
					appLog.Error("store watcher stopped", err)
				}
			}()
		}
	}

	if rt.cfg.Catalog.RefreshCron != "" && len(rt.cfg.Catalog.Campuses) > 0 {
		r := catalog.NewRefresher(cat, rt.cfg.Catalog.RefreshCron, rt.cfg.Catalog.Campuses, rt.cfg.Location())
		if err := r.Start(rt.ctx); err != nil {
			return fmt.Errorf("catalog refresher: %w", err)
		}
	}

	srv := web.NewServer(rt.cfg, eng, cat, metrics.HTTPHandler(rt.reg))
	return srv.ListenAndServe(rt.ctx)
}

// ListCmd prints the current schedule.
type ListCmd struct{}

func (c *ListCmd) Run(rt *runtime) error {
	eng, err := rt.Engine()
	if err != nil {
		return err
	}
	printItems(rt, eng.Items())
	return nil
}

func printItems(rt *runtime, items []model.ScheduleItem) {
	loc := rt.cfg.Location()
	tw := tabwriter.NewWriter(rt.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEXAM\tSTART\tLOCATION\tSEMESTER")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			it.ID, it.Title(), it.StartTime.In(loc).Format("2006-01-02 15:04"), it.Location(), it.Semester)
	}
	_ = tw.Flush()
	fmt.Fprintf(rt.out, "%d exam(s)\n", len(items))
}

// AddCmd adds one exam. Without --start the exam is looked up in the
// catalog by the given filters.
type AddCmd struct {
	ID       int64  `help:"Exam id"`
	Campus   string `help:"Campus code" default:"V"`
	Subject  string `help:"Subject code"`
	Course   string `help:"Course number"`
	Section  string `help:"Section"`
	Start    string `help:"Start time (RFC3339); skips the catalog lookup"`
	Duration int    `help:"Duration in minutes"`
	Building string `help:"Building"`
	Room     string `help:"Room"`
}

func (c *AddCmd) Run(rt *runtime) error {
	exam, err := c.resolve(rt)
	if err != nil {
		return err
	}
	eng, err := rt.Engine()
	if err != nil {
		return err
	}
	already := eng.Contains(exam.ID)
	if err := eng.Add(exam); err != nil {
		return err
	}
	if already {
		fmt.Fprintf(rt.out, "exam %d already in schedule\n", exam.ID)
		return nil
	}
	fmt.Fprintf(rt.out, "added %d %s\n", exam.ID, exam.Title())
	return nil
}

func (c *AddCmd) resolve(rt *runtime) (model.Exam, error) {
	if c.Start != "" {
		start, err := time.Parse(time.RFC3339, c.Start)
		if err != nil {
			return model.Exam{}, fmt.Errorf("--start: %w", err)
		}
		ex := model.Exam{
			ID:        c.ID,
			Campus:    c.Campus,
			Subject:   c.Subject,
			Course:    c.Course,
			Section:   c.Section,
			StartTime: start,
		}
		if c.Duration > 0 {
			ex.DurationMin = model.IntPtr(c.Duration)
		}
		if c.Building != "" {
			ex.Building = model.StringPtr(c.Building)
		}
		if c.Room != "" {
			ex.Room = model.StringPtr(c.Room)
		}
		return ex, nil
	}

	page, err := rt.Catalog().Search(rt.ctx, model.SearchParams{
		Campus:  c.Campus,
		Subject: c.Subject,
		Course:  c.Course,
		Section: c.Section,
		Size:    model.IntPtr(100),
	})
	if err != nil {
		return model.Exam{}, err
	}
	var matches []model.Exam
	for _, ex := range page.Content {
		if c.ID == 0 || ex.ID == c.ID {
			matches = append(matches, ex)
		}
	}
	switch len(matches) {
	case 0:
		return model.Exam{}, errors.New("no exam matches the given filters")
	case 1:
		return matches[0], nil
	default:
		return model.Exam{}, fmt.Errorf("%d exams match; narrow the filters or pass --id", len(matches))
	}
}

// RemoveCmd removes an exam by id.
type RemoveCmd struct {
	ID int64 `arg:"" help:"Exam id"`
}

func (c *RemoveCmd) Run(rt *runtime) error {
	eng, err := rt.Engine()
	if err != nil {
		return err
	}
	if eng.Remove(c.ID) {
		fmt.Fprintf(rt.out, "removed %d\n", c.ID)
	} else {
		fmt.Fprintf(rt.out, "exam %d not in schedule\n", c.ID)
	}
	return nil
}

// ClearCmd empties the current schedule.
type ClearCmd struct{}

func (c *ClearCmd) Run(rt *runtime) error {
	eng, err := rt.Engine()
	if err != nil {
		return err
	}
	n := eng.Len()
	eng.Clear()
	fmt.Fprintf(rt.out, "cleared %d exam(s)\n", n)
	return nil
}

// SaveCmd snapshots the current schedule.
type SaveCmd struct {
	Name     string `arg:"" help:"Snapshot name"`
	Semester string `help:"Semester label such as 2024W1"`
	Year     int    `help:"Academic year (defaults to the semester's year)"`
}

func (c *SaveCmd) Run(rt *runtime) error {
	year := c.Year
	if c.Semester != "" {
		y, _, err := semester.ParseLabel(c.Semester)
		if err != nil {
			return err
		}
		if year == 0 {
			year = y
		}
	}
	eng, err := rt.Engine()
	if err != nil {
		return err
	}
	entry, ok := eng.Save(strings.TrimSpace(c.Name), c.Semester, year)
	if !ok {
		fmt.Fprintln(rt.out, "current schedule is empty; nothing saved")
		return nil
	}
	fmt.Fprintf(rt.out, "saved %s (%d exam(s))\n", entry.ID, len(entry.Exams))
	return nil
}

// HistoryCmd lists saved schedules, newest first.
type HistoryCmd struct{}

func (c *HistoryCmd) Run(rt *runtime) error {
	eng, err := rt.Engine()
	if err != nil {
		return err
	}
	loc := rt.cfg.Location()
	tw := tabwriter.NewWriter(rt.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSEMESTER\tEXAMS\tCREATED\tSTATE")
	for _, h := range eng.History() {
		state, _ := eng.HistoryState(h.ID)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			h.ID, h.Name, h.Semester, len(h.Exams), h.CreatedAt.In(loc).Format("2006-01-02 15:04"), state)
	}
	return tw.Flush()
}

// LoadCmd replaces the current schedule with a saved one.
type LoadCmd struct {
	ID string `arg:"" help:"History entry id"`
}

func (c *LoadCmd) Run(rt *runtime) error {
	eng, err := rt.Engine()
	if err != nil {
		return err
	}
	if !eng.LoadHistory(c.ID) {
		return fmt.Errorf("history entry %s not found", c.ID)
	}
	fmt.Fprintf(rt.out, "loaded %s (%d exam(s))\n", c.ID, eng.Len())
	return nil
}

// DeleteCmd deletes a saved schedule.
type DeleteCmd struct {
	ID string `arg:"" help:"History entry id"`
}

func (c *DeleteCmd) Run(rt *runtime) error {
	eng, err := rt.Engine()
	if err != nil {
		return err
	}
	if !eng.DeleteHistory(c.ID) {
		return fmt.Errorf("history entry %s not found", c.ID)
	}
	fmt.Fprintf(rt.out, "deleted %s\n", c.ID)
	return nil
}

// ExportCmd writes the current schedule, or a saved one, as a calendar.
type ExportCmd struct {
	History string `help:"Export this history entry instead of the current schedule"`
	Out     string `short:"o" help:"Output file (default: stdout)"`
	Remote  bool   `help:"Download the file from the catalog export endpoint"`
}

func (c *ExportCmd) Run(rt *runtime) error {
	eng, err := rt.Engine()
	if err != nil {
		return err
	}

	exams := ics.ItemsToExams(eng.Items())
	ids := eng.ExamIDs()
	name := "my-exams"
	if c.History != "" {
		entry, ok := eng.HistoryEntry(c.History)
		if !ok {
			return fmt.Errorf("history entry %s not found", c.History)
		}
		exams = ics.ItemsToExams(entry.Exams)
		ids, _ = eng.HistoryExamIDs(c.History)
		name = entry.Name
	}

	var body []byte
	if c.Remote {
		body, err = rt.Catalog().DownloadICS(rt.ctx, ids, ics.SafeFilename(name))
		if err != nil {
			return err
		}
	} else {
		body = ics.Generate(exams, ics.Options{
			ProdID:             rt.cfg.Export.ProdID,
			DefaultDurationMin: rt.cfg.Export.DefaultDurationMin,
		})
	}

	if c.Out == "" {
		_, err = rt.out.Write(body)
	} else {
		err = os.WriteFile(c.Out, body, 0o644)
	}
	if err != nil {
		return err
	}
	if c.History != "" {
		eng.MarkDownloaded(c.History)
	}
	return nil
}

// ImportCmd adds every exam found in a calendar file or URL.
type ImportCmd struct {
	Source   string `arg:"" help:"Calendar file path or http(s) URL"`
	CacheDir string `help:"Cache directory for downloaded calendars" default:"./var/examplan/ics-cache"`
}

func (c *ImportCmd) Run(rt *runtime) error {
	var body []byte
	if strings.HasPrefix(c.Source, "http://") || strings.HasPrefix(c.Source, "https://") {
		res, err := ics.NewFetcher(nil, filepath.Clean(c.CacheDir)).Fetch(rt.ctx, c.Source)
		if err != nil {
			return err
		}
		body = res.Body
	} else {
		b, err := os.ReadFile(c.Source)
		if err != nil {
			return err
		}
		body = b
	}

	exams, err := ics.ParseExams(body)
	if err != nil {
		return err
	}
	eng, err := rt.Engine()
	if err != nil {
		return err
	}
	added := 0
	for _, ex := range exams {
		if eng.Contains(ex.ID) {
			continue
		}
		if err := eng.Add(ex); err != nil {
			appLog.Warn("import skipped exam", "exam_id", ex.ID, "reason", err.Error())
			continue
		}
		added++
	}
	fmt.Fprintf(rt.out, "imported %d of %d exam(s)\n", added, len(exams))
	return nil
}

// SearchCmd queries the catalog.
type SearchCmd struct {
	Campus  string `help:"Campus code" default:"V"`
	Subject string `help:"Subject code"`
	Course  string `help:"Course number"`
	Section string `help:"Section"`
	Page    int    `help:"Zero-based page" default:"0"`
	Size    int    `help:"Page size" default:"20"`
	Sort    string `help:"Sort expression, e.g. startTime,asc"`
}

func (c *SearchCmd) Run(rt *runtime) error {
	page, err := rt.Catalog().Search(rt.ctx, model.SearchParams{
		Campus:  c.Campus,
		Subject: c.Subject,
		Course:  c.Course,
		Section: c.Section,
		Page:    model.IntPtr(c.Page),
		Size:    model.IntPtr(c.Size),
		Sort:    c.Sort,
	})
	if err != nil {
		return err
	}
	loc := rt.cfg.Location()
	tw := tabwriter.NewWriter(rt.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEXAM\tSTART\tLOCATION")
	for _, ex := range page.Content {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ex.ID, ex.Title(), ex.StartTime.In(loc).Format("2006-01-02 15:04"), ex.Location())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "page %d of %d (%d total)\n", page.Number+1, page.TotalPages, page.TotalElements)
	return nil
}

// SemestersCmd prints the selectable semesters.
type SemestersCmd struct{}

func (c *SemestersCmd) Run(rt *runtime) error {
	for _, o := range semester.Options(time.Now().In(rt.cfg.Location())) {
		fmt.Fprintf(rt.out, "%s\t%s\n", o.Value, o.Label)
	}
	return nil
}
