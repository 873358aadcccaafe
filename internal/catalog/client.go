// Package catalog talks to the external exam search API: metadata lists
// (subjects, courses, sections), paginated exam search, and the calendar
// export endpoint.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"examplan/internal/config"
	appLog "examplan/internal/log"
	"examplan/internal/metrics"
	"examplan/internal/model"
)

// ErrStatus matches every *StatusError.
var ErrStatus = errors.New("catalog: unexpected status")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint string
	Code     int
	Status   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog %s: %s", e.Endpoint, e.Status)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// DefaultCampus is used when a request leaves the campus empty.
const DefaultCampus = "V"

// maxBodyBytes caps a single response body.
const maxBodyBytes = 8 << 20

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec int
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Recorder   *metrics.Recorder
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	meta    *cache.Cache
	rec     *metrics.Recorder
}

// New builds a Client. Zero options fall back to the config defaults.
func New(opts Options) *Client {
	def := config.DefaultConfig().Catalog
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = def.RatePerSec
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = def.CacheTTL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec),
		meta:    cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		rec:     opts.Recorder,
	}
}

// NewFromConfig builds a Client from the catalog section of the config.
func NewFromConfig(cfg config.CatalogConfig, rec *metrics.Recorder) *Client {
	return New(Options{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		RatePerSec: cfg.RatePerSec,
		CacheTTL:   cfg.CacheTTL,
		Recorder:   rec,
	})
}

// BaseURL is the API root without trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Subjects lists subject codes for a campus.
func (c *Client) Subjects(ctx context.Context, campus string) ([]string, error) {
	q := url.Values{"campus": {campusOrDefault(campus)}}
	return c.metaList(ctx, "subjects", q, false)
}

// Courses lists course codes for a subject.
func (c *Client) Courses(ctx context.Context, campus, subject string) ([]string, error) {
	q := url.Values{"campus": {campusOrDefault(campus)}, "subject": {subject}}
	return c.metaList(ctx, "courses", q, false)
}

// Sections lists section codes for a course.
func (c *Client) Sections(ctx context.Context, campus, subject, course string) ([]string, error) {
	q := url.Values{"campus": {campusOrDefault(campus)}, "subject": {subject}, "course": {course}}
	return c.metaList(ctx, "sections", q, false)
}

// RefreshSubjects fetches the subject list bypassing the cache and stores
// the fresh result.
func (c *Client) RefreshSubjects(ctx context.Context, campus string) ([]string, error) {
	q := url.Values{"campus": {campusOrDefault(campus)}}
	return c.metaList(ctx, "subjects", q, true)
}

// FlushCache drops every cached metadata list.
func (c *Client) FlushCache() { c.meta.Flush() }

func (c *Client) metaList(ctx context.Context, kind string, q url.Values, refresh bool) ([]string, error) {
	key := kind + "?" + q.Encode()
	if !refresh {
		if v, ok := c.meta.Get(key); ok {
			cached := v.([]string)
			return append(make([]string, 0, len(cached)), cached...), nil
		}
	}
	var out []string
	if err := c.getJSON(ctx, "meta_"+kind, "/meta/"+kind, q, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	c.meta.SetDefault(key, out)
	return append(make([]string, 0, len(out)), out...), nil
}

// Search runs an exam search and returns one page.
func (c *Client) Search(ctx context.Context, p model.SearchParams) (model.Page[model.Exam], error) {
	var page model.Page[model.Exam]
	if err := c.getJSON(ctx, "search", "/exams/search", searchQuery(p), &page); err != nil {
		return model.Page[model.Exam]{}, err
	}
	if page.Content == nil {
		page.Content = []model.Exam{}
	}
	return page, nil
}

func searchQuery(p model.SearchParams) url.Values {
	q := url.Values{}
	if p.Campus != "" {
		q.Set("campus", p.Campus)
	}
	if p.Subject != "" {
		q.Set("subject", p.Subject)
	}
	if p.Course != "" {
		q.Set("course", p.Course)
	}
	if p.Section != "" {
		q.Set("section", p.Section)
	}
	if p.Page != nil {
		q.Set("page", strconv.Itoa(*p.Page))
	}
	if p.Size != nil {
		q.Set("size", strconv.Itoa(*p.Size))
	}
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	}
	return q
}

// ExportURL returns the calendar download URL for ids. Duplicate ids are
// dropped keeping first-seen order.
func (c *Client) ExportURL(ids []int64, filename string) string {
	q := url.Values{}
	q.Set("ids", joinIDs(ids))
	if filename != "" {
		q.Set("filename", filename)
	}
	return c.baseURL + "/exams/ics?" + q.Encode()
}

// DownloadICS fetches the calendar file for ids from the export endpoint.
func (c *Client) DownloadICS(ctx context.Context, ids []int64, filename string) ([]byte, error) {
	body, err := c.get(ctx, "ics", c.ExportURL(ids, filename))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func joinIDs(ids []int64) string {
	seen := make(map[int64]struct{}, len(ids))
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	body, err := c.get(ctx, endpoint, u)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.rec.IncCatalogRequest(endpoint, false)
		return fmt.Errorf("catalog %s: decode: %w", endpoint, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.rec.IncCatalogRequest(endpoint, false)
		appLog.Error("catalog request failed", err, "endpoint", endpoint)
		return nil, fmt.Errorf("catalog %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.rec.IncCatalogRequest(endpoint, false)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Status: resp.Status}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.rec.IncCatalogRequest(endpoint, false)
		return nil, fmt.Errorf("catalog %s: read body: %w", endpoint, err)
	}
	c.rec.IncCatalogRequest(endpoint, true)
	appLog.Debug("catalog request", "endpoint", endpoint, "status", resp.StatusCode, "took", time.Since(start))
	return body, nil
}

func campusOrDefault(c string) string {
	if strings.TrimSpace(c) == "" {
		return DefaultCampus
	}
	return c
}
