package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"examplan/internal/config"
	appLog "examplan/internal/log"
)

// FetchResult is the outcome of fetching one remote calendar.
type FetchResult struct {
	Body      []byte
	FromCache bool
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads calendar files with conditional requests and keeps
// the last good body on disk, one directory per URL.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher uses client when non-nil. An empty cacheDir disables caching.
func NewFetcher(client *http.Client, cacheDir string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// Fetch returns the calendar at url. Network failures and non-OK
// responses fall back to the cached body when one exists.
func (f *Fetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	if url == "" {
		return FetchResult{}, errors.New("calendar URL is empty")
	}

	dir := f.cachePath(url)
	var meta cacheMeta
	var cached []byte
	if dir != "" {
		meta, _ = loadMeta(dir)
		cached, _ = os.ReadFile(filepath.Join(dir, "body.ics"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Error("calendar fetch failed, using cached body", err, "url", redactURL(url))
			return FetchResult{Body: cached, FromCache: true}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return FetchResult{}, err
		}
		if dir != "" {
			m := cacheMeta{
				URL:          url,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := saveCache(dir, m, body); err != nil {
				appLog.Error("calendar cache save failed", err, "url", redactURL(url))
			}
		}
		appLog.Info("calendar fetched", "url", redactURL(url), "bytes", len(body))
		return FetchResult{Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("calendar not modified", "url", redactURL(url))
		return FetchResult{Body: cached, FromCache: true}, nil

	default:
		if len(cached) > 0 {
			appLog.Error("calendar fetch non-OK, using cached body", errors.New(resp.Status), "url", redactURL(url))
			return FetchResult{Body: cached, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("calendar fetch: %s", resp.Status)
	}
}

func (f *Fetcher) cachePath(url string) string {
	if f.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var m cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}

func saveCache(dir string, m cacheMeta, body []byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	// Body first so meta never points at a missing body.
	if err := config.WriteFileAtomic(filepath.Join(dir, "body.ics"), body, "body-*.tmp"); err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(filepath.Join(dir, "meta.json"), data, "meta-*.tmp")
}

// redactURL keeps only scheme and host for logging.
func redactURL(u string) string {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return "(redacted)"
	}
	host, _, _ := strings.Cut(rest, "/")
	host, _, _ = strings.Cut(host, "?")
	return scheme + "://" + host + "/...(redacted)"
}
