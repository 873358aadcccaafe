package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers understood by internal/store.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// LogConfig controls the global logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// JSON switches from the console writer to JSON lines.
	JSON bool `yaml:"json" json:"json"`
}

// StorageConfig selects where the current schedule and history are kept.
type StorageConfig struct {
	// Driver is one of "file", "sqlite", "redis", "memory".
	Driver string `yaml:"driver" json:"driver"`
	// Path is a directory for the file driver and a database file for sqlite.
	Path string `yaml:"path" json:"path"`
	// RedisAddr is host:port for the redis driver.
	RedisAddr string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	// RedisPrefix is prepended to every key stored in redis.
	RedisPrefix string `yaml:"redis_prefix,omitempty" json:"redis_prefix,omitempty"`
	// Watch reloads the in-memory schedule when another process rewrites
	// the stored files. Only supported by the file driver.
	Watch bool `yaml:"watch" json:"watch"`
}

// CatalogConfig describes the external exam search API.
type CatalogConfig struct {
	// BaseURL is the API root, e.g. "http://localhost:8080/api".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// RatePerSec limits outgoing requests.
	RatePerSec int `yaml:"rate_per_sec" json:"rate_per_sec"`
	// CacheTTL is how long subject/course/section lists are cached.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	// RefreshCron warms the subject lists of Campuses. Empty disables it.
	RefreshCron string `yaml:"refresh_cron" json:"refresh_cron"`
	// Campuses are the campus codes warmed by RefreshCron.
	Campuses []string `yaml:"campuses" json:"campuses"`
}

// ExportConfig tunes calendar file generation.
type ExportConfig struct {
	// DefaultDurationMin is used when an exam has no duration.
	DefaultDurationMin int `yaml:"default_duration_min" json:"default_duration_min"`
	// ProdID is written into the VCALENDAR header.
	ProdID string `yaml:"prodid" json:"prodid"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used to read an exam's calendar month when
	// deriving its semester (e.g. "America/Vancouver").
	Timezone string `yaml:"timezone" json:"timezone"`

	Log     LogConfig     `yaml:"log" json:"log"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Catalog CatalogConfig `yaml:"catalog" json:"catalog"`
	Export  ExportConfig  `yaml:"export" json:"export"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8090"
	defaultTimezone    = "America/Vancouver"
	defaultStoragePath = "./var/examplan"
	defaultCatalogURL  = "http://localhost:8080/api"
	defaultProdID      = "-//UBC Planner//Exams//EN"
	defaultRefreshCron = "0 */6 * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		Timezone: defaultTimezone,
		Log:      LogConfig{Level: "info"},
		Storage: StorageConfig{
			Driver:      DriverFile,
			Path:        defaultStoragePath,
			RedisPrefix: "examplan:",
		},
		Catalog: CatalogConfig{
			BaseURL:     defaultCatalogURL,
			Timeout:     15 * time.Second,
			RatePerSec:  5,
			CacheTTL:    10 * time.Minute,
			RefreshCron: defaultRefreshCron,
			Campuses:    []string{"V"},
		},
		Export: ExportConfig{
			DefaultDurationMin: 120,
			ProdID:             defaultProdID,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverFile
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case DriverSQLite:
			c.Storage.Path = filepath.Join(defaultStoragePath, "examplan.db")
		default:
			c.Storage.Path = defaultStoragePath
		}
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = "examplan:"
	}

	c.Catalog.BaseURL = strings.TrimRight(c.Catalog.BaseURL, "/")
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = defaultCatalogURL
	}
	if c.Catalog.Timeout <= 0 {
		c.Catalog.Timeout = 15 * time.Second
	}
	if c.Catalog.RatePerSec <= 0 {
		c.Catalog.RatePerSec = 5
	}
	if c.Catalog.CacheTTL <= 0 {
		c.Catalog.CacheTTL = 10 * time.Minute
	}
	if c.Catalog.Campuses == nil {
		c.Catalog.Campuses = []string{"V"}
	}

	if c.Export.DefaultDurationMin <= 0 {
		c.Export.DefaultDurationMin = 120
	}
	if c.Export.ProdID == "" {
		c.Export.ProdID = defaultProdID
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverFile, DriverSQLite, DriverMemory:
	case DriverRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return errors.New("storage.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Watch && c.Storage.Driver != DriverFile {
		return fmt.Errorf("storage.watch is only supported by the %s driver", DriverFile)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// In both cases EXAMPLAN_* environment variables are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				applyEnv(cfg)
				return cfg, err
			}
			applyEnv(cfg)
			cfg.Normalize()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyEnv(&cfg)
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".examplan-config-*.tmp")
}

// WriteFileAtomic writes data to a temp file in the target directory, syncs it,
// sets 0600 and renames it over path.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
