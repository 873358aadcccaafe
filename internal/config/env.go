package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables recognized on top of the YAML file.
const (
	EnvListen       = "EXAMPLAN_LISTEN"
	EnvTimezone     = "EXAMPLAN_TIMEZONE"
	EnvLogLevel     = "EXAMPLAN_LOG_LEVEL"
	EnvStorage      = "EXAMPLAN_STORAGE_DRIVER"
	EnvStoragePath  = "EXAMPLAN_STORAGE_PATH"
	EnvRedisAddr    = "EXAMPLAN_REDIS_ADDR"
	EnvCatalogURL   = "EXAMPLAN_CATALOG_URL"
	EnvCatalogTmout = "EXAMPLAN_CATALOG_TIMEOUT"
	EnvCatalogRate  = "EXAMPLAN_CATALOG_RATE"
)

// LoadEnvFiles loads KEY=VALUE files into the process environment.
// Missing files are skipped; existing variables are never overwritten.
// With no arguments ".env" and ".env.local" are tried.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env", ".env.local"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

func applyEnv(c *Config) {
	setString(&c.Listen, EnvListen)
	setString(&c.Timezone, EnvTimezone)
	setString(&c.Log.Level, EnvLogLevel)
	setString(&c.Storage.Driver, EnvStorage)
	setString(&c.Storage.Path, EnvStoragePath)
	setString(&c.Storage.RedisAddr, EnvRedisAddr)
	setString(&c.Catalog.BaseURL, EnvCatalogURL)

	if v, ok := lookup(EnvCatalogTmout); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Catalog.Timeout = d
		}
	}
	if v, ok := lookup(EnvCatalogRate); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Catalog.RatePerSec = n
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
