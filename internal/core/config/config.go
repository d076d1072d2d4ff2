package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	LogLevel    string
	DatabaseURL string

	// CatalogStrictNames rejects case-insensitive duplicate function
	// names instead of letting the later definition win.
	CatalogStrictNames bool
	// CatalogRefresh re-scans the database on this interval; zero
	// disables periodic refresh.
	CatalogRefresh time.Duration

	// CacheDriver selects the tile cache backend: none, memory, redis.
	CacheDriver     string
	CacheSize       int
	CacheTTLDefault time.Duration
	CacheTTLOvr     map[string]time.Duration
	CacheOpTimeout  time.Duration
	RedisAddr       string
}

func FromEnv() Config {
	return Config{
		Addr:        getenv("ADDR", ":3000"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		DatabaseURL: getenv("DATABASE_URL", "postgres://localhost:5432/postgres"),

		CatalogStrictNames: getbool("CATALOG_STRICT_NAMES", false),
		CatalogRefresh:     getduration("CATALOG_REFRESH", 0),

		CacheDriver:     strings.ToLower(getenv("CACHE_DRIVER", "memory")),
		CacheSize:       getint("CACHE_SIZE", 4096),
		CacheTTLDefault: getduration("CACHE_TTL_DEFAULT", 60*time.Second),
		CacheTTLOvr:     parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
	}
}

// TTLFor returns the cache TTL for one source, honoring overrides.
func (c Config) TTLFor(source string) time.Duration {
	if d, ok := c.CacheTTLOvr[source]; ok {
		return d
	}
	return c.CacheTTLDefault
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "source=5m,other=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
