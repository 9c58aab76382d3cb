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

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type CacheCfg struct {
	Driver       string // memory | redis | sqlite | postgres
	RedisAddr    string
	DSN          string
	ContainerKey string
	KeyPrefix    string
	Version      string
	OpTimeout    time.Duration
}

type RemoteCfg struct {
	Driver          string // nominatim | overpass | none
	NominatimURL    string
	OverpassURL     string
	OverpassArea    string
	QuerySuffix     string
	Timeout         time.Duration
	UserAgent       string
	BreakerFailures int
	BreakerCooldown time.Duration
}

type CatalogCfg struct {
	Path            string
	BundlePath      string
	AggregateRegion string
	H3Res           int
}

type Config struct {
	Addr         string
	LogLevel     string
	LogConsole   bool
	LogSampleN   int
	Cache        CacheCfg
	Remote       RemoteCfg
	Catalog      CatalogCfg
	SessionTTL   time.Duration
	Invalidation InvalidationCfg
	MetricsOn    bool
	MetricsAddr  string
	MetricsPath  string

	// PopularityHalfLife is how fast selection counts fade.
	PopularityHalfLife time.Duration
}

// Load applies an optional .env file before reading the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	res := getint("CATALOG_H3_RES", 8)
	if res < 0 || res > 15 {
		res = 8
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),
		Cache: CacheCfg{
			Driver:       strings.ToLower(getenv("CACHE_DRIVER", "memory")),
			RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
			DSN:          getenv("CACHE_DSN", "boundaries.db"),
			ContainerKey: getenv("CACHE_CONTAINER_KEY", "melb_suburb_geojson_cache"),
			KeyPrefix:    getenv("CACHE_KEY_PREFIX", "melb_suburb_geojson_"),
			Version:      getenv("CACHE_VERSION", "v1"),
			OpTimeout:    getduration("CACHE_OP_TIMEOUT", 2*time.Second),
		},
		Remote: RemoteCfg{
			Driver:          strings.ToLower(getenv("REMOTE_DRIVER", "nominatim")),
			NominatimURL:    getenv("NOMINATIM_URL", "https://nominatim.openstreetmap.org/search"),
			OverpassURL:     getenv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
			OverpassArea:    getenv("OVERPASS_AREA", "Greater Melbourne"),
			QuerySuffix:     getenv("REMOTE_QUERY_SUFFIX", "Melbourne, Victoria, Australia"),
			Timeout:         getduration("REMOTE_TIMEOUT", 10*time.Second),
			UserAgent:       getenv("REMOTE_USER_AGENT", "suburb-boundary-cache/1.0"),
			BreakerFailures: getint("REMOTE_BREAKER_FAILURES", 5),
			BreakerCooldown: getduration("REMOTE_BREAKER_COOLDOWN", 30*time.Second),
		},
		Catalog: CatalogCfg{
			Path:            getenv("CATALOG_PATH", ""),
			BundlePath:      getenv("BUNDLE_PATH", ""),
			AggregateRegion: getenv("CATALOG_AGGREGATE_REGION", "Melbourne"),
			H3Res:           res,
		},
		SessionTTL: getduration("SESSION_TTL", 30*time.Minute),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "boundary-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "boundary-invalidator"),
		},
		MetricsOn:   getbool("METRICS_ENABLED", false),
		MetricsAddr: getenv("METRICS_ADDR", ":9090"),
		MetricsPath: getenv("METRICS_PATH", "/metrics"),

		PopularityHalfLife: getduration("POPULARITY_HALF_LIFE", 10*time.Minute),
	}
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
