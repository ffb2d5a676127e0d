package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultCatalogURL = "https://api.github.com/repos/MEADecarb/st-gis/contents/data"

type KafkaCfg struct {
	Enabled           bool
	Brokers           []string
	EventsTopic       string
	InvalidationTopic string
	GroupID           string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	CatalogURL     string
	CatalogTTL     time.Duration
	CacheDriver    string
	RedisAddr      string
	HTTPTimeout    time.Duration
	MaxUploadBytes int64
	ExportDir      string
	ClusterRes     int
	Kafka          KafkaCfg
	Metrics        MetricsCfg
}

// LoadDotEnv loads KEY=VALUE files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func FromEnv() Config {
	// negative disables default clustering on /ingest
	res := getint("CLUSTER_RES", 7)
	switch {
	case res < 0:
		res = -1
	case res > 15:
		res = 7
	}

	driver := strings.ToLower(getenv("CATALOG_CACHE", "memory"))
	switch driver {
	case "memory", "redis", "none":
	default:
		driver = "memory"
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		CatalogURL:     getenv("CATALOG_URL", DefaultCatalogURL),
		CatalogTTL:     getduration("CATALOG_TTL", 5*time.Minute),
		CacheDriver:    driver,
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		HTTPTimeout:    getduration("HTTP_TIMEOUT", 0),
		MaxUploadBytes: int64(getint("MAX_UPLOAD_BYTES", 64<<20)),
		ExportDir:      getenv("EXPORT_DIR", ""),
		ClusterRes:     res,
		Kafka: KafkaCfg{
			Enabled:           getbool("KAFKA_ENABLED", false),
			Brokers:           getlist("KAFKA_BROKERS", []string{"localhost:9092"}),
			EventsTopic:       getenv("KAFKA_EVENTS_TOPIC", "geo-ingest-events"),
			InvalidationTopic: getenv("KAFKA_INVALIDATION_TOPIC", "geo-catalog-invalidation"),
			GroupID:           getenv("KAFKA_GROUP_ID", "geo-ingest"),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
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

// comma separated, blanks dropped
func getlist(k string, def []string) []string {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for p := range strings.SplitSeq(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
