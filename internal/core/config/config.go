package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type KafkaCfg struct {
	Enabled      bool
	Brokers      []string
	ControlTopic string
	NotifyTopic  string
	GroupID      string
}

type Config struct {
	Addr                 string
	LogLevel             string
	OriginURL            string
	CacheVersion         string
	CachePrefix          string
	OfflineCache         string
	ManifestPath         string
	ManifestWatch        bool
	StoreDriver          string
	RedisAddr            string
	RedisPrefix          string
	RedisPoolSize        int
	RedisDialTimeout     time.Duration
	RedisReadTimeout     time.Duration
	RedisWriteTimeout    time.Duration
	SQLitePath           string
	EntryCodec           string
	FetchTimeout         time.Duration
	FetchMaxBody         int64
	PrecacheWorkers      int
	CacheOpTimeout       time.Duration
	StaticManifestSuffix bool
	Kafka                KafkaCfg
}

// CacheName is the primary namespace for the current generation.
func (c Config) CacheName() string {
	return c.CachePrefix + c.CacheVersion
}

func FromEnv() Config {
	workers := getint("PRECACHE_WORKERS", 1)
	if workers < 1 {
		workers = 1
	}

	return Config{
		Addr:                 getenv("ADDR", ":8090"),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		OriginURL:            getenv("ORIGIN_URL", "http://localhost:8080"),
		CacheVersion:         getenv("CACHE_VERSION", "v1"),
		CachePrefix:          getenv("CACHE_PREFIX", "live2d-cache-"),
		OfflineCache:         os.Getenv("OFFLINE_CACHE"),
		ManifestPath:         os.Getenv("ASSET_MANIFEST"),
		ManifestWatch:        getbool("ASSET_MANIFEST_WATCH", true),
		StoreDriver:          strings.ToLower(getenv("STORE_DRIVER", "memory")),
		RedisAddr:            getenv("REDIS_ADDR", "localhost:6379"),
		RedisPrefix:          getenv("REDIS_PREFIX", "assetcache"),
		RedisPoolSize:        getint("REDIS_POOL_SIZE", 32),
		RedisDialTimeout:     getduration("REDIS_DIAL_TIMEOUT", 2*time.Second),
		RedisReadTimeout:     getduration("REDIS_READ_TIMEOUT", 2*time.Second),
		RedisWriteTimeout:    getduration("REDIS_WRITE_TIMEOUT", 2*time.Second),
		SQLitePath:           getenv("SQLITE_PATH", "assetcache.db"),
		EntryCodec:           strings.ToLower(getenv("ENTRY_CODEC", "msgpack")),
		FetchTimeout:         getduration("FETCH_TIMEOUT", 30*time.Second),
		FetchMaxBody:         getint64("FETCH_MAX_BODY", 64<<20),
		PrecacheWorkers:      workers,
		CacheOpTimeout:       getduration("CACHE_OP_TIMEOUT", 2*time.Second),
		StaticManifestSuffix: getbool("STATIC_MANIFEST_SUFFIX", false),
		Kafka: KafkaCfg{
			Enabled:      getbool("CONTROL_KAFKA_ENABLED", false),
			Brokers:      splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
			ControlTopic: getenv("KAFKA_CONTROL_TOPIC", "assetcache-control"),
			NotifyTopic:  os.Getenv("KAFKA_NOTIFY_TOPIC"),
			GroupID:      getenv("KAFKA_GROUP_ID", "assetcache-controller"),
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

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
