package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hubfabric/hubd/internal/authmw"
	"github.com/hubfabric/hubd/internal/blob"
	"github.com/hubfabric/hubd/internal/cache"
	"github.com/hubfabric/hubd/internal/correlator"
	"github.com/hubfabric/hubd/internal/events"
	"github.com/hubfabric/hubd/internal/executor"
	"github.com/hubfabric/hubd/internal/registry"
	"github.com/hubfabric/hubd/internal/store"
)

// Config is the fully resolved, env-driven configuration for hubd.
type Config struct {
	Port           string
	AllowedOrigins []string

	Store      store.Config
	Registry   registry.Config
	Correlator correlator.Config
	Blob       blob.Config
	Executor   executor.Config
	Auth       authmw.Config
	Cache      cache.Config
	Events     events.Config
}

// loadConfig builds Config from the process environment, matching the
// external interface's documented option names and defaults.
func loadConfig() Config {
	regCfg := registry.DefaultConfig()
	if v := os.Getenv("STALE_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			regCfg.StaleAge = d
		}
	}
	regCfg.AutoPurgeOffline = getEnvBool("AUTO_PURGE_OFFLINE", regCfg.AutoPurgeOffline)
	regCfg.TrackUserAgent = getEnvBool("TRACK_USER_AGENT", regCfg.TrackUserAgent)
	regCfg.BroadcastConnectionEvents = getEnvBool("BROADCAST_CONNECTION_EVENTS", regCfg.BroadcastConnectionEvents)
	regCfg.ConnectionEventMethod = getEnv("CONNECTION_EVENT_METHOD", regCfg.ConnectionEventMethod)
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			regCfg.SweepInterval = d
		}
	}

	corrCfg := correlator.DefaultConfig()
	if v := os.Getenv("SEMAPHORE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			corrCfg.SemaphoreTimeout = d
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			corrCfg.RequestTimeout = d
		}
	}

	blobCfg := blob.DefaultConfig()
	if v := os.Getenv("BLOB_DIR"); v != "" {
		blobCfg.Dir = v
	}
	blobCfg.TempFolder = getEnv("TEMP_FOLDER", blobCfg.TempFolder)
	blobCfg.AutoDeleteTempFiles = getEnvBool("AUTO_DELETE_TEMP_FILES", blobCfg.AutoDeleteTempFiles)

	execCfg := executor.DefaultConfig()
	execCfg.TempFolder = blobCfg.TempFolder
	execCfg.MaxDirectDataSize = getEnvInt("MAX_DIRECT_DATA_SIZE", execCfg.MaxDirectDataSize)

	authCfg := authmw.DefaultConfig()
	authCfg.SecretKey = os.Getenv("JWT_SECRET")
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		authCfg.Issuer = v
	}

	var origins []string
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			origins = append(origins, strings.TrimSpace(o))
		}
	}

	return Config{
		Port:           getEnv("HUBD_PORT", "8080"),
		AllowedOrigins: origins,
		Store: store.Config{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "hubd"),
			Password:        getEnv("DB_PASSWORD", "hubd"),
			DBName:          getEnv("DB_NAME", "hubd"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 5 * time.Minute,
		},
		Registry:   regCfg,
		Correlator: corrCfg,
		Blob:       blobCfg,
		Executor:   execCfg,
		Auth:       authCfg,
		Cache: cache.Config{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
			Enabled:  getEnvBool("CACHE_ENABLED", false),
		},
		Events: events.Config{
			URL:      os.Getenv("NATS_URL"),
			User:     os.Getenv("NATS_USER"),
			Password: os.Getenv("NATS_PASSWORD"),
			Enabled:  getEnvBool("EVENTS_ENABLED", false),
		},
	}
}

// maxConcurrentRequests reads MaxConcurrentRequests (component H),
// kept separate from the Config struct because admission.New takes a
// plain int rather than a config struct (see internal/admission).
func maxConcurrentRequests() int {
	return getEnvInt("MAX_CONCURRENT_REQUESTS", 10)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true"
	}
	return def
}
