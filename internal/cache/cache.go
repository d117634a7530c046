// Package cache provides an optional Redis mirror (component O): a
// read-through cache for connection snapshots and a gauge mirror for
// admission-pool occupancy, used only to shed read load across multiple
// hub instances sharing one Postgres registry. Redis never makes the
// admission decision itself and never backs pending-request lookups -
// correctness of both stays local and unclustered; Redis is a
// performance mirror, not a source of truth.
//
// Adapted from the teacher's internal/cache/cache.go: same connection
// pooling, retry, and disabled-mode fallback shape (a nil client turns
// every method into a safe no-op), narrowed from a general-purpose
// cache API down to the handful of operations this system actually
// needs.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hubfabric/hubd/internal/registry"
)

// Config controls the optional Redis mirror.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Cache is the optional Redis-backed mirror. A disabled or unconfigured
// Cache has client == nil and every method becomes a no-op.
type Cache struct {
	client *redis.Client
}

// New constructs a Cache. With cfg.Enabled false, it returns a disabled
// instance without dialing Redis.
func New(cfg Config) (*Cache, error) {
	if !cfg.Enabled {
		return &Cache{client: nil}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: pinging redis: %w", err)
	}
	return &Cache{client: client}, nil
}

// Close releases the underlying connection pool, if any.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Enabled reports whether this Cache is backed by a live Redis client.
func (c *Cache) Enabled() bool {
	return c.client != nil
}

const snapshotKey = "hubd:snapshot:users"
const snapshotTTL = 10 * time.Second

// PutSnapshot mirrors a freshly computed user snapshot with a short
// TTL for GetSnapshot readers. cmd/hubd's /stats handler and the
// targeting resolver do not read it. A no-op when disabled.
func (c *Cache) PutSnapshot(ctx context.Context, snapshot []registry.UserSnapshot) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("cache: marshal snapshot: %w", err)
	}
	return c.client.Set(ctx, snapshotKey, data, snapshotTTL).Err()
}

// GetSnapshot returns the last mirrored snapshot, if any and not
// expired. A miss (including when disabled) returns ok == false rather
// than an error, since a cache miss is an expected outcome, not a
// failure - callers fall back to the registry.
func (c *Cache) GetSnapshot(ctx context.Context) (snapshot []registry.UserSnapshot, ok bool) {
	if !c.Enabled() {
		return nil, false
	}
	val, err := c.client.Get(ctx, snapshotKey).Result()
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, false
	}
	return snapshot, true
}

const admissionGaugeKeyPrefix = "hubd:admission:inuse:"

// PutAdmissionGauge mirrors one hub instance's current admission
// occupancy under instanceID, for an aggregate /stats view across a
// fleet. Best-effort: errors are swallowed by the caller, same as the
// events publisher's posture.
func (c *Cache) PutAdmissionGauge(ctx context.Context, instanceID string, inUse, capacity int) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Set(ctx, admissionGaugeKeyPrefix+instanceID, fmt.Sprintf("%d/%d", inUse, capacity), 30*time.Second).Err()
}
