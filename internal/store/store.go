// Package store provides the durable Postgres-backed adapter for the
// connection registry (component N), implementing the two narrow
// interfaces registry.ConnectionStore and registry.UserLookup named in
// the design notes instead of one wide repository type.
//
// Adapted from the teacher's internal/db/database.go: same
// regex-validated config fields, same connection-pool tuning, same
// database/sql + lib/pq foundation - trimmed to the two tables this
// system owns (ConnectedUsers, Connections) instead of the teacher's
// 82+ table product schema.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/hubfabric/hubd/internal/logger"
)

var (
	hostPattern   = regexp.MustCompile(`^[a-zA-Z0-9.\-_]+$`)
	identPattern  = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	sslModeValues = map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
)

// Config holds the Postgres connection parameters.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) validate() error {
	if !hostPattern.MatchString(c.Host) {
		return fmt.Errorf("invalid host: %q", c.Host)
	}
	if _, err := fmt.Sscanf(c.Port, "%d", new(int)); err != nil {
		return fmt.Errorf("invalid port: %q", c.Port)
	}
	if !identPattern.MatchString(c.User) {
		return fmt.Errorf("invalid user: %q", c.User)
	}
	if !identPattern.MatchString(c.DBName) {
		return fmt.Errorf("invalid dbname: %q", c.DBName)
	}
	if c.SSLMode != "" && !sslModeValues[c.SSLMode] {
		return fmt.Errorf("invalid sslmode: %q", c.SSLMode)
	}
	return nil
}

// Store wraps a validated Postgres connection pool and owns the schema
// for ConnectedUsers and Connections.
type Store struct {
	db *sql.DB
}

// New opens and validates a Postgres connection pool, applying the same
// pool tuning discipline the teacher uses for its larger schema (sane
// defaults if the caller leaves the pool fields zero).
func New(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("store: invalid config: %w", err)
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	maxLifetime := cfg.ConnMaxLifetime
	if maxLifetime == 0 {
		maxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying pool, for migration bootstrap and admin use.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the ConnectedUsers/Connections tables if absent.
// Called once on boot by cmd/hubd, mirroring the teacher's practice of
// asserting its schema exists rather than shipping separate migration
// tooling for a two-table core.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS connected_users (
	user_id          TEXT PRIMARY KEY,
	last_connect     TIMESTAMPTZ,
	last_disconnect  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS connections (
	connection_id TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL REFERENCES connected_users(user_id) ON DELETE CASCADE,
	user_agent    TEXT,
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	opened_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_connections_user_id ON connections(user_id);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		logger.Registry().Error().Err(err).Msg("failed to ensure schema")
		return err
	}
	return nil
}
