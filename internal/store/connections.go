package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// ConnectionRow mirrors the Connections table, exported so callers above
// store (the registry) never need a second copy of this shape.
type ConnectionRow struct {
	ConnectionID string
	UserID       string
	UserAgent    string
	Active       bool
	OpenedAt     time.Time
}

// UpsertUser creates the user row if absent and stamps LastConnectAt.
func (s *Store) UpsertUser(ctx context.Context, userID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connected_users (user_id, last_connect)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET last_connect = EXCLUDED.last_connect
	`, userID, now)
	return err
}

// StampDisconnect sets LastDisconnectAt on a user row if it exists.
func (s *Store) StampDisconnect(ctx context.Context, userID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE connected_users SET last_disconnect = $2 WHERE user_id = $1
	`, userID, now)
	return err
}

// DeleteConnection removes a connection row by its ID. Returns the
// number of rows actually deleted so the caller can verify.
func (s *Store) DeleteConnection(ctx context.Context, connID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE connection_id = $1`, connID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertConnection inserts a new connection row.
func (s *Store) InsertConnection(ctx context.Context, row ConnectionRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (connection_id, user_id, user_agent, active, opened_at)
		VALUES ($1, $2, $3, $4, $5)
	`, row.ConnectionID, row.UserID, row.UserAgent, row.Active, row.OpenedAt)
	return err
}

// DeleteStaleForUser removes rows for userID that are inactive or whose
// OpenedAt is older than the staleness horizon. Returns count removed.
func (s *Store) DeleteStaleForUser(ctx context.Context, userID string, horizon time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM connections WHERE user_id = $1 AND (active = FALSE OR opened_at < $2)
	`, userID, horizon)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteStaleGlobal removes inactive or expired rows across all users,
// used by AutoPurgeOffline.
func (s *Store) DeleteStaleGlobal(ctx context.Context, horizon time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM connections WHERE active = FALSE OR opened_at < $1
	`, horizon)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ConnectionsOfUser returns non-stale connections for one user.
func (s *Store) ConnectionsOfUser(ctx context.Context, userID string, horizon time.Time) ([]ConnectionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT connection_id, user_id, user_agent, active, opened_at
		FROM connections WHERE user_id = $1 AND active = TRUE AND opened_at >= $2
	`, userID, horizon)
	if err != nil {
		return nil, err
	}
	return scanConnectionRows(rows)
}

// ConnectionsOfUsers returns non-stale connections for a set of users.
func (s *Store) ConnectionsOfUsers(ctx context.Context, userIDs []string, horizon time.Time) ([]ConnectionRow, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT connection_id, user_id, user_agent, active, opened_at
		FROM connections WHERE user_id = ANY($1) AND active = TRUE AND opened_at >= $2
	`, pq.Array(userIDs), horizon)
	if err != nil {
		return nil, err
	}
	return scanConnectionRows(rows)
}

// IsActiveConnection reports whether connID exists and is active.
func (s *Store) IsActiveConnection(ctx context.Context, connID string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `SELECT active FROM connections WHERE connection_id = $1`, connID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return active, nil
}

// SnapshotUsers returns every user with non-stale connections.
func (s *Store) SnapshotUsers(ctx context.Context, horizon time.Time) (map[string][]ConnectionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT connection_id, user_id, user_agent, active, opened_at
		FROM connections WHERE active = TRUE AND opened_at >= $1
	`, horizon)
	if err != nil {
		return nil, err
	}
	conns, err := scanConnectionRows(rows)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string][]ConnectionRow)
	for _, c := range conns {
		byUser[c.UserID] = append(byUser[c.UserID], c)
	}
	return byUser, nil
}

func scanConnectionRows(rows *sql.Rows) ([]ConnectionRow, error) {
	defer rows.Close()
	var out []ConnectionRow
	for rows.Next() {
		var row ConnectionRow
		var userAgent sql.NullString
		if err := rows.Scan(&row.ConnectionID, &row.UserID, &userAgent, &row.Active, &row.OpenedAt); err != nil {
			return nil, err
		}
		row.UserAgent = userAgent.String
		out = append(out, row)
	}
	return out, rows.Err()
}
