// Package registry implements the connection registry (component B): a
// durable record of (UserID -> {ConnectionID...}) pairs with lifecycle
// hooks that tolerate missed disconnects, duplicate registrations, and
// crashes, plus a staleness sweeper.
//
// Adapted from the teacher's internal/tracker.ConnectionTracker (dual
// in-memory-plus-Postgres tracking, ticker-driven staleness sweep) and
// internal/websocket/agent_hub.go (duplicate-registration replay guard,
// DB status writes on register/unregister). Generics over user/store
// types are expressed as two narrow interfaces per the design notes,
// not a generic bag of types.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/hubfabric/hubd/internal/envelope"
	"github.com/hubfabric/hubd/internal/huberrors"
	"github.com/hubfabric/hubd/internal/logger"
	"github.com/hubfabric/hubd/internal/store"
)

// UserLookup is the narrow durable-store seam over the ConnectedUsers
// table: no deep inheritance, just the two writes the registry issues
// against a user row. internal/store.Store satisfies it against
// Postgres.
type UserLookup interface {
	UpsertUser(ctx context.Context, userID string, now time.Time) error
	StampDisconnect(ctx context.Context, userID string, now time.Time) error
}

// ConnectionStore is the narrow durable-store seam over the
// Connections table. internal/store.Store satisfies it against
// Postgres.
type ConnectionStore interface {
	DeleteConnection(ctx context.Context, connID string) (int64, error)
	InsertConnection(ctx context.Context, row ConnectionRow) error
	DeleteStaleForUser(ctx context.Context, userID string, horizon time.Time) (int64, error)
	DeleteStaleGlobal(ctx context.Context, horizon time.Time) (int64, error)
	ConnectionsOfUser(ctx context.Context, userID string, horizon time.Time) ([]ConnectionRow, error)
	ConnectionsOfUsers(ctx context.Context, userIDs []string, horizon time.Time) ([]ConnectionRow, error)
	IsActiveConnection(ctx context.Context, connID string) (bool, error)
	SnapshotUsers(ctx context.Context, horizon time.Time) (map[string][]ConnectionRow, error)
}

// Store composes the two narrow interfaces above into the single seam
// Registry actually holds, since every call site so far needs both
// tables; callers that only touch one table (there are none yet) can
// still depend on UserLookup or ConnectionStore alone.
type Store interface {
	UserLookup
	ConnectionStore
}

// ConnectionRow is the durable shape of one connection, aliased to the
// store package's row type so internal/store.Store satisfies
// ConnectionStore without a conversion layer at every call site.
type ConnectionRow = store.ConnectionRow

// EventBroadcaster is the narrow seam used to publish connection
// lifecycle events, satisfied by internal/transport.Adapter for the
// in-process fan-out and optionally by internal/events.Publisher for
// the best-effort external fan-out.
type EventBroadcaster interface {
	BroadcastConnectionEvent(p envelope.ConnectionEventPayload)
}

// Config controls registry behavior; defaults match the external spec.
type Config struct {
	StaleAge                  time.Duration
	AutoPurgeOffline          bool
	TrackUserAgent            bool
	BroadcastConnectionEvents bool
	ConnectionEventMethod     string
	SweepInterval             time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		StaleAge:                  5 * time.Minute,
		AutoPurgeOffline:          true,
		TrackUserAgent:            true,
		BroadcastConnectionEvents: true,
		ConnectionEventMethod:     "ConnectionStateChanged",
		SweepInterval:             30 * time.Second,
	}
}

// Registry is the connection registry. It keeps an in-memory index for
// fast reads, mirrored from (and reconciled against) the durable store,
// exactly the dual-tracking shape of the teacher's ConnectionTracker.
type Registry struct {
	cfg   Config
	store Store
	bus   EventBroadcaster

	mu          sync.RWMutex
	byUser      map[string]map[string]ConnectionRow // userID -> connID -> row
	stopSweeper chan struct{}
}

// New constructs a Registry. Call Start to begin the staleness sweeper.
// bus may be nil if the caller will wire one later via SetBroadcaster -
// needed because the transport adapter's constructor takes the registry
// as its Lifecycle, so the two cannot both be constructed fully formed
// in one step.
func New(cfg Config, store Store, bus EventBroadcaster) *Registry {
	return &Registry{
		cfg:         cfg,
		store:       store,
		bus:         bus,
		byUser:      make(map[string]map[string]ConnectionRow),
		stopSweeper: make(chan struct{}),
	}
}

// SetBroadcaster wires the event broadcaster after construction, for
// the registry<->transport wiring order in cmd/hubd.
func (r *Registry) SetBroadcaster(bus EventBroadcaster) {
	r.bus = bus
}

// Start runs the staleness sweeper on a ticker, mirroring the teacher's
// checkStaleConnections / checkConnections loops.
func (r *Registry) Start() {
	go func() {
		ticker := time.NewTicker(r.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweepAll(context.Background())
			case <-r.stopSweeper:
				return
			}
		}
	}()
}

// Stop halts the staleness sweeper.
func (r *Registry) Stop() {
	close(r.stopSweeper)
}

func (r *Registry) horizon() time.Time {
	return time.Now().Add(-r.cfg.StaleAge)
}

// OnOpen implements the open procedure (spec steps 1-7). Idempotent
// under replays of the same connID.
func (r *Registry) OnOpen(ctx context.Context, userID, connID, userAgent string) error {
	if userID == "" {
		// unauthenticated open: no record created, returns silently.
		return nil
	}
	now := time.Now()

	// 1. sweep stale rows for this user.
	if _, err := r.store.DeleteStaleForUser(ctx, userID, r.horizon()); err != nil {
		return huberrors.StoreFailure(err)
	}

	// 2. duplicate-replay guard: delete any existing row with this connID.
	if _, err := r.store.DeleteConnection(ctx, connID); err != nil {
		return huberrors.StoreFailure(err)
	}

	// 3. upsert user record.
	if err := r.store.UpsertUser(ctx, userID, now); err != nil {
		return huberrors.StoreFailure(err)
	}

	// 4. insert new connection row.
	agent := userAgent
	if !r.cfg.TrackUserAgent {
		agent = ""
	}
	row := ConnectionRow{ConnectionID: connID, UserID: userID, UserAgent: agent, Active: true, OpenedAt: now}
	if err := r.store.InsertConnection(ctx, row); err != nil {
		return huberrors.StoreFailure(err)
	}

	// 5. optional global sweep.
	if r.cfg.AutoPurgeOffline {
		if _, err := r.store.DeleteStaleGlobal(ctx, r.horizon()); err != nil {
			logger.Registry().Warn().Err(err).Msg("global stale purge failed, continuing")
		}
	}

	// 6. commit is implicit per-statement above (store has no cross-stmt
	// transaction requirement here); reconcile the in-memory index.
	r.mu.Lock()
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]ConnectionRow)
	}
	r.byUser[userID][connID] = row
	r.mu.Unlock()

	// 7. broadcast Opened event.
	if r.cfg.BroadcastConnectionEvents && r.bus != nil {
		r.bus.BroadcastConnectionEvent(envelope.ConnectionEventPayload{
			UserID: userID, ConnectionID: connID, UserAgent: agent,
			Method: r.cfg.ConnectionEventMethod, Kind: envelope.ConnectionOpened, At: now,
		})
	}
	return nil
}

// OnClose implements the close procedure (spec steps 1-4). Idempotent
// under redundant close; broadcast MUST NOT fire for an unauthenticated
// close.
func (r *Registry) OnClose(ctx context.Context, userID, connID string) error {
	now := time.Now()

	if userID != "" {
		if err := r.store.StampDisconnect(ctx, userID, now); err != nil {
			return huberrors.StoreFailure(err)
		}
	}

	n, err := r.store.DeleteConnection(ctx, connID)
	if err != nil {
		return huberrors.StoreFailure(err)
	}
	if n == 0 {
		// verify-and-retry-once per spec step 3: the row may reappear
		// because of a stale identity-map cache upstream of the store.
		n2, err2 := r.store.DeleteConnection(ctx, connID)
		if err2 != nil {
			return huberrors.StoreFailure(err2)
		}
		if n2 > 0 {
			logger.Registry().Warn().Str("connID", connID).Msg("connection row reappeared after delete, removed on retry")
		}
	}

	var userAgent string
	r.mu.Lock()
	if conns, ok := r.byUser[userID]; ok {
		if row, ok := conns[connID]; ok {
			userAgent = row.UserAgent
		}
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, userID)
		}
	}
	r.mu.Unlock()

	if userID == "" {
		return nil
	}
	if r.cfg.BroadcastConnectionEvents && r.bus != nil {
		r.bus.BroadcastConnectionEvent(envelope.ConnectionEventPayload{
			UserID: userID, ConnectionID: connID, UserAgent: userAgent,
			Method: r.cfg.ConnectionEventMethod, Kind: envelope.ConnectionClosed, At: now,
		})
	}
	return nil
}

// IsConnected reports whether userID has at least one non-stale connection.
func (r *Registry) IsConnected(ctx context.Context, userID string) (bool, error) {
	conns, err := r.ConnectionsOf(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(conns) > 0, nil
}

// ConnectionsOf returns the non-stale connection IDs for userID, sweeping
// stale rows first (per the targeting resolver's requirement in ¶F).
func (r *Registry) ConnectionsOf(ctx context.Context, userID string) ([]string, error) {
	if _, err := r.store.DeleteStaleForUser(ctx, userID, r.horizon()); err != nil {
		return nil, huberrors.StoreFailure(err)
	}
	rows, err := r.store.ConnectionsOfUser(ctx, userID, r.horizon())
	if err != nil {
		return nil, huberrors.StoreFailure(err)
	}
	r.reconcileUser(userID, rows)
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ConnectionID)
	}
	return ids, nil
}

// ConnectionsOfUsers returns the union of non-stale connection IDs for a
// set of users, sweeping each user's stale rows first.
func (r *Registry) ConnectionsOfUsers(ctx context.Context, userIDs []string) ([]string, error) {
	for _, uid := range userIDs {
		if _, err := r.store.DeleteStaleForUser(ctx, uid, r.horizon()); err != nil {
			return nil, huberrors.StoreFailure(err)
		}
	}
	rows, err := r.store.ConnectionsOfUsers(ctx, userIDs, r.horizon())
	if err != nil {
		return nil, huberrors.StoreFailure(err)
	}
	byUser := make(map[string][]ConnectionRow)
	for _, row := range rows {
		byUser[row.UserID] = append(byUser[row.UserID], row)
	}
	for uid, rs := range byUser {
		r.reconcileUser(uid, rs)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ConnectionID)
	}
	return ids, nil
}

// IsActiveConnection confirms connID is active, for the Connection(id)
// target (no staleness sweep per the resolution table).
func (r *Registry) IsActiveConnection(ctx context.Context, connID string) (bool, error) {
	active, err := r.store.IsActiveConnection(ctx, connID)
	if err != nil {
		return false, huberrors.StoreFailure(err)
	}
	return active, nil
}

// CountUsers returns the number of distinct users with a live connection.
func (r *Registry) CountUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// CountConnections returns the total number of live connections.
func (r *Registry) CountConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, conns := range r.byUser {
		n += len(conns)
	}
	return n
}

// UserSnapshot is one entry of SnapshotUsers' result.
type UserSnapshot struct {
	UserID      string
	Connections []ConnectionSnapshot
}

// ConnectionSnapshot is one connection entry within a UserSnapshot.
type ConnectionSnapshot struct {
	ConnectionID string
	UserAgent    string
	OpenedAt     time.Time
}

// SnapshotUsers returns every user with at least one non-stale connection.
func (r *Registry) SnapshotUsers(ctx context.Context) ([]UserSnapshot, error) {
	byUser, err := r.store.SnapshotUsers(ctx, r.horizon())
	if err != nil {
		return nil, huberrors.StoreFailure(err)
	}
	out := make([]UserSnapshot, 0, len(byUser))
	for uid, rows := range byUser {
		r.reconcileUser(uid, rows)
		snap := UserSnapshot{UserID: uid}
		for _, row := range rows {
			snap.Connections = append(snap.Connections, ConnectionSnapshot{
				ConnectionID: row.ConnectionID, UserAgent: row.UserAgent, OpenedAt: row.OpenedAt,
			})
		}
		out = append(out, snap)
	}
	return out, nil
}

func (r *Registry) reconcileUser(userID string, rows []ConnectionRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(rows) == 0 {
		delete(r.byUser, userID)
		return
	}
	m := make(map[string]ConnectionRow, len(rows))
	for _, row := range rows {
		m[row.ConnectionID] = row
	}
	r.byUser[userID] = m
}

// sweepAll is the periodic global staleness pass (testable property 3).
func (r *Registry) sweepAll(ctx context.Context) {
	n, err := r.store.DeleteStaleGlobal(ctx, r.horizon())
	if err != nil {
		logger.Registry().Warn().Err(err).Msg("periodic stale sweep failed")
		return
	}
	if n > 0 {
		logger.Registry().Info().Int64("removed", n).Msg("periodic stale sweep removed connections")
	}
	// Re-snapshot to reconcile the in-memory index after a bulk delete.
	if _, err := r.SnapshotUsers(ctx); err != nil {
		logger.Registry().Warn().Err(err).Msg("post-sweep snapshot reconcile failed")
	}
}
