package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubfabric/hubd/internal/envelope"
)

// fakeStore is an in-memory stand-in for internal/store.Store, good
// enough to exercise the registry's reconciliation logic without a
// real Postgres connection.
type fakeStore struct {
	mu   sync.Mutex
	rows map[string]ConnectionRow // connID -> row
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]ConnectionRow)}
}

func (f *fakeStore) UpsertUser(ctx context.Context, userID string, now time.Time) error {
	return nil
}

func (f *fakeStore) StampDisconnect(ctx context.Context, userID string, now time.Time) error {
	return nil
}

func (f *fakeStore) DeleteConnection(ctx context.Context, connID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[connID]; ok {
		delete(f.rows, connID)
		return 1, nil
	}
	return 0, nil
}

func (f *fakeStore) InsertConnection(ctx context.Context, row ConnectionRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.ConnectionID] = row
	return nil
}

func (f *fakeStore) DeleteStaleForUser(ctx context.Context, userID string, horizon time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, row := range f.rows {
		if row.UserID == userID && row.OpenedAt.Before(horizon) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteStaleGlobal(ctx context.Context, horizon time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, row := range f.rows {
		if row.OpenedAt.Before(horizon) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ConnectionsOfUser(ctx context.Context, userID string, horizon time.Time) ([]ConnectionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ConnectionRow
	for _, row := range f.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStore) ConnectionsOfUsers(ctx context.Context, userIDs []string, horizon time.Time) ([]ConnectionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	var out []ConnectionRow
	for _, row := range f.rows {
		if want[row.UserID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStore) IsActiveConnection(ctx context.Context, connID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[connID]
	return ok && row.Active, nil
}

func (f *fakeStore) SnapshotUsers(ctx context.Context, horizon time.Time) (map[string][]ConnectionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]ConnectionRow)
	for _, row := range f.rows {
		out[row.UserID] = append(out[row.UserID], row)
	}
	return out, nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []envelope.ConnectionEventPayload
}

func (b *fakeBus) BroadcastConnectionEvent(p envelope.ConnectionEventPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, p)
}

func (b *fakeBus) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *fakeBus) last() envelope.ConnectionEventPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[len(b.events)-1]
}

func TestOnOpenCreatesConnectionAndBroadcasts(t *testing.T) {
	bus := &fakeBus{}
	reg := New(DefaultConfig(), newFakeStore(), bus)

	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c1", "agent/1"))
	assert.Equal(t, 1, reg.CountUsers())
	assert.Equal(t, 1, reg.CountConnections())
	require.Equal(t, 1, bus.len())
	assert.Equal(t, envelope.ConnectionOpened, bus.last().Kind)

	connected, err := reg.IsConnected(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, connected)
}

func TestOnOpenUnauthenticatedIsNoOp(t *testing.T) {
	bus := &fakeBus{}
	reg := New(DefaultConfig(), newFakeStore(), bus)

	require.NoError(t, reg.OnOpen(context.Background(), "", "c1", "agent/1"))
	assert.Equal(t, 0, reg.CountConnections())
	assert.Equal(t, 0, bus.len())
}

func TestOnOpenDuplicateConnIDReplaysCleanly(t *testing.T) {
	bus := &fakeBus{}
	reg := New(DefaultConfig(), newFakeStore(), bus)

	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c1", "agent/1"))
	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c1", "agent/2"))

	assert.Equal(t, 1, reg.CountConnections())
}

func TestOnCloseRemovesConnectionAndBroadcasts(t *testing.T) {
	bus := &fakeBus{}
	reg := New(DefaultConfig(), newFakeStore(), bus)

	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c1", "agent/1"))
	require.NoError(t, reg.OnClose(context.Background(), "u1", "c1"))

	assert.Equal(t, 0, reg.CountConnections())
	assert.Equal(t, 0, reg.CountUsers())
	require.Equal(t, 2, bus.len())
	assert.Equal(t, envelope.ConnectionClosed, bus.last().Kind)
}

func TestOnCloseUnauthenticatedNeverBroadcasts(t *testing.T) {
	bus := &fakeBus{}
	reg := New(DefaultConfig(), newFakeStore(), bus)
	require.NoError(t, reg.OnClose(context.Background(), "", "ghost"))
	assert.Equal(t, 0, bus.len())
}

func TestOnCloseIsIdempotent(t *testing.T) {
	bus := &fakeBus{}
	reg := New(DefaultConfig(), newFakeStore(), bus)

	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c1", ""))
	require.NoError(t, reg.OnClose(context.Background(), "u1", "c1"))
	require.NoError(t, reg.OnClose(context.Background(), "u1", "c1"))
}

func TestConnectionsOfMultipleForSameUser(t *testing.T) {
	reg := New(DefaultConfig(), newFakeStore(), &fakeBus{})
	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c1", ""))
	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c2", ""))

	ids, err := reg.ConnectionsOf(context.Background(), "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)
}

func TestIsActiveConnection(t *testing.T) {
	reg := New(DefaultConfig(), newFakeStore(), &fakeBus{})
	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c1", ""))

	active, err := reg.IsActiveConnection(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = reg.IsActiveConnection(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestBroadcastConnectionEventsDisabledConfigSuppressesEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BroadcastConnectionEvents = false
	bus := &fakeBus{}
	reg := New(cfg, newFakeStore(), bus)

	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c1", ""))
	require.NoError(t, reg.OnClose(context.Background(), "u1", "c1"))
	assert.Equal(t, 0, bus.len())
}

func TestSetBroadcasterWiresAfterConstruction(t *testing.T) {
	reg := New(DefaultConfig(), newFakeStore(), nil)
	bus := &fakeBus{}
	reg.SetBroadcaster(bus)

	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c1", ""))
	assert.Equal(t, 1, bus.len())
}

func TestStaleConnectionPurgedOnSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StaleAge = time.Millisecond
	reg := New(cfg, newFakeStore(), &fakeBus{})

	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c1", ""))
	time.Sleep(5 * time.Millisecond)

	ids, err := reg.ConnectionsOf(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSnapshotUsers(t *testing.T) {
	reg := New(DefaultConfig(), newFakeStore(), &fakeBus{})
	require.NoError(t, reg.OnOpen(context.Background(), "u1", "c1", "agent"))

	snaps, err := reg.SnapshotUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "u1", snaps[0].UserID)
	require.Len(t, snaps[0].Connections, 1)
	assert.Equal(t, "c1", snaps[0].Connections[0].ConnectionID)
}
