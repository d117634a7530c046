// Package resolver implements the targeting resolver (component F):
// turning a Target (All/User/Users/Connection/Connections) into a
// concrete set of connection IDs to address.
//
// Grounded on the subscriber-set idiom in the teacher's
// internal/websocket/notifier.go (Notifier.userSubscriptions, a
// userID -> set-of-clientIDs index) - this package keeps the same
// "collapse a logical target into a connection-ID set" shape but reads
// the set from the registry's durable index instead of an in-memory
// subscription map, since here the index itself is the connection
// registry, not a side subscription table.
package resolver

import (
	"context"

	"github.com/hubfabric/hubd/internal/huberrors"
)

// Kind enumerates the logical target shapes named in the targeting
// table.
type Kind int

const (
	KindAll Kind = iota
	KindUser
	KindUsers
	KindConnection
	KindConnections
)

// Target names who an Invoke call is addressed to.
type Target struct {
	Kind          Kind
	UserID        string
	UserIDs       []string
	ConnectionID  string
	ConnectionIDs []string
}

// All addresses every connected client.
func All() Target { return Target{Kind: KindAll} }

// User addresses every connection belonging to one user.
func User(userID string) Target { return Target{Kind: KindUser, UserID: userID} }

// Users addresses every connection belonging to any of a set of users.
func Users(userIDs []string) Target { return Target{Kind: KindUsers, UserIDs: userIDs} }

// Connection addresses one specific connection.
func Connection(connID string) Target { return Target{Kind: KindConnection, ConnectionID: connID} }

// Connections addresses a specific set of connections.
func Connections(connIDs []string) Target { return Target{Kind: KindConnections, ConnectionIDs: connIDs} }

// ConnectionSource is the registry seam the resolver reads through.
// Satisfied by internal/registry.Registry.
type ConnectionSource interface {
	ConnectionsOf(ctx context.Context, userID string) ([]string, error)
	ConnectionsOfUsers(ctx context.Context, userIDs []string) ([]string, error)
	IsActiveConnection(ctx context.Context, connID string) (bool, error)
}

// HubSource is the transport seam backing the All target.
type HubSource interface {
	ResolveAll() []string
}

// Resolver turns a Target into a connection-ID set.
type Resolver struct {
	registry ConnectionSource
	hub      HubSource
}

// New constructs a Resolver.
func New(registry ConnectionSource, hub HubSource) *Resolver {
	return &Resolver{registry: registry, hub: hub}
}

// Resolve collapses t into a non-empty slice of connection IDs, or
// returns huberrors.NoTarget when the target names nobody reachable.
// For User and Users targets, stale connections are excluded before
// this function ever sees them: the registry sweeps staleness on every
// ConnectionsOf/ConnectionsOfUsers call. Connection is checked with
// IsActiveConnection, which does not sweep; Connections and All are
// passed through without any registry check.
func (r *Resolver) Resolve(ctx context.Context, t Target) ([]string, error) {
	switch t.Kind {
	case KindAll:
		ids := r.hub.ResolveAll()
		if len(ids) == 0 {
			return nil, huberrors.NoTarget("no connections are currently open")
		}
		return ids, nil

	case KindUser:
		ids, err := r.registry.ConnectionsOf(ctx, t.UserID)
		if err != nil {
			// Registry.ConnectionsOf already returns a *huberrors.HubError
			// (StoreFailure), so the error kind is passed through unchanged
			// rather than wrapped a second time.
			return nil, err
		}
		if len(ids) == 0 {
			return nil, huberrors.NoTarget("user " + t.UserID + " has no open connections")
		}
		return ids, nil

	case KindUsers:
		ids, err := r.registry.ConnectionsOfUsers(ctx, t.UserIDs)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, huberrors.NoTarget("none of the requested users have open connections")
		}
		return ids, nil

	case KindConnection:
		active, err := r.registry.IsActiveConnection(ctx, t.ConnectionID)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, huberrors.NoTarget("connection " + t.ConnectionID + " is not open")
		}
		return []string{t.ConnectionID}, nil

	case KindConnections:
		if len(t.ConnectionIDs) == 0 {
			return nil, huberrors.NoTarget("no connections were requested")
		}
		return t.ConnectionIDs, nil

	default:
		return nil, huberrors.NoTarget("unrecognized target kind")
	}
}
