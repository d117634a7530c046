package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubfabric/hubd/internal/resolver"
)

func TestToTargetAll(t *testing.T) {
	req := invokeRequest{}
	req.Target.Kind = "All"
	target, err := req.toTarget()
	require.NoError(t, err)
	assert.Equal(t, resolver.All(), target)
}

func TestToTargetUser(t *testing.T) {
	req := invokeRequest{}
	req.Target.Kind = "User"
	req.Target.UserID = "u1"
	target, err := req.toTarget()
	require.NoError(t, err)
	assert.Equal(t, resolver.User("u1"), target)
}

func TestToTargetUsers(t *testing.T) {
	req := invokeRequest{}
	req.Target.Kind = "Users"
	req.Target.UserIDs = []string{"u1", "u2"}
	target, err := req.toTarget()
	require.NoError(t, err)
	assert.Equal(t, resolver.Users([]string{"u1", "u2"}), target)
}

func TestToTargetConnection(t *testing.T) {
	req := invokeRequest{}
	req.Target.Kind = "Connection"
	req.Target.ConnectionID = "c1"
	target, err := req.toTarget()
	require.NoError(t, err)
	assert.Equal(t, resolver.Connection("c1"), target)
}

func TestToTargetConnections(t *testing.T) {
	req := invokeRequest{}
	req.Target.Kind = "Connections"
	req.Target.ConnectionIDs = []string{"c1", "c2"}
	target, err := req.toTarget()
	require.NoError(t, err)
	assert.Equal(t, resolver.Connections([]string{"c1", "c2"}), target)
}

func TestToTargetUnrecognizedKind(t *testing.T) {
	req := invokeRequest{}
	req.Target.Kind = "Bogus"
	_, err := req.toTarget()
	assert.Error(t, err)
}
