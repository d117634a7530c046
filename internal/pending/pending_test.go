package pending

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubfabric/hubd/internal/envelope"
)

func TestRegisterAndComplete(t *testing.T) {
	table := New()
	slot, err := table.Register("req-1")
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	resp := envelope.Null()
	assert.True(t, table.Complete("req-1", resp))

	select {
	case got := <-slot.Wait():
		assert.Equal(t, envelope.KindNull, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("slot never delivered")
	}
	assert.Equal(t, 0, table.Len())
}

func TestRegisterCollisionRejected(t *testing.T) {
	table := New()
	_, err := table.Register("dup")
	require.NoError(t, err)

	_, err = table.Register("dup")
	assert.Error(t, err)
}

func TestCompleteAtMostOnce(t *testing.T) {
	table := New()
	_, err := table.Register("req-2")
	require.NoError(t, err)

	assert.True(t, table.Complete("req-2", envelope.Null()))
	assert.False(t, table.Complete("req-2", envelope.Null()))
}

func TestCompleteUnknownRequestID(t *testing.T) {
	table := New()
	assert.False(t, table.Complete("never-registered", envelope.Null()))
}

func TestRemoveAfterTimeout(t *testing.T) {
	table := New()
	_, err := table.Register("req-3")
	require.NoError(t, err)

	table.Remove("req-3")
	assert.Equal(t, 0, table.Len())

	// Complete after Remove should be a no-op, not a panic.
	assert.False(t, table.Complete("req-3", envelope.Null()))
}

func TestRemoveAfterCompleteIsSafe(t *testing.T) {
	table := New()
	_, err := table.Register("req-4")
	require.NoError(t, err)
	assert.True(t, table.Complete("req-4", envelope.Null()))

	assert.NotPanics(t, func() { table.Remove("req-4") })
}
