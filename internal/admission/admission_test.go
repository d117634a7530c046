package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubfabric/hubd/internal/huberrors"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	sem := New(2)
	assert.Equal(t, 2, sem.Capacity())
	assert.Equal(t, 0, sem.InUse())

	release, err := sem.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, sem.InUse())

	release()
	assert.Equal(t, 0, sem.InUse())
}

func TestReleaseIsIdempotent(t *testing.T) {
	sem := New(1)
	release, err := sem.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	release()
	release()
	assert.Equal(t, 0, sem.InUse())
}

func TestAcquireTimesOutWhenSaturated(t *testing.T) {
	sem := New(1)
	release, err := sem.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer release()

	_, err = sem.Acquire(context.Background(), 20*time.Millisecond)
	require.Error(t, err)

	hubErr, ok := err.(*huberrors.HubError)
	require.True(t, ok)
	assert.Equal(t, huberrors.CodeOverloaded, hubErr.Code)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	sem := New(1)
	release, err := sem.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = sem.Acquire(ctx, time.Second)
	require.Error(t, err)
	hubErr, ok := err.(*huberrors.HubError)
	require.True(t, ok)
	assert.Equal(t, huberrors.CodeCancelled, hubErr.Code)
}

func TestBoundedConcurrency(t *testing.T) {
	sem := New(3)
	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := sem.Acquire(context.Background(), time.Second)
			if err != nil {
				return
			}
			defer release()

			mu.Lock()
			if sem.InUse() > maxObserved {
				maxObserved = sem.InUse()
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, maxObserved, 3)
}
