// Package admission implements the bounded-concurrency admission gate
// (component H): a counting semaphore with a bounded wait for a permit
// and a mandatory, scope-guaranteed release.
//
// Grounded on the teacher's channel/goroutine coordination idiom - the
// pack never reaches for golang.org/x/sync anywhere, so a buffered
// channel used as a counting semaphore is the idiomatic choice here,
// not an adopted dependency.
package admission

import (
	"context"
	"time"

	"github.com/hubfabric/hubd/internal/huberrors"
)

// Semaphore is a counting semaphore bounding concurrent in-flight calls.
type Semaphore struct {
	permits chan struct{}
}

// New constructs a Semaphore with the given number of permits.
func New(maxConcurrent int) *Semaphore {
	return &Semaphore{permits: make(chan struct{}, maxConcurrent)}
}

// Acquire waits up to timeout for a free permit. On success it returns
// a release func that MUST be called exactly once (callers should
// defer it immediately); on expiry it returns huberrors.Overloaded().
func (s *Semaphore) Acquire(ctx context.Context, timeout time.Duration) (release func(), err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.permits <- struct{}{}:
		released := false
		return func() {
			if released {
				return
			}
			released = true
			<-s.permits
		}, nil
	case <-timer.C:
		return nil, huberrors.Overloaded()
	case <-ctx.Done():
		return nil, huberrors.Cancelled()
	}
}

// InUse reports the number of permits currently held, for /stats.
func (s *Semaphore) InUse() int {
	return len(s.permits)
}

// Capacity reports the configured number of permits.
func (s *Semaphore) Capacity() int {
	return cap(s.permits)
}
