// Package correlator implements the request correlator (component E):
// server-initiated RPC over the fire-and-forget frame transport, built
// on the admission gate (H), the targeting resolver (F), and the
// pending-request table (D).
//
// Grounded on the teacher's agent_hub.go SendCommandToAgent (the same
// acquire-resolve-register-send-await-release shape, there specialized
// to one agent connection) generalized here to an arbitrary target set,
// per the design note that a target resolving to multiple connections
// answers with whichever reply arrives first.
package correlator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hubfabric/hubd/internal/admission"
	"github.com/hubfabric/hubd/internal/envelope"
	"github.com/hubfabric/hubd/internal/huberrors"
	"github.com/hubfabric/hubd/internal/logger"
	"github.com/hubfabric/hubd/internal/pending"
	"github.com/hubfabric/hubd/internal/resolver"
)

// Sender is the transport seam used to emit Call frames, satisfied by
// internal/transport.Adapter.
type Sender interface {
	SendFrame(connID string, frame envelope.Frame) bool
}

// Config controls correlator timeouts, matching the documented defaults.
type Config struct {
	SemaphoreTimeout time.Duration
	RequestTimeout   time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{SemaphoreTimeout: 5 * time.Second, RequestTimeout: 300 * time.Second}
}

// Correlator implements Invoke.
type Correlator struct {
	cfg      Config
	sem      *admission.Semaphore
	resolver *resolver.Resolver
	sender   Sender
	pending  *pending.Table
}

// New constructs a Correlator. sem should be sized MaxConcurrentRequests
// (default 10, see internal/admission.New).
func New(cfg Config, sem *admission.Semaphore, res *resolver.Resolver, sender Sender, pendingTable *pending.Table) *Correlator {
	return &Correlator{cfg: cfg, sem: sem, resolver: res, sender: sender, pending: pendingTable}
}

// OnReply is wired as the transport's ReplyHandler: it completes the
// pending slot for an inbound reply, if one is still waiting.
func (c *Correlator) OnReply(requestID string, resp envelope.Response) {
	if !c.pending.Complete(requestID, resp) {
		logger.Correlator().Warn().Str("requestID", requestID).Msg("reply arrived for unknown or already-completed request, discarded")
	}
}

// Invoke runs the full correlator procedure (spec §4.3 steps 1-7) and
// returns the first reply received from the resolved target set.
func (c *Correlator) Invoke(ctx context.Context, target resolver.Target, method string, param any) (envelope.Response, error) {
	// 1. admission.
	release, err := c.sem.Acquire(ctx, c.cfg.SemaphoreTimeout)
	if err != nil {
		return envelope.Response{}, err
	}
	defer release()

	// 2. target resolution (includes the staleness sweep for per-user
	// targets, performed inside the resolver/registry).
	connIDs, err := c.resolver.Resolve(ctx, target)
	if err != nil {
		return envelope.Response{}, err
	}

	// 3. requestID + pending slot.
	requestID := uuid.NewString()
	slot, err := c.pending.Register(requestID)
	if err != nil {
		// requestID collision is a correlator bug, not a caller error.
		return envelope.Response{}, fmt.Errorf("correlator: %w", err)
	}
	// 7. guaranteed cleanup on every exit path.
	defer c.pending.Remove(requestID)

	// 4. emit to every resolved connection; partial-send failures are
	// logged but never cancel the call.
	paramJSON, err := marshalParam(param)
	if err != nil {
		return envelope.Response{}, huberrors.ClientError("param is not JSON-encodable: " + err.Error())
	}
	frame, err := envelope.NewCallFrame(requestID, method, paramJSON)
	if err != nil {
		return envelope.Response{}, fmt.Errorf("correlator: building call frame: %w", err)
	}
	sent := 0
	for _, connID := range connIDs {
		if c.sender.SendFrame(connID, frame) {
			sent++
		} else {
			logger.Correlator().Warn().Str("connID", connID).Str("requestID", requestID).Msg("send failed, continuing with remaining targets")
		}
	}
	if sent == 0 {
		return envelope.Response{}, huberrors.NoTarget("all resolved connections failed to receive the call")
	}

	// 5/6. await completion with absolute deadline, or caller cancellation.
	deadline := time.NewTimer(c.cfg.RequestTimeout)
	defer deadline.Stop()

	select {
	case resp := <-slot.Wait():
		return resp, nil
	case <-deadline.C:
		return envelope.Response{}, huberrors.Timeout()
	case <-ctx.Done():
		return envelope.Response{}, huberrors.Cancelled()
	}
}

func marshalParam(param any) (json.RawMessage, error) {
	if param == nil {
		return nil, nil
	}
	return json.Marshal(param)
}
