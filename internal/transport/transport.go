// Package transport implements the frame transport adapter (component
// C): per-connection send plus inbound frame dispatch, shared by the
// connection registry and the request correlator so both address
// connections through the same hub (design note in SPEC_FULL.md §9 -
// "never two separate connection spaces").
//
// Adapted from the teacher's internal/websocket/hub.go (Hub/Client
// channel-based register/unregister, two-phase RWMutex locking to evict
// slow clients without blocking broadcast) and agent_hub.go (duplicate-
// registration replay guard, per-connection heartbeat bookkeeping).
// Multi-tenancy fields (orgID, k8sNamespace) from the teacher's Client
// are dropped - this system has no tenancy concept.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubfabric/hubd/internal/envelope"
	"github.com/hubfabric/hubd/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Lifecycle is the registry seam the adapter calls on connect/disconnect,
// satisfied by internal/registry.Registry.
type Lifecycle interface {
	OnOpen(ctx context.Context, userID, connID, userAgent string) error
	OnClose(ctx context.Context, userID, connID string) error
}

// ReplyHandler is invoked for every inbound Reply frame, wired by the
// correlator to complete the matching pending-request slot.
type ReplyHandler func(requestID string, resp envelope.Response)

// CallExecutor is the client executor contract seam (component I),
// satisfied by internal/executor.Executor: run the method named by an
// inbound Call frame and serialize its outcome into a Response.
type CallExecutor interface {
	Execute(ctx context.Context, method string, param json.RawMessage) envelope.Response
}

// Conn is one live duplex channel, identified by an opaque ConnectionID.
type Conn struct {
	ID        string
	UserID    string
	UserAgent string

	ws   *websocket.Conn
	send chan []byte

	mu           sync.Mutex
	repliedCalls map[string]bool // inbound Call requestIDs already answered
}

// Adapter is the shared hub: it owns the connection set and dispatches
// inbound frames. Both the registry (lifecycle hooks) and the
// correlator (Call/Reply) operate through the same Adapter instance.
type Adapter struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	lifecycle Lifecycle
	onReply   ReplyHandler
	executor  CallExecutor

	upgrader websocket.Upgrader
}

// New constructs an Adapter. allowedOrigins mirrors the teacher's CSWSH
// origin-whitelist upgrader configuration; an empty list allows all
// origins (development mode).
func New(lifecycle Lifecycle, allowedOrigins []string) *Adapter {
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	return &Adapter{
		conns:     make(map[string]*Conn),
		lifecycle: lifecycle,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(originSet) == 0 {
					return true
				}
				return originSet[r.Header.Get("Origin")]
			},
		},
	}
}

// SetReplyHandler wires the correlator's completion callback. Must be
// called once before serving connections.
func (a *Adapter) SetReplyHandler(h ReplyHandler) {
	a.onReply = h
}

// SetExecutor wires the client executor contract (component I) so
// inbound Call frames addressed to this process are routed to locally
// registered handlers instead of being dropped as unrecognized.
func (a *Adapter) SetExecutor(e CallExecutor) {
	a.executor = e
}

// ServeConn upgrades an HTTP request to a WebSocket connection, runs the
// open lifecycle hook, and blocks running the read/write pumps until
// the connection closes, at which point it runs the close lifecycle
// hook. Intended to be called directly from a gin handler.
func (a *Adapter) ServeConn(w http.ResponseWriter, r *http.Request, connID, userID, userAgent string) error {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Conn{ID: connID, UserID: userID, UserAgent: userAgent, ws: ws, send: make(chan []byte, sendBufferSize)}

	a.mu.Lock()
	if existing, ok := a.conns[connID]; ok {
		// duplicate-connID replay guard, mirroring agent_hub's
		// handleRegister: close the stale connection before adopting
		// the new one.
		close(existing.send)
		existing.ws.Close()
	}
	a.conns[connID] = c
	a.mu.Unlock()

	ctx := r.Context()
	if err := a.lifecycle.OnOpen(ctx, userID, connID, userAgent); err != nil {
		logger.Transport().Warn().Err(err).Str("connID", connID).Msg("registry open failed, closing connection")
		a.removeConn(c)
		ws.Close()
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a.writePump(c) }()
	go func() { defer wg.Done(); a.readPump(c) }()
	wg.Wait()

	// Only the session that still owns connID in the live map runs the
	// close lifecycle hook: if a replay has already adopted this connID
	// (see the duplicate guard above), this stale session's teardown
	// must not evict or deregister the new, live connection.
	if owns := a.removeConn(c); owns {
		if err := a.lifecycle.OnClose(ctx, userID, connID); err != nil {
			logger.Transport().Warn().Err(err).Str("connID", connID).Msg("registry close failed")
		}
	}
	return nil
}

// removeConn deletes c from the connection set only if it is still the
// connection currently registered under its ID, reporting whether it
// did so. A stale session whose connID has since been replayed by a
// newer connection must not delete (or close-hook) that newer one.
func (a *Adapter) removeConn(c *Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if current, ok := a.conns[c.ID]; ok && current == c {
		delete(a.conns, c.ID)
		select {
		case <-c.send:
		default:
		}
		return true
	}
	return false
}

// SendFrame delivers a frame to one connection. Non-blocking: if the
// connection's send buffer is full or it is no longer known, the send
// is dropped and logged - per the spec's partial-send tolerance, the
// caller (the correlator) never cancels the whole Invoke over this.
func (a *Adapter) SendFrame(connID string, frame envelope.Frame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Transport().Error().Err(err).Msg("failed to marshal frame")
		return false
	}

	a.mu.RLock()
	c, ok := a.conns[connID]
	a.mu.RUnlock()
	if !ok {
		logger.Transport().Warn().Str("connID", connID).Msg("send to unknown connection, dropped")
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		logger.Transport().Warn().Str("connID", connID).Msg("send buffer full, frame dropped")
		return false
	}
}

// BroadcastConnectionEvent sends a ConnectionEvent frame to every
// connected peer, using the same two-phase locking the teacher's
// Hub.Broadcast uses to evict slow clients without blocking the send
// loop under the read lock.
func (a *Adapter) BroadcastConnectionEvent(p envelope.ConnectionEventPayload) {
	frame, err := envelope.NewConnectionEventFrame(p)
	if err != nil {
		logger.Transport().Error().Err(err).Msg("failed to build connection event frame")
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Transport().Error().Err(err).Msg("failed to marshal connection event frame")
		return
	}

	a.mu.RLock()
	var toClose []*Conn
	for _, c := range a.conns {
		select {
		case c.send <- data:
		default:
			toClose = append(toClose, c)
		}
	}
	a.mu.RUnlock()

	if len(toClose) > 0 {
		a.mu.Lock()
		for _, c := range toClose {
			if _, ok := a.conns[c.ID]; ok {
				close(c.send)
				delete(a.conns, c.ID)
			}
		}
		a.mu.Unlock()
	}
}

// ResolveAll returns every currently connected connection ID, backing
// the targeting resolver's All target.
func (a *Adapter) ResolveAll() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.conns))
	for id := range a.conns {
		ids = append(ids, id)
	}
	return ids
}

func (a *Adapter) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (a *Adapter) readPump(c *Conn) {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Transport().Warn().Err(err).Str("connID", c.ID).Msg("unexpected close")
			}
			return
		}
		a.dispatchInbound(c, message)
	}
}

// dispatchInbound parses one inbound frame. Errors are logged and
// swallowed per the propagation policy: they MUST NOT tear down sibling
// channel processing.
func (a *Adapter) dispatchInbound(c *Conn, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Transport().Error().Interface("panic", r).Str("connID", c.ID).Msg("recovered from panic in inbound dispatch")
		}
	}()

	var frame envelope.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		logger.Transport().Warn().Err(err).Str("connID", c.ID).Msg("malformed inbound frame, dropped")
		return
	}

	switch frame.Type {
	case envelope.FrameTypeReply:
		var reply envelope.ReplyPayload
		if err := json.Unmarshal(frame.Payload, &reply); err != nil {
			logger.Transport().Warn().Err(err).Str("connID", c.ID).Msg("malformed reply payload, dropped")
			return
		}
		if a.onReply != nil {
			a.onReply(reply.RequestID, reply.Response)
		}
	case envelope.FrameTypeCall:
		var call envelope.CallPayload
		if err := json.Unmarshal(frame.Payload, &call); err != nil {
			logger.Transport().Warn().Err(err).Str("connID", c.ID).Msg("malformed call payload, dropped")
			return
		}
		a.dispatchCall(c, call)
	default:
		logger.Transport().Warn().Str("type", frame.Type).Str("connID", c.ID).Msg("unrecognized inbound frame type, dropped")
	}
}

// dispatchCall runs the client executor contract for one inbound Call
// and sends back exactly one Reply frame. A replayed requestID (the
// same connection sending a second Call for a requestID it has already
// been answered for) is a protocol violation: logged and dropped
// rather than answered twice.
func (a *Adapter) dispatchCall(c *Conn, call envelope.CallPayload) {
	if a.executor == nil {
		logger.Transport().Warn().Str("connID", c.ID).Str("method", call.Method).Msg("inbound call received with no executor wired, dropped")
		return
	}

	c.mu.Lock()
	if c.repliedCalls == nil {
		c.repliedCalls = make(map[string]bool)
	}
	if c.repliedCalls[call.RequestID] {
		c.mu.Unlock()
		logger.Transport().Warn().Str("connID", c.ID).Str("requestID", call.RequestID).Msg("duplicate reply for requestID, protocol violation dropped")
		return
	}
	c.repliedCalls[call.RequestID] = true
	c.mu.Unlock()

	resp := a.executor.Execute(context.Background(), call.Method, call.Param)
	frame, err := envelope.NewReplyFrame(call.RequestID, resp)
	if err != nil {
		logger.Transport().Error().Err(err).Str("connID", c.ID).Msg("failed to build reply frame")
		return
	}
	a.SendFrame(c.ID, frame)
}
