package transport

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubfabric/hubd/internal/envelope"
)

type fakeLifecycle struct {
	mu     sync.Mutex
	opened []string
	closed []string
}

func (f *fakeLifecycle) OnOpen(ctx context.Context, userID, connID, userAgent string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, connID)
	return nil
}

func (f *fakeLifecycle) OnClose(ctx context.Context, userID, connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, connID)
	return nil
}

// addTestConn injects a Conn directly into the adapter's table, bypassing
// the real websocket upgrade so SendFrame/BroadcastConnectionEvent/
// ResolveAll can be exercised without a network round trip.
func addTestConn(a *Adapter, id string) *Conn {
	c := &Conn{ID: id, send: make(chan []byte, sendBufferSize)}
	a.mu.Lock()
	a.conns[id] = c
	a.mu.Unlock()
	return c
}

func TestSendFrameToUnknownConnectionFails(t *testing.T) {
	a := New(&fakeLifecycle{}, nil)
	frame, err := envelope.NewCallFrame("req-1", "Ping", nil)
	require.NoError(t, err)
	assert.False(t, a.SendFrame("ghost", frame))
}

func TestSendFrameDeliversToKnownConnection(t *testing.T) {
	a := New(&fakeLifecycle{}, nil)
	c := addTestConn(a, "c1")

	frame, err := envelope.NewCallFrame("req-1", "Ping", nil)
	require.NoError(t, err)
	assert.True(t, a.SendFrame("c1", frame))

	select {
	case data := <-c.send:
		var got envelope.Frame
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, envelope.FrameTypeCall, got.Type)
	default:
		t.Fatal("expected a frame on the send channel")
	}
}

func TestSendFrameDropsWhenBufferFull(t *testing.T) {
	a := New(&fakeLifecycle{}, nil)
	c := &Conn{ID: "c1", send: make(chan []byte, 1)}
	a.mu.Lock()
	a.conns["c1"] = c
	a.mu.Unlock()

	frame, err := envelope.NewCallFrame("req-1", "Ping", nil)
	require.NoError(t, err)
	assert.True(t, a.SendFrame("c1", frame))
	assert.False(t, a.SendFrame("c1", frame))
}

func TestResolveAll(t *testing.T) {
	a := New(&fakeLifecycle{}, nil)
	addTestConn(a, "c1")
	addTestConn(a, "c2")

	assert.ElementsMatch(t, []string{"c1", "c2"}, a.ResolveAll())
}

func TestBroadcastConnectionEventReachesAllConns(t *testing.T) {
	a := New(&fakeLifecycle{}, nil)
	c1 := addTestConn(a, "c1")
	c2 := addTestConn(a, "c2")

	a.BroadcastConnectionEvent(envelope.ConnectionEventPayload{UserID: "u1", Kind: envelope.ConnectionOpened})

	for _, c := range []*Conn{c1, c2} {
		select {
		case data := <-c.send:
			var got envelope.Frame
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, envelope.FrameTypeConnectionEvent, got.Type)
		default:
			t.Fatalf("conn %s never received the broadcast", c.ID)
		}
	}
}

func TestDispatchInboundReplyInvokesHandler(t *testing.T) {
	a := New(&fakeLifecycle{}, nil)
	var gotRequestID string
	var gotResp envelope.Response
	a.SetReplyHandler(func(requestID string, resp envelope.Response) {
		gotRequestID = requestID
		gotResp = resp
	})

	frame, err := envelope.NewReplyFrame("req-42", envelope.Null())
	require.NoError(t, err)
	data, err := json.Marshal(frame)
	require.NoError(t, err)

	c := &Conn{ID: "c1", send: make(chan []byte, 1)}
	a.dispatchInbound(c, data)

	assert.Equal(t, "req-42", gotRequestID)
	assert.Equal(t, envelope.KindNull, gotResp.Kind)
}

func TestDispatchInboundMalformedFrameDoesNotPanic(t *testing.T) {
	a := New(&fakeLifecycle{}, nil)
	c := &Conn{ID: "c1", send: make(chan []byte, 1)}
	assert.NotPanics(t, func() { a.dispatchInbound(c, []byte("not json")) })
}

func TestDispatchInboundUnknownFrameTypeIsDropped(t *testing.T) {
	a := New(&fakeLifecycle{}, nil)
	c := &Conn{ID: "c1", send: make(chan []byte, 1)}
	frame := envelope.Frame{Type: "bogus"}
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.NotPanics(t, func() { a.dispatchInbound(c, data) })
}
