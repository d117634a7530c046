package envelope

import (
	"encoding/json"
	"time"
)

// Frame is the top-level message structure for all hub<->client traffic,
// adapted from the teacher's AgentMessage{Type, Timestamp, Payload}
// tagged envelope (models/agent_protocol.go) - the Type field still
// selects how Payload is parsed, but the vocabulary is this system's:
// call/reply/connection_event instead of command/heartbeat/ack/....
type Frame struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Frame types.
const (
	FrameTypeCall            = "call"
	FrameTypeReply           = "reply"
	FrameTypeConnectionEvent = "connection_event"
)

// CallPayload is the server->client frame body: invoke method on the
// client's Execute contract (component I) with the given requestID.
type CallPayload struct {
	RequestID string          `json:"requestId"`
	Method    string          `json:"method"`
	Param     json.RawMessage `json:"param,omitempty"`
}

// ReplyPayload is the client->server frame body carrying the response
// envelope for a previously issued Call.
type ReplyPayload struct {
	RequestID string   `json:"requestId"`
	Response  Response `json:"response"`
}

// ConnectionEventKind enumerates the connection lifecycle transitions
// broadcast to peers when BroadcastConnectionEvents is enabled.
type ConnectionEventKind string

const (
	ConnectionOpened   ConnectionEventKind = "Opened"
	ConnectionClosed   ConnectionEventKind = "Closed"
	ConnectionReopened ConnectionEventKind = "Reopened"
)

// ConnectionEventPayload is broadcast server->all clients on registry
// lifecycle transitions. Method carries the configured
// ConnectionEventMethod name, so a client dispatching purely on method
// name (the same way it dispatches an inbound Call) can route this
// frame without special-casing the connection_event frame type.
type ConnectionEventPayload struct {
	UserID       string              `json:"userId"`
	ConnectionID string              `json:"connectionId"`
	UserAgent    string              `json:"userAgent,omitempty"`
	Method       string              `json:"method,omitempty"`
	Kind         ConnectionEventKind `json:"kind"`
	At           time.Time           `json:"at"`
}

// NewCallFrame builds a wire Frame carrying a Call.
func NewCallFrame(requestID, method string, param json.RawMessage) (Frame, error) {
	payload, err := json.Marshal(CallPayload{RequestID: requestID, Method: method, Param: param})
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeCall, Timestamp: time.Now(), Payload: payload}, nil
}

// NewReplyFrame builds a wire Frame carrying a Reply.
func NewReplyFrame(requestID string, resp Response) (Frame, error) {
	payload, err := json.Marshal(ReplyPayload{RequestID: requestID, Response: resp})
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeReply, Timestamp: time.Now(), Payload: payload}, nil
}

// NewConnectionEventFrame builds a wire Frame carrying a ConnectionEvent.
func NewConnectionEventFrame(p ConnectionEventPayload) (Frame, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeConnectionEvent, Timestamp: time.Now(), Payload: payload}, nil
}
