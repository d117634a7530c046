package events

import "github.com/hubfabric/hubd/internal/envelope"

// broadcaster is the narrow seam both the transport adapter and this
// package's Publisher satisfy.
type broadcaster interface {
	BroadcastConnectionEvent(p envelope.ConnectionEventPayload)
}

// FanOut composes multiple broadcasters into one, so the registry can
// hold a single EventBroadcaster that reaches both the in-process
// transport hub and the optional external NATS publisher.
type FanOut struct {
	targets []broadcaster
}

// NewFanOut builds a FanOut over targets, skipping any nil entries so
// callers can pass an always-present transport adapter alongside an
// optionally-disabled Publisher without a conditional at the call site.
func NewFanOut(targets ...broadcaster) *FanOut {
	f := &FanOut{}
	for _, t := range targets {
		if t != nil {
			f.targets = append(f.targets, t)
		}
	}
	return f
}

// BroadcastConnectionEvent fans the event out to every composed target.
func (f *FanOut) BroadcastConnectionEvent(p envelope.ConnectionEventPayload) {
	for _, t := range f.targets {
		t.BroadcastConnectionEvent(p)
	}
}
