// Package executor implements the client executor contract (component
// I): on an inbound (requestID, method, param), run the registered
// handler and serialize its outcome into exactly one Response
// envelope - Error for a returned error, Null for a nil result, Inline
// for anything that encodes at or under MaxDirectDataSize, or a side-channel
// Blob once that threshold is crossed.
//
// This is the callee side of one Invoke call. Grounded on the
// teacher's command_dispatcher.go dispatch shape, but without its
// worker pool: there is exactly one call to run here, and the
// transport adapter's own read pump already bounds concurrency per
// connection, so no queue is needed.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hubfabric/hubd/internal/envelope"
	"github.com/hubfabric/hubd/internal/logger"
)

// HandlerFunc is one registered method body: given the raw param
// payload, it returns a JSON-encodable result (nil for a Null reply)
// or an error (wrapped as an Error reply).
type HandlerFunc func(ctx context.Context, param json.RawMessage) (any, error)

// BlobUploader is the side-channel seam used once a reply's encoded
// size crosses MaxDirectDataSize, satisfied by internal/blob.Store.
type BlobUploader interface {
	UploadNamed(ctx context.Context, folder, namePrefix string, data io.Reader) (string, error)
}

// Config controls the inline-vs-blob size decision.
type Config struct {
	// MaxDirectDataSize is the encoded-payload byte threshold above
	// which a reply spills over to the blob side channel instead of
	// being sent inline.
	MaxDirectDataSize int
	// TempFolder is the blob folder spillover replies upload into.
	TempFolder string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{MaxDirectDataSize: 10 * 1024, TempFolder: "signalr-temp"}
}

// Executor routes inbound calls to locally registered handlers.
type Executor struct {
	cfg   Config
	blobs BlobUploader

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New constructs an Executor.
func New(cfg Config, blobs BlobUploader) *Executor {
	return &Executor{cfg: cfg, blobs: blobs, handlers: make(map[string]HandlerFunc)}
}

// Register wires method to handler. Re-registering a method replaces
// its previous handler.
func (e *Executor) Register(method string, handler HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[method] = handler
}

// Execute runs the handler registered for method and serializes its
// outcome into exactly one Response envelope, per the client executor
// contract: a thrown/returned error becomes Error, a nil result
// becomes Null, everything else is size-checked against
// MaxDirectDataSize to choose Inline vs. an uploaded Blob. Callers
// (the transport adapter's inbound Call dispatch) send exactly the one
// Reply frame this Response builds - a second reply for the same
// requestID is the protocol violation the transport layer logs and
// drops, not something this package can produce.
func (e *Executor) Execute(ctx context.Context, method string, param json.RawMessage) envelope.Response {
	e.mu.RLock()
	handler, ok := e.handlers[method]
	e.mu.RUnlock()
	if !ok {
		return envelope.Err(fmt.Sprintf("no handler registered for method %q", method))
	}

	result, err := handler(ctx, param)
	if err != nil {
		logger.Executor().Warn().Err(err).Str("method", method).Msg("handler returned an error")
		return envelope.Err(err.Error())
	}
	if result == nil {
		return envelope.Null()
	}

	resp, err := envelope.Inline(result)
	if err != nil {
		return envelope.Err(fmt.Sprintf("encoding result of %q: %v", method, err))
	}
	if len(resp.Payload) <= e.cfg.MaxDirectDataSize {
		return resp
	}

	path, err := e.blobs.UploadNamed(ctx, e.cfg.TempFolder, method, bytes.NewReader(resp.Payload))
	if err != nil {
		logger.Executor().Error().Err(err).Str("method", method).Msg("spilling oversized reply to blob store failed")
		return envelope.Err(fmt.Sprintf("spilling result of %q to blob store: %v", method, err))
	}
	logger.Executor().Debug().Str("method", method).Int("size", len(resp.Payload)).Str("path", path).Msg("reply spilled to blob store")
	return envelope.Blob(path)
}
