// Package decoder implements the response decoder (component G):
// turning an envelope.Response into a typed value, or surfacing its
// error/null arms.
//
// Grounded on the design note that the decoder bug in the original
// (a dummy-method re-invoke on multi-target fan-out) cannot recur here,
// since the correlator's tie-break (§4.3) guarantees there is only ever
// one Response per Invoke call by construction - this package only
// needs to decode the response actually received, never re-resolve a
// target.
package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hubfabric/hubd/internal/envelope"
	"github.com/hubfabric/hubd/internal/huberrors"
	"github.com/hubfabric/hubd/internal/logger"
)

// BlobReader is the blob seam used to read a spilled-over response,
// satisfied by internal/blob.Store.
type BlobReader interface {
	Read(ctx context.Context, path string) (io.ReadCloser, error)
}

// Decoder decodes envelope.Response values into typed Go values.
type Decoder struct {
	blobs BlobReader
}

// New constructs a Decoder.
func New(blobs BlobReader) *Decoder {
	return &Decoder{blobs: blobs}
}

// Decode decodes resp into out (a pointer). Null decodes to a no-op
// (out left untouched). Error surfaces the wrapped message as a Go
// error after logging it at error level; out is left untouched in that
// case, and the envelope itself is not modified.
func (d *Decoder) Decode(ctx context.Context, resp envelope.Response, out any) error {
	switch resp.Kind {
	case envelope.KindNull:
		return nil

	case envelope.KindError:
		logger.Correlator().Error().Str("message", resp.Message).Msg("peer returned an error response")
		return huberrors.ClientError(resp.Message)

	case envelope.KindInline:
		return decodeFlexible(resp.Payload, out)

	case envelope.KindBlob:
		rc, err := d.blobs.Read(ctx, resp.Path)
		if err != nil {
			return err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("decoder: reading blob: %w", err)
		}
		return decodeFlexible(data, out)

	default:
		return huberrors.DecodeFailed(fmt.Errorf("decoder: unrecognized response kind %v", resp.Kind))
	}
}

// decodeFlexible accepts payload already-as-object, as a JSON string
// that itself embeds JSON, or as a JSON scalar, per §4.5's decode
// rules. Field matching for object payloads is case-insensitive by
// virtue of encoding/json's own default behavior.
func decodeFlexible(payload json.RawMessage, out any) error {
	if len(payload) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(out); err == nil {
		return nil
	}

	// Retry: payload may be a JSON string that itself contains JSON
	// (double-encoded), common when a peer serializes its result twice.
	var embedded string
	if err := json.Unmarshal(payload, &embedded); err != nil {
		return huberrors.DecodeFailed(fmt.Errorf("payload is neither a direct value nor a JSON string: %w", err))
	}
	if err := json.Unmarshal([]byte(embedded), out); err != nil {
		return huberrors.DecodeFailed(fmt.Errorf("embedded payload did not decode: %w", err))
	}
	return nil
}
