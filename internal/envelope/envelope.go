// Package envelope implements the Response tagged union (component G's
// wire type) exchanged between the correlator and a connected client:
// Inline JSON, a blob reference, a null result, or an error.
//
// The wire shape mirrors the teacher's CompleteMessage/FailedMessage
// split (models/agent_protocol.go) collapsed into one envelope with a
// Kind discriminator, the way the canonical wire format names it:
// ResponseType ∈ {JsonObject, FilePath, Null, Error}.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the arms of a Response.
type Kind int

const (
	KindInline Kind = iota
	KindBlob
	KindNull
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindInline:
		return "JsonObject"
	case KindBlob:
		return "FilePath"
	case KindNull:
		return "Null"
	case KindError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Response is the tagged union returned by Invoke.
type Response struct {
	Kind    Kind
	Payload json.RawMessage // set when Kind == KindInline
	Path    string          // set when Kind == KindBlob
	Message string          // set when Kind == KindError
}

// Inline wraps a JSON-encodable value as an Inline response.
func Inline(v any) (Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Response{}, fmt.Errorf("marshal inline payload: %w", err)
	}
	return Response{Kind: KindInline, Payload: data}, nil
}

// Blob wraps a side-channel path as a Blob response.
func Blob(path string) Response {
	return Response{Kind: KindBlob, Path: path}
}

// Null is the null response.
func Null() Response {
	return Response{Kind: KindNull}
}

// Err wraps an error message as an Error response.
func Err(message string) Response {
	return Response{Kind: KindError, Message: message}
}

// wireEnvelope is the canonical JSON shape of a Response. Field matching
// on decode MUST be case-insensitive, so MarshalJSON/UnmarshalJSON are
// implemented directly rather than relying on struct tags alone for the
// inbound side.
type wireEnvelope struct {
	ResponseType string          `json:"ResponseType"`
	JSONData     json.RawMessage `json:"JsonData,omitempty"`
	FilePath     string          `json:"FilePath,omitempty"`
	ErrorMessage string          `json:"ErrorMessage,omitempty"`
}

// MarshalJSON renders the canonical wire envelope.
func (r Response) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{ResponseType: r.Kind.String()}
	switch r.Kind {
	case KindInline:
		w.JSONData = r.Payload
	case KindBlob:
		w.FilePath = r.Path
	case KindError:
		w.ErrorMessage = r.Message
	case KindNull:
		// nothing else to set
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the canonical wire envelope. Field names are
// matched case-insensitively per the external-interface contract, since
// peer implementations on other platforms may not preserve Go's exact
// capitalization.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	var responseType, filePath, errorMessage string
	var jsonData json.RawMessage
	for key, val := range raw {
		switch strings.ToLower(key) {
		case "responsetype":
			_ = json.Unmarshal(val, &responseType)
		case "jsondata":
			jsonData = val
		case "filepath":
			_ = json.Unmarshal(val, &filePath)
		case "errormessage":
			_ = json.Unmarshal(val, &errorMessage)
		}
	}

	switch strings.ToLower(responseType) {
	case "jsonobject":
		r.Kind = KindInline
		r.Payload = jsonData
	case "filepath":
		r.Kind = KindBlob
		r.Path = filePath
	case "error":
		r.Kind = KindError
		r.Message = errorMessage
	case "null", "":
		r.Kind = KindNull
	default:
		return fmt.Errorf("envelope: unrecognized ResponseType %q", responseType)
	}
	return nil
}
