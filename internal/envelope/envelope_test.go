package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseMarshalInline(t *testing.T) {
	resp, err := Inline(map[string]any{"message": "pong"})
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "JsonObject", wire["ResponseType"])
	assert.Contains(t, wire, "JsonData")
}

func TestResponseMarshalBlob(t *testing.T) {
	data, err := json.Marshal(Blob("folder/abc.json"))
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "FilePath", wire["ResponseType"])
	assert.Equal(t, "folder/abc.json", wire["FilePath"])
}

func TestResponseUnmarshalCaseInsensitive(t *testing.T) {
	raw := []byte(`{"responsetype":"JsonObject","jsondata":{"a":1}}`)
	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, KindInline, resp.Kind)
	assert.JSONEq(t, `{"a":1}`, string(resp.Payload))
}

func TestResponseUnmarshalError(t *testing.T) {
	raw := []byte(`{"ResponseType":"Error","ErrorMessage":"boom"}`)
	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, KindError, resp.Kind)
	assert.Equal(t, "boom", resp.Message)
}

func TestResponseUnmarshalNullDefaultsEmpty(t *testing.T) {
	raw := []byte(`{}`)
	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, KindNull, resp.Kind)
}

func TestResponseUnmarshalUnrecognizedType(t *testing.T) {
	raw := []byte(`{"ResponseType":"Weird"}`)
	var resp Response
	assert.Error(t, json.Unmarshal(raw, &resp))
}

func TestRoundTrip(t *testing.T) {
	original, err := Inline([]int{1, 2, 3})
	require.NoError(t, err)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.Kind, decoded.Kind)
	assert.JSONEq(t, string(original.Payload), string(decoded.Payload))
}
