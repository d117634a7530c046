package huberrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsSetStatusCodes(t *testing.T) {
	cases := []struct {
		err    *HubError
		status int
		code   string
	}{
		{Overloaded(), http.StatusServiceUnavailable, CodeOverloaded},
		{NoTarget("x"), http.StatusNotFound, CodeNoTarget},
		{Timeout(), http.StatusGatewayTimeout, CodeTimeout},
		{Cancelled(), http.StatusRequestTimeout, CodeCancelled},
		{BlobMissing("p"), http.StatusNotFound, CodeBlobMissing},
		{DecodeFailed(errors.New("x")), http.StatusUnprocessableEntity, CodeDecodeFailed},
		{ClientError("x"), http.StatusBadGateway, CodeClientError},
		{StoreFailure(errors.New("x")), http.StatusInternalServerError, CodeStoreFailure},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.StatusCode, tc.code)
		assert.Equal(t, tc.code, tc.err.Code)
	}
}

func TestErrorMessageIncludesDetails(t *testing.T) {
	err := Wrap(CodeStoreFailure, "write failed", errors.New("connection refused"))
	assert.Contains(t, err.Error(), "write failed")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestErrorMessageWithoutDetails(t *testing.T) {
	err := New(CodeClientError, "bad input")
	assert.Equal(t, "CLIENT_ERROR: bad input", err.Error())
}

func TestToResponseShape(t *testing.T) {
	err := NewWithDetails(CodeTimeout, "no reply", "debug info")
	resp := err.ToResponse()
	assert.Equal(t, CodeTimeout, resp.Error)
	assert.Equal(t, "no reply", resp.Message)
	assert.Equal(t, "debug info", resp.Details)
}

func TestWrapWithNilError(t *testing.T) {
	err := Wrap(CodeStoreFailure, "msg", nil)
	assert.Empty(t, err.Details)
}
