package actions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/blockrun/pkg/schema"
)

func TestDescribeError_HTTPErrorMessageFields(t *testing.T) {
	for body, want := range map[string]string{
		`{"message":"not allowed"}`:        "not allowed",
		`{"mensagem":"Token inválido"}`:    "Token inválido",
		`{"error":{"message":"nested"}}`:   "nested",
		`{"error":"flat"}`:                 "flat",
		`{"errors":[{"message":"first"}]}`: "first",
		`"bare string"`:                    "bare string",
		`Service Unavailable`:              "Service Unavailable",
	} {
		entry := DescribeError(&HTTPError{StatusCode: 400, Status: "400 Bad Request", Body: []byte(body)}, "While looking up")
		assert.Equal(t, schema.LogError, entry.Status, body)
		assert.Equal(t, "While looking up: "+want, entry.Description, body)
		assert.Equal(t, body, entry.Details, body)
	}
}

func TestDescribeError_HTTPErrorFallsBackToStatus(t *testing.T) {
	for _, body := range []string{``, `{"code":17}`, `[]`} {
		entry := DescribeError(&HTTPError{StatusCode: 500, Status: "500 Internal Server Error", Body: []byte(body)}, "ctx")
		assert.Equal(t, "ctx: 500 Internal Server Error", entry.Description, body)
	}
}

func TestDescribeError_WrappedHTTPError(t *testing.T) {
	err := schema.NewError(schema.ErrCodeUpstream, "call failed").
		WithCause(&HTTPError{StatusCode: 404, Status: "404 Not Found", Body: []byte(`{"message":"gone"}`)})
	entry := DescribeError(err, "ctx")
	assert.Equal(t, "ctx: gone", entry.Description)
}

func TestDescribeError_PlainError(t *testing.T) {
	entry := DescribeError(errors.New("connection refused"), "While looking up")
	assert.Equal(t, schema.LogError, entry.Status)
	assert.Equal(t, "While looking up: connection refused", entry.Description)
	assert.Empty(t, entry.Details)
}

func TestDescribeError_Nil(t *testing.T) {
	entry := DescribeError(nil, "ctx")
	assert.Equal(t, "ctx", entry.Description)
}
