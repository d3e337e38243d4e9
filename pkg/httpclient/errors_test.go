package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	apperrors "github.com/predizer/predictx-client/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeResponse creates an *http.Response with the given status code and body string.
func makeResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func parseAPIError(t *testing.T, resp *http.Response) *apperrors.APIError {
	t.Helper()
	err := ParseResponseError(resp)
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %T: %v", err, err)
	return apiErr
}

func TestParseResponseError_MessagePriority(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail wins", `{"detail":"d","message":"m","error":{"message":"e"},"title":"t"}`, "d"},
		{"message next", `{"message":"m","error":{"message":"e"},"title":"t"}`, "m"},
		{"error.message next", `{"error":{"message":"e"},"title":"t"}`, "e"},
		{"error string", `{"error":"invalid_grant"}`, "invalid_grant"},
		{"title last", `{"title":"Unauthorized"}`, "Unauthorized"},
		{"blank detail skipped", `{"detail":"  ","message":"m"}`, "m"},
		{"validation list", `{"detail":[{"loc":["body","email"],"msg":"field required"}]}`, "field required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := parseAPIError(t, makeResponse(http.StatusBadRequest, tt.body))
			assert.Equal(t, tt.want, apiErr.Message)
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.Equal(t, []byte(tt.body), apiErr.Payload)
		})
	}
}

func TestParseResponseError_CodeAndTitle(t *testing.T) {
	apiErr := parseAPIError(t, makeResponse(http.StatusUnauthorized,
		`{"title":"Invalid credentials","code":"invalid_credentials","detail":"wrong password"}`))

	assert.Equal(t, "invalid_credentials", apiErr.Code)
	assert.Equal(t, "Invalid credentials", apiErr.Title)
	assert.Equal(t, "wrong password", apiErr.Message)
	assert.True(t, errors.Is(apiErr, apperrors.ErrUnauthorized))
}

func TestParseResponseError_NestedCode(t *testing.T) {
	apiErr := parseAPIError(t, makeResponse(http.StatusConflict,
		`{"error":{"code":"EMAIL_TAKEN","message":"email already registered"}}`))

	assert.Equal(t, "EMAIL_TAKEN", apiErr.Code)
	assert.Equal(t, "email already registered", apiErr.Message)
	assert.True(t, errors.Is(apiErr, apperrors.ErrConflict))
}

func TestParseResponseError_Unstructured(t *testing.T) {
	apiErr := parseAPIError(t, makeResponse(http.StatusBadGateway, "upstream timed out\n"))

	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream timed out", apiErr.Message)
	assert.Equal(t, []byte("upstream timed out\n"), apiErr.Payload)
	assert.True(t, errors.Is(apiErr, apperrors.ErrServer))
}

func TestParseResponseError_EmptyBody(t *testing.T) {
	apiErr := parseAPIError(t, makeResponse(http.StatusNotFound, ""))

	assert.Equal(t, "Not Found", apiErr.Message)
	assert.True(t, errors.Is(apiErr, apperrors.ErrNotFound))
}

func TestParseResponseError_JSONNull(t *testing.T) {
	apiErr := parseAPIError(t, makeResponse(http.StatusForbidden, "null"))
	assert.Equal(t, "null", apiErr.Message)
	assert.True(t, errors.Is(apiErr, apperrors.ErrForbidden))
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestParseResponseError_ReadFailure(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusInternalServerError, Body: io.NopCloser(errReader{})}
	apiErr := parseAPIError(t, resp)

	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "connection reset")
}
