package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/predizer/predictx-client/pkg/errors"
)

// maxErrorBody bounds how much of an error response is buffered.
const maxErrorBody = 1 << 20

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an *apperrors.APIError. The human-readable message is taken from the
// first non-empty of detail, message, error.message and title; the machine code
// from code or error.code. Unstructured bodies are kept in Payload.
//
// The caller should only invoke this when resp.StatusCode indicates an error
// (i.e., not 2xx). The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		apiErr := apperrors.FromResponse(resp.StatusCode, "", "", "", nil)
		apiErr.Err = fmt.Errorf("read error body: %w", err)
		return apiErr
	}

	var body map[string]any
	if json.Unmarshal(bodyBytes, &body) != nil || body == nil {
		return apperrors.FromResponse(resp.StatusCode, "", "", strings.TrimSpace(string(bodyBytes)), bodyBytes)
	}

	nested, _ := body["error"].(map[string]any)

	message := firstNonEmpty(
		detailMessage(body["detail"]),
		stringField(body, "message"),
		stringField(nested, "message"),
		stringField(body, "error"),
		stringField(body, "title"),
	)
	code := firstNonEmpty(
		stringField(body, "code"),
		stringField(nested, "code"),
	)
	title := stringField(body, "title")

	return apperrors.FromResponse(resp.StatusCode, code, title, message, bodyBytes)
}

// detailMessage accepts a plain string or a list of validation entries of the
// form {"loc": [...], "msg": "..."} and returns the first message.
func detailMessage(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			switch e := item.(type) {
			case string:
				if s := strings.TrimSpace(e); s != "" {
					return s
				}
			case map[string]any:
				if s := firstNonEmpty(stringField(e, "msg"), stringField(e, "message")); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
