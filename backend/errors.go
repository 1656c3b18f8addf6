package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/acrelle/authfront"
)

// APIError is a non-5xx backend rejection. Message is the backend's text,
// passed through verbatim.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend rejected request (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend rejected request (%d)", e.Status)
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Code        string `json:"error_code"`
	Msg         string `json:"msg"`
	Message     string `json:"message"`
}

func (b errorBody) text() string {
	for _, candidate := range []string{b.Description, b.Msg, b.Message, b.Error} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// apiError maps one non-2xx response onto the orchestrator taxonomy. Server
// errors and transport failures become ErrBackendUnavailable; conflicts
// become ErrProviderConflict; code/credential rejections on verification
// endpoints are wrapped by the caller.
func apiError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s", authfront.ErrBackendUnavailable, body.text())
	}
	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", authfront.ErrProviderConflict, body.text())
	}

	return &APIError{
		Status:  resp.StatusCode,
		Code:    body.Code,
		Message: body.text(),
	}
}

func transportError(err error) error {
	return fmt.Errorf("%w: %v", authfront.ErrBackendUnavailable, err)
}
