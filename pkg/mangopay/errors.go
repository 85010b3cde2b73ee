package mangopay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// APIError is a non-2xx answer from the processor.
type APIError struct {
	StatusCode int               `json:"-"`
	ID         string            `json:"Id,omitempty"`
	Message    string            `json:"Message,omitempty"`
	Type       string            `json:"Type,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
	Body       string            `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Type != "" {
		return fmt.Sprintf("mangopay %d %s: %s", e.StatusCode, e.Type, msg)
	}
	return fmt.Sprintf("mangopay %d: %s", e.StatusCode, msg)
}

// Payload is the processor error as surfaced to trusted callers.
func (e *APIError) Payload() map[string]any {
	if e == nil {
		return nil
	}
	payload := map[string]any{
		"status": e.StatusCode,
	}
	if e.ID != "" {
		payload["id"] = e.ID
	}
	if e.Message != "" {
		payload["message"] = e.Message
	}
	if e.Type != "" {
		payload["type"] = e.Type
	}
	if len(e.Errors) > 0 {
		payload["errors"] = e.Errors
	}
	if len(payload) == 1 && e.Body != "" {
		payload["body"] = e.Body
	}
	return payload
}

func parseAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return apiErr
	}
	if err := json.Unmarshal([]byte(trimmed), apiErr); err != nil || apiErr.Message == "" && apiErr.Type == "" {
		apiErr.Body = trimmed
	}
	apiErr.StatusCode = status
	return apiErr
}

func authError(err *oauth2.RetrieveError) *APIError {
	status := http.StatusUnauthorized
	if err.Response != nil && err.Response.StatusCode >= 400 {
		status = err.Response.StatusCode
	}
	apiErr := parseAPIError(status, err.Body)
	if apiErr.Message == "" {
		apiErr.Message = "authentication failed"
	}
	if apiErr.Type == "" {
		apiErr.Type = "authentication_error"
	}
	return apiErr
}

// AsAPIError extracts a processor error from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}
