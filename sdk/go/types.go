package sdk

import (
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"appraisekit/core"
)

// State mirrors the /state response.
type State struct {
	core.State
	PostponedAt int64            `json:"postponed_at"`
	Prompt      string           `json:"prompt"`
	Conditions  *core.Conditions `json:"conditions,omitempty"`
}

// Counters is returned by the notify calls.
type Counters struct {
	LaunchCount   int64  `json:"launch_count"`
	SigEventCount int64  `json:"sig_event_count"`
	Prompt        string `json:"prompt"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Error  string `json:"error,omitempty"`
}

// Healthy reports whether the server engine has no active error.
func (h HealthStatus) Healthy() bool { return h.Status == "healthy" }

// APIError is a non-2xx response. Code carries the engine error class
// ("not_running", "platform_error", "storage_error") or a request error code.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	body    []byte
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: status %d", e.Status)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.Status, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		apiErr.body, _ = io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(apiErr.body, apiErr)
		return apiErr
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
