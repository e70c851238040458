package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "appraisekit/adapters/memory"
	"appraisekit/analytics"
	"appraisekit/core"
	"appraisekit/engine"
	"appraisekit/host"
)

func newTestEngine(t *testing.T, start bool) *engine.Engine {
	t.Helper()
	e := engine.NewEngine(mem.New(), engine.Host{Network: host.Static(true)}, engine.NewEventBus(engine.DispatchSync), engine.Options{
		Conditions: &core.Conditions{LaunchCount: 2, SigEventCount: core.SigEventsDisabled, DaysToPostpone: 1},
	})
	if start {
		require.NoError(t, e.Start(context.Background()))
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func do(t *testing.T, h http.Handler, method, target string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestLaunchCountsAndState(t *testing.T) {
	handler := NewMux(newTestEngine(t, true), nil, Options{PathPrefix: "/api"})

	rec, resp := do(t, handler, http.MethodPost, "/api/launch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["launch_count"])

	rec, resp = do(t, handler, http.MethodPost, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["sig_event_count"])

	rec, resp = do(t, handler, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["launch_count"])
	assert.Equal(t, "idle", resp["prompt"])
	assert.Equal(t, false, resp["postponed"])
	assert.NotNil(t, resp["conditions"])
}

func TestGateOpensAfterEnoughLaunches(t *testing.T) {
	handler := NewMux(newTestEngine(t, true), nil, Options{})

	_, resp := do(t, handler, http.MethodGet, "/gate", "")
	assert.Equal(t, false, resp["open"])
	assert.Equal(t, string(core.ReasonTooFewLaunches), resp["reason"])

	do(t, handler, http.MethodPost, "/launch", "")
	do(t, handler, http.MethodPost, "/launch", "")

	rec, resp := do(t, handler, http.MethodGet, "/gate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["open"])
	assert.Equal(t, string(core.ReasonOpen), resp["reason"])
}

func TestFlagValidation(t *testing.T) {
	handler := NewMux(newTestEngine(t, true), nil, Options{})

	rec, _ := do(t, handler, http.MethodPut, "/rated", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, handler, http.MethodPut, "/rated?value=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, handler, http.MethodPost, "/launch?prompt=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := do(t, handler, http.MethodPut, "/rated?value=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["value"])

	_, resp = do(t, handler, http.MethodGet, "/gate", "")
	assert.Equal(t, string(core.ReasonRated), resp["reason"])

	rec, resp = do(t, handler, http.MethodPut, "/postponed?value=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["value"])
}

func TestWrongMethodIsRejected(t *testing.T) {
	handler := NewMux(newTestEngine(t, true), nil, Options{})

	rec, _ := do(t, handler, http.MethodGet, "/launch", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestConditions(t *testing.T) {
	handler := NewMux(newTestEngine(t, true), nil, Options{})

	rec, _ := do(t, handler, http.MethodPut, "/conditions", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, handler, http.MethodPut, "/conditions", `{"launch_count":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, handler, http.MethodPut, "/conditions", `{"days_in_use":0,"launch_count":0,"sig_event_count":-1,"days_to_postpone":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	_, resp := do(t, handler, http.MethodGet, "/gate", "")
	assert.Equal(t, true, resp["open"])
}

func TestNotRunningEngine(t *testing.T) {
	handler := NewMux(newTestEngine(t, false), nil, Options{})

	rec, resp := do(t, handler, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, core.CodeNotRunning.String(), resp["code"])

	rec, _ = do(t, handler, http.MethodPost, "/launch", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = do(t, handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", resp["status"])
	assert.Equal(t, core.CodeNotRunning.String(), resp["code"])
}

func TestHealthy(t *testing.T) {
	handler := NewMux(newTestEngine(t, true), nil, Options{})

	rec, resp := do(t, handler, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "none", resp["code"])
}

func TestStatsRoute(t *testing.T) {
	e := newTestEngine(t, true)
	stats := analytics.NewPromptStats()
	analytics.Attach(e.Bus(), stats)
	handler := NewMux(e, nil, Options{Stats: stats})

	do(t, handler, http.MethodPost, "/launch", "")
	do(t, handler, http.MethodPost, "/launch", "")

	rec, resp := do(t, handler, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), resp["launches"])

	rec, _ = do(t, NewMux(e, nil, Options{}), http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	handler := NewMux(newTestEngine(t, true), nil, Options{AllowCORSOrigin: "*"})

	req := httptest.NewRequest(http.MethodOptions, "/state", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPIKeyAuth(t *testing.T) {
	handler := NewMux(newTestEngine(t, true), nil, Options{
		PathPrefix:      "/api",
		APIKeys:         []string{"secret"},
		AllowCORSOrigin: "*",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	handler := NewMux(newTestEngine(t, true), nil, Options{
		PathPrefix:       "/api",
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	req1 := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req1.Header.Set("X-API-Key", "k")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	assert.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req2.Header.Set("X-API-Key", "k")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.Equal(t, "60", rec2.Header().Get("Retry-After"))
}
