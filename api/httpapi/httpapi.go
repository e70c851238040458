package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	wsadapter "appraisekit/adapters/websocket"
	"appraisekit/analytics"
	"appraisekit/core"
	"appraisekit/engine"
	"appraisekit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// Stats, if set, is served on {prefix}/stats.
	Stats *analytics.PromptStats
}

// NewMux builds an http.Handler exposing the reminder engine of this process
// and its event stream.
// Routes:
//   - GET  {prefix}/state
//   - GET  {prefix}/gate
//   - POST {prefix}/launch?prompt=true
//   - POST {prefix}/events?prompt=true
//   - PUT  {prefix}/rated?value=true
//   - PUT  {prefix}/postponed?value=true
//   - PUT  {prefix}/conditions
//   - GET  {prefix}/stats
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(e *engine.Engine, hub *realtime.Hub, opts Options) http.Handler {
	mux := http.NewServeMux()
	route := func(method, path string) string { return method + " " + withPrefix(opts.PathPrefix, path) }

	mux.HandleFunc(route(http.MethodGet, "/healthz"), func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, e)
	})

	if hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub))
	}

	mux.HandleFunc(route(http.MethodGet, "/state"), func(w http.ResponseWriter, r *http.Request) {
		st, err := e.Snapshot()
		if err != nil {
			writeEngineError(w, err)
			return
		}
		c, ok := e.Conditions()
		resp := stateResponse{
			State:       st,
			PostponedAt: st.PostponedAt(),
			Prompt:      e.PromptState().String(),
		}
		if ok {
			resp.Conditions = &c
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc(route(http.MethodGet, "/gate"), func(w http.ResponseWriter, r *http.Request) {
		d, err := e.Decide(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, d)
	})

	mux.HandleFunc(route(http.MethodPost, "/launch"), notifyHandler(e.NotifyLaunch, e))
	mux.HandleFunc(route(http.MethodPost, "/events"), notifyHandler(e.NotifySignificantEvent, e))
	mux.HandleFunc(route(http.MethodPut, "/rated"), flagHandler(e.SetRated, e.Rated))
	mux.HandleFunc(route(http.MethodPut, "/postponed"), flagHandler(e.SetPostponed, e.Postponed))

	mux.HandleFunc(route(http.MethodPut, "/conditions"), func(w http.ResponseWriter, r *http.Request) {
		var c core.Conditions
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		if err := e.SetConditions(c); err != nil {
			if engineFailure(err) {
				writeEngineError(w, err)
				return
			}
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
			return
		}
		writeJSON(w, c)
	})

	if opts.Stats != nil {
		mux.HandleFunc(route(http.MethodGet, "/stats"), func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, opts.Stats.Snapshot())
		})
	}

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

type stateResponse struct {
	core.State
	// PostponedAt is NeverTime unless postponed.
	PostponedAt int64            `json:"postponed_at"`
	Prompt      string           `json:"prompt"`
	Conditions  *core.Conditions `json:"conditions,omitempty"`
}

// notifyHandler counts one launch or significant event. The optional prompt
// query blocks until the dialog is answered on the host.
func notifyHandler(notify func(context.Context, bool) error, e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prompt, ok := boolParam(w, r, "prompt", false)
		if !ok {
			return
		}
		if err := notify(r.Context(), prompt); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"ok":              true,
			"launch_count":    e.LaunchCount(),
			"sig_event_count": e.SigEventCount(),
			"prompt":          e.PromptState().String(),
		})
	}
}

func flagHandler(set func(context.Context, bool) error, get func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := boolParam(w, r, "value", true)
		if !ok {
			return
		}
		if err := set(r.Context(), v); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "value": get()})
	}
}

func boolParam(w http.ResponseWriter, r *http.Request, name string, required bool) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			writeError(w, http.StatusBadRequest, "invalid_input", name+" is required", nil)
			return false, false
		}
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", name+" must be a boolean", nil)
		return false, false
	}
	return v, true
}

// Helpers

// healthCheck reports the engine error state.
func healthCheck(w http.ResponseWriter, e *engine.Engine) {
	code := e.Code()
	status := map[string]any{
		"status": "healthy",
		"code":   code.String(),
	}
	if code != core.CodeNone {
		status["status"] = "unhealthy"
		if err := e.Err(); err != nil {
			status["error"] = err.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(status)
		return
	}
	writeJSON(w, status)
}

func engineFailure(err error) bool {
	return errors.Is(err, core.ErrNotRunning) || errors.Is(err, core.ErrPlatform) || errors.Is(err, core.ErrStorage)
}

// writeEngineError maps the engine error classes onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	code := core.CodeOf(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, core.ErrPlatform):
		status = http.StatusBadGateway
	case errors.Is(err, core.ErrStorage):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, code.String(), err.Error(), nil)
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-API-Key")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return r.Header.Get("X-API-Key")
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	now   func() time.Time
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		now:   time.Now,
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	b.tokens += now.Sub(b.last).Minutes() * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
