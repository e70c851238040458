package sdk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"appraisekit/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the diagnostics HTTP + WebSocket API served
// by "appraise serve".
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// State fetches the reminder state, prompt state and active conditions.
func (c *Client) State(ctx context.Context) (State, error) {
	var st State
	err := c.do(ctx, http.MethodGet, "/state", nil, nil, &st)
	return st, err
}

// Gate evaluates the gate on the server.
func (c *Client) Gate(ctx context.Context) (core.Decision, error) {
	var d core.Decision
	err := c.do(ctx, http.MethodGet, "/gate", nil, nil, &d)
	return d, err
}

// NotifyLaunch records one launch. With prompt set the server shows the
// reminder on its console and the call blocks until it is answered.
func (c *Client) NotifyLaunch(ctx context.Context, prompt bool) (Counters, error) {
	return c.notify(ctx, "/launch", prompt)
}

// NotifySignificantEvent records one significant event.
func (c *Client) NotifySignificantEvent(ctx context.Context, prompt bool) (Counters, error) {
	return c.notify(ctx, "/events", prompt)
}

func (c *Client) notify(ctx context.Context, path string, prompt bool) (Counters, error) {
	var out Counters
	q := url.Values{"prompt": {strconv.FormatBool(prompt)}}
	err := c.do(ctx, http.MethodPost, path, q, nil, &out)
	return out, err
}

// SetRated sets the rated flag.
func (c *Client) SetRated(ctx context.Context, v bool) error {
	return c.setFlag(ctx, "/rated", v)
}

// SetPostponed sets the postponed flag.
func (c *Client) SetPostponed(ctx context.Context, v bool) error {
	return c.setFlag(ctx, "/postponed", v)
}

func (c *Client) setFlag(ctx context.Context, path string, v bool) error {
	q := url.Values{"value": {strconv.FormatBool(v)}}
	return c.do(ctx, http.MethodPut, path, q, nil, nil)
}

// SetConditions replaces the gate thresholds until the server engine stops.
func (c *Client) SetConditions(ctx context.Context, cond core.Conditions) error {
	body, err := json.Marshal(cond)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/conditions", nil, body, nil)
}

// Health probes /healthz. An unhealthy engine is reported in the status, not
// as an error.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, &hs)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
		if jerr := json.Unmarshal(apiErr.body, &hs); jerr == nil {
			return hs, nil
		}
	}
	return hs, err
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values,
// optionally restricted to the given types. The returned channel closes when
// ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, types ...core.EventType) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		target += "?" + url.Values{"types": {strings.Join(names, ",")}}.Encode()
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var evt core.Event
			if err := json.Unmarshal(msg, &evt); err != nil {
				continue
			}
			select {
			case out <- evt:
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, target any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
