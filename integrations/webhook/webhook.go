package webhook

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"appraisekit/core"
)

// Sink posts reminder events to configured HTTP endpoints.
// It is synchronous; subscribe it to an async bus when endpoints are slow.
type Sink struct {
	client       *http.Client
	endpoints    []string
	types        map[core.EventType]bool
	installation string
	log          *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTypes restricts delivery to the given event types.
func WithTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		s.types = make(map[core.EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
}

// WithInstallation sets the X-Appraise-Installation header on every post.
func WithInstallation(id string) Option {
	return func(s *Sink) { s.installation = id }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// OnEvent posts the event JSON to all endpoints. Delivery failures are logged
// and otherwise ignored.
func (s *Sink) OnEvent(e core.Event) {
	if len(s.endpoints) == 0 || (s.types != nil && !s.types[e.Type]) {
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		s.log.Warn("webhook: encode event", "type", e.Type, "error", err)
		return
	}
	for _, ep := range s.endpoints {
		if err := s.post(ep, body); err != nil {
			s.log.Warn("webhook: delivery failed", "endpoint", ep, "type", e.Type, "error", err)
		}
	}
}

// Handle adapts the sink to engine.EventBus subscriptions.
func (s *Sink) Handle(_ context.Context, e core.Event) { s.OnEvent(e) }

func (s *Sink) post(endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.installation != "" {
		req.Header.Set("X-Appraise-Installation", s.installation)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// StatusError reports a non-2xx webhook response.
type StatusError struct{ Code int }

func (e *StatusError) Error() string { return "unexpected status " + http.StatusText(e.Code) }
