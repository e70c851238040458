// Package appraise assembles a ready reminder engine from options.
package appraise

import (
	"context"
	"log/slog"
	"os"

	"appraisekit/adapters/statefile"
	"appraisekit/analytics"
	"appraisekit/config"
	"appraisekit/core"
	"appraisekit/engine"
	"appraisekit/host"
	"appraisekit/realtime"
)

// Option configures the engine builder.
type Option func(*settings)

type settings struct {
	cfg     *config.Config
	storage engine.Storage
	host    *engine.Host
	mode    engine.DispatchMode
	hub     *realtime.Hub
	hooks   []analytics.Hook
	opts    engine.Options
	debug   *engine.DebugLevel
}

// WithConfig takes conditions, prompt text, store listing, debug level and
// storage from cfg. Later options override it.
func WithConfig(cfg *config.Config) Option { return func(s *settings) { s.cfg = cfg } }

// WithStorage sets the persistence adapter.
func WithStorage(st engine.Storage) Option { return func(s *settings) { s.storage = st } }

// WithHost sets the dialog, event loop, connectivity and store collaborators.
func WithHost(h engine.Host) Option { return func(s *settings) { s.host = &h } }

// WithConditions sets the gate thresholds.
func WithConditions(c core.Conditions) Option {
	return func(s *settings) { s.opts.Conditions = &c }
}

// WithPrompt sets the dialog text.
func WithPrompt(p engine.PromptText) Option { return func(s *settings) { s.opts.Prompt = p } }

// WithStoreID sets the store listing identifier opened by "Rate Now".
func WithStoreID(id string) Option { return func(s *settings) { s.opts.StoreID = id } }

func WithDebug(level engine.DebugLevel) Option { return func(s *settings) { s.debug = &level } }

func WithLogger(l *slog.Logger) Option { return func(s *settings) { s.opts.Logger = l } }

func WithClock(c core.Clock) Option { return func(s *settings) { s.opts.Clock = c } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(s *settings) { s.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(s *settings) { s.hub = h } }

// WithHooks subscribes analytics hooks to all engine events.
func WithHooks(hooks ...analytics.Hook) Option {
	return func(s *settings) { s.hooks = append(s.hooks, hooks...) }
}

// New builds an engine. It is not started. Defaults:
//   - storage: the "<home>/.appraiseme" state file
//   - host: console dialog on stdin/stdout
//   - dispatch: sync
//   - conditions: none (advanced mode)
func New(ctx context.Context, opts ...Option) (*engine.Engine, error) {
	s := &settings{mode: engine.DispatchSync}
	for _, o := range opts {
		o(s)
	}
	if s.cfg != nil {
		if err := s.applyConfig(ctx); err != nil {
			return nil, err
		}
	}
	if s.debug != nil {
		s.opts.Debug = *s.debug
	}
	if s.storage == nil {
		s.storage = statefile.New("appraiseme")
	}
	h := host.Terminal(os.Stdin, os.Stdout)
	if s.host != nil {
		h = *s.host
	}

	bus := engine.NewEventBus(s.mode)
	if s.hub != nil {
		s.hub.Attach(bus)
	}
	for _, hk := range s.hooks {
		analytics.Attach(bus, hk)
	}
	e := engine.NewEngine(s.storage, h, bus, s.opts)
	return e, nil
}

// applyConfig fills unset settings from the configuration.
func (s *settings) applyConfig(ctx context.Context) error {
	cfg := s.cfg
	base := engine.Options{
		Conditions: cfg.Conditions.Core(),
		Prompt:     cfg.Prompt.Text(),
		StoreID:    cfg.Store.ID,
		Listing:    cfg.Store.Listing(),
		Debug:      engine.DebugLevel(cfg.Debug),
	}
	if s.opts.Conditions == nil {
		s.opts.Conditions = base.Conditions
	}
	if s.opts.Prompt == (engine.PromptText{}) {
		s.opts.Prompt = base.Prompt
	}
	if s.opts.StoreID == "" {
		s.opts.StoreID = base.StoreID
	}
	if s.opts.Listing == (core.Listing{}) {
		s.opts.Listing = base.Listing
	}
	if s.debug == nil {
		s.opts.Debug = base.Debug
	}
	if s.storage == nil {
		st, err := OpenStorage(ctx, cfg)
		if err != nil {
			return err
		}
		s.storage = st
	}
	return nil
}

// Start is the one-call integration: build, start, and record one launch
// with prompting enabled. The engine is returned even when an error is, so
// the host can keep calling it in its safe-default mode.
func Start(ctx context.Context, opts ...Option) (*engine.Engine, error) {
	e, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Start(ctx); err != nil {
		return e, err
	}
	return e, e.NotifyLaunch(ctx, true)
}
