package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"appraisekit/core"
)

// Options configures an Engine.
type Options struct {
	// Conditions opens the gate; nil leaves it closed until SetConditions.
	Conditions *core.Conditions
	Prompt     PromptText
	StoreID    string
	Listing    core.Listing
	Debug      DebugLevel
	Logger     *slog.Logger
	Clock      core.Clock
}

// Engine owns the reminder state of one installation, evaluates the gate and
// runs the reminder prompt. All public methods are serialized by one mutex;
// bus subscribers are called after it is released.
type Engine struct {
	mu       sync.Mutex
	storage  Storage
	host     Host
	bus      *EventBus
	opts     Options
	log      *slog.Logger
	prompter *Prompter

	running    bool
	platformUp bool
	conditions *core.Conditions
	state      core.State
	err        error
	pending    []core.Event
}

func NewEngine(storage Storage, host Host, bus *EventBus, opts Options) *Engine {
	if storage == nil || bus == nil {
		panic("NewEngine requires non-nil storage and bus")
	}
	log := opts.Logger
	switch {
	case opts.Debug <= DebugOff:
		log = discardLogger()
	case log == nil:
		log = slog.Default()
	}
	if opts.Prompt == (PromptText{}) {
		opts.Prompt = DefaultPromptText()
	}
	if opts.Listing == (core.Listing{}) {
		opts.Listing = core.DefaultListing()
	}
	return &Engine{
		storage:  storage,
		host:     host,
		bus:      bus,
		opts:     opts,
		log:      log,
		prompter: NewPrompter(host.Dialog, host.Loop, opts.Prompt, log),
	}
}

// Subscribe convenience method.
func (e *Engine) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return e.bus.Subscribe(typ, handler)
}

// Bus returns the event bus the engine publishes on.
func (e *Engine) Bus() *EventBus { return e.bus }

// Start loads the persisted state, creating it on first use, and initializes
// the host platform. Calling Start on a running engine is a no-op. On failure
// the error is kept and returned by Err, and by any further Start, until Stop.
func (e *Engine) Start(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.running || e.err != nil {
			return e.usable()
		}
		st, err := e.storage.Load(ctx)
		switch {
		case err == nil:
			e.log.Debug("read reminder state", stateAttrs(st)...)
		case errors.Is(err, core.ErrNotFound):
			st = core.NewState(e.now())
			e.log.Debug("reminder state does not exist, creating it")
			if err := e.storage.Save(ctx, st); err != nil {
				return e.fail(storageErr(err, "create state"))
			}
		default:
			return e.fail(storageErr(err, "load state"))
		}
		if p := e.host.Platform; p != nil {
			if err := p.Init(ctx); err != nil {
				return e.fail(core.Err(core.ErrPlatform, err, "initialize platform"))
			}
			e.platformUp = true
		}
		e.state = st
		if e.opts.Conditions != nil {
			c := *e.opts.Conditions
			e.conditions = &c
		}
		e.running = true
		e.log.Debug("reminder engine started")
		return nil
	})
}

// Stop releases the host platform and forgets the in-memory state and
// conditions. It is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.platformUp {
		if err := e.host.Platform.Shutdown(); err != nil {
			e.log.Debug("platform shutdown failed", "error", err)
		}
		e.platformUp = false
	}
	if e.running {
		e.log.Debug("reminder engine stopped")
	}
	e.running = false
	e.err = nil
	e.conditions = nil
	e.state = core.State{}
	e.prompter.enter(PromptIdle)
}

// Close stops the engine and its event bus, and closes the storage when it
// holds resources.
func (e *Engine) Close() error {
	e.Stop()
	e.bus.Close()
	if c, ok := e.storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Err returns the current error state: the sticky error of a failed operation,
// core.ErrNotRunning before Start or after Stop, or nil.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usable()
}

// Code returns the classified current error state.
func (e *Engine) Code() core.Code { return core.CodeOf(e.Err()) }

// NotifyLaunch records one app launch. With prompt set the gate is evaluated
// and, if open, the reminder runs before the state is persisted.
func (e *Engine) NotifyLaunch(ctx context.Context, prompt bool) error {
	return e.notify(ctx, core.EventLaunched, (*core.State).AddLaunch, prompt)
}

// NotifySignificantEvent records one significant event, otherwise like NotifyLaunch.
func (e *Engine) NotifySignificantEvent(ctx context.Context, prompt bool) error {
	return e.notify(ctx, core.EventSignificant, (*core.State).AddSigEvent, prompt)
}

func (e *Engine) notify(ctx context.Context, typ core.EventType, inc func(*core.State), prompt bool) error {
	return e.do(ctx, func() error {
		if err := e.usable(); err != nil {
			return err
		}
		inc(&e.state)
		e.log.Debug("counter incremented", "event", typ, "launches", e.state.LaunchCount, "sig_events", e.state.SigEventCount)
		e.emit(core.NewCounted(typ, e.state))
		if prompt {
			e.remind(ctx)
		}
		return e.persist(ctx)
	})
}

// remind runs the prompt when the gate is open and reports whether it was shown.
func (e *Engine) remind(ctx context.Context) bool {
	if !e.evaluate(ctx).Open {
		return false
	}
	e.emit(core.NewResponded(core.EventPromptShown, "", e.state))
	res, err := e.prompter.Run(ctx, &e.state, e.now, e.openConfiguredListing)
	if err != nil {
		e.record(err)
		e.emit(core.NewFailure(core.EventPromptFailed, err))
		return false
	}
	e.emit(core.NewResponded(res.Outcome, res.Response, e.state))
	if res.StoreErr != nil {
		e.record(core.Err(core.ErrPlatform, res.StoreErr, "open store listing"))
	}
	return true
}

// GateOpen evaluates the gate. It is false whenever the engine is unusable.
func (e *Engine) GateOpen(ctx context.Context) bool {
	d, _ := e.Decide(ctx)
	return d.Open
}

// Decide evaluates the gate and returns the decision with its reason.
func (e *Engine) Decide(ctx context.Context) (core.Decision, error) {
	var d core.Decision
	err := e.do(ctx, func() error {
		if err := e.usable(); err != nil {
			d = core.Decision{Reason: core.ReasonNotRunning, Detail: err.Error()}
			return err
		}
		d = e.evaluate(ctx)
		return nil
	})
	return d, err
}

func (e *Engine) evaluate(ctx context.Context) core.Decision {
	var d core.Decision
	if e.opts.Debug >= DebugForceGate {
		d = core.Decision{Open: true, Reason: core.ReasonForced, Detail: "debug level forces the reminder"}
	} else {
		d = core.Evaluate(e.state, e.conditions, e.now(), func() bool { return e.networkAvailable(ctx) })
	}
	e.log.Debug("reminder gate evaluated", "open", d.Open, "reason", d.Reason, "detail", d.Detail)
	e.emit(core.NewGateEvaluated(d))
	return d
}

// SetConditions replaces the reminder conditions until Stop.
func (e *Engine) SetConditions(c core.Conditions) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid conditions: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return err
	}
	e.conditions = &c
	return nil
}

// Conditions returns the active conditions, if any.
func (e *Engine) Conditions() (core.Conditions, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.usable() != nil || e.conditions == nil {
		return core.Conditions{}, false
	}
	return *e.conditions, true
}

// Rated reports whether the user rated or declined permanently.
func (e *Engine) Rated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.usable() != nil {
		return DefaultRated
	}
	return e.state.Rated
}

// SetRated sets the rated flag and persists it.
func (e *Engine) SetRated(ctx context.Context, v bool) error {
	return e.do(ctx, func() error {
		if err := e.usable(); err != nil {
			return err
		}
		e.state.Rated = v
		e.log.Debug("rated flag set", "rated", v)
		return e.persist(ctx)
	})
}

// Postponed reports whether the user chose to be reminded later.
func (e *Engine) Postponed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.usable() != nil {
		return DefaultPostponed
	}
	return e.state.Postponed
}

// SetPostponed sets the postponed flag, stamping or invalidating the postpone
// time, and persists it.
func (e *Engine) SetPostponed(ctx context.Context, v bool) error {
	return e.do(ctx, func() error {
		if err := e.usable(); err != nil {
			return err
		}
		e.state.SetPostponed(v, e.now())
		e.log.Debug("postponed flag set", "postponed", v, "postpone_time", e.state.PostponeTime)
		return e.persist(ctx)
	})
}

func (e *Engine) LaunchCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.usable() != nil {
		return DefaultLaunchCount
	}
	return e.state.LaunchCount
}

func (e *Engine) SigEventCount() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.usable() != nil {
		return DefaultSigEventCount
	}
	return e.state.SigEventCount
}

// FirstLaunchTime returns the Unix time of the first launch.
func (e *Engine) FirstLaunchTime() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.usable() != nil {
		return DefaultFirstLaunchTime
	}
	return e.state.FirstLaunch
}

// PostponeTime returns the Unix time of the last postpone, or core.NeverTime
// when the reminder is not postponed.
func (e *Engine) PostponeTime() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.usable() != nil {
		return DefaultPostponeTime
	}
	return e.state.PostponedAt()
}

// Snapshot returns a copy of the in-memory state.
func (e *Engine) Snapshot() (core.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.usable(); err != nil {
		return core.State{}, err
	}
	return e.state, nil
}

// PromptState returns the lifecycle state of the reminder dialog. It does not
// wait for a running prompt, so it reports showing or awaiting_response while
// the dialog is open.
func (e *Engine) PromptState() PromptState {
	return e.prompter.State()
}

// NetworkAvailable queries the host connectivity service. A failed query
// reports false and records a platform error.
func (e *Engine) NetworkAvailable(ctx context.Context) bool {
	var ok bool
	_ = e.do(ctx, func() error {
		if e.usable() != nil {
			ok = DefaultNetwork
			return nil
		}
		ok = e.networkAvailable(ctx)
		return nil
	})
	return ok
}

func (e *Engine) networkAvailable(ctx context.Context) bool {
	if e.host.Network == nil {
		return false
	}
	ok, err := e.host.Network.Available(ctx)
	if err != nil {
		e.log.Debug("could not get network status", "error", err)
		e.record(core.Err(core.ErrPlatform, err, "query network status"))
		return false
	}
	return ok
}

// OpenStoreListing opens the store page for id. Failures are recorded as
// platform errors and returned.
func (e *Engine) OpenStoreListing(ctx context.Context, id string) error {
	return e.do(ctx, func() error {
		if err := e.usable(); err != nil {
			return err
		}
		if err := e.openListing(ctx, id); err != nil {
			e.record(core.Err(core.ErrPlatform, err, "open store listing"))
			return e.err
		}
		return nil
	})
}

func (e *Engine) openConfiguredListing(ctx context.Context) error {
	return e.openListing(ctx, e.opts.StoreID)
}

func (e *Engine) openListing(ctx context.Context, id string) error {
	uri := e.opts.Listing.URI(id)
	if e.host.Store == nil {
		return fmt.Errorf("no store opener for %s", uri)
	}
	if err := e.host.Store.Open(ctx, uri); err != nil {
		e.log.Debug("error invoking store", "uri", uri, "error", err)
		return err
	}
	e.log.Debug("store listing opened", "uri", uri)
	return nil
}

// persist writes the state unless a storage error is already active. It
// returns the error recorded during the current operation, if any.
func (e *Engine) persist(ctx context.Context) error {
	if e.err != nil && core.CodeOf(e.err) == core.CodeStorage {
		return e.err
	}
	if err := e.storage.Save(ctx, e.state); err != nil {
		e.log.Debug("unable to write reminder state", "error", err)
		e.record(storageErr(err, "save state"))
		e.emit(core.NewFailure(core.EventStorageFailed, e.err))
		return e.err
	}
	e.log.Debug("wrote reminder state", stateAttrs(e.state)...)
	return e.err
}

// usable returns the reason the engine cannot serve calls, if any. Callers hold mu.
func (e *Engine) usable() error {
	if e.err != nil {
		return e.err
	}
	if !e.running {
		return core.ErrNotRunning
	}
	return nil
}

func (e *Engine) record(err error) { e.err = err }

func (e *Engine) fail(err error) error {
	e.record(err)
	e.running = false
	typ := core.EventStorageFailed
	if core.CodeOf(err) == core.CodePlatform {
		typ = core.EventPlatformFailed
	}
	e.emit(core.NewFailure(typ, err))
	return err
}

func (e *Engine) emit(ev core.Event) { e.pending = append(e.pending, ev) }

// do runs fn under the lock and publishes the events it emitted afterwards.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	e.mu.Lock()
	err := fn()
	events := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, ev := range events {
		e.bus.Publish(ctx, ev)
	}
	return err
}

func (e *Engine) now() int64 { return e.opts.Clock.Unix() }

func storageErr(err error, msg string) error {
	if errors.Is(err, core.ErrStorage) {
		return err
	}
	return core.Err(core.ErrStorage, err, msg)
}

func stateAttrs(st core.State) []any {
	return []any{
		"version", st.Version,
		"rated", st.Rated,
		"postponed", st.Postponed,
		"first_launch", st.FirstLaunch,
		"postpone_time", st.PostponeTime,
		"launches", st.LaunchCount,
		"sig_events", st.SigEventCount,
	}
}
