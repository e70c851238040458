package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"appraisekit/core"
)

// PromptText is the fixed content of the reminder dialog.
type PromptText struct {
	Message     string `json:"message"`
	RateLabel   string `json:"rate_label"`
	LaterLabel  string `json:"later_label"`
	CancelLabel string `json:"cancel_label"`
}

// DefaultPromptText returns the stock English dialog.
func DefaultPromptText() PromptText {
	return PromptText{
		Message:     "If you enjoy using this app, would you mind taking a moment to rate it? It won't take more than a minute. Thanks for your support!",
		RateLabel:   "Rate Now",
		LaterLabel:  "Rate Later",
		CancelLabel: "No, Thanks",
	}
}

// buttons returns the labels in button index order.
func (t PromptText) buttons() []string {
	return []string{t.RateLabel, t.LaterLabel, t.CancelLabel}
}

// PromptState is a state of the reminder dialog lifecycle.
type PromptState int

const (
	PromptIdle PromptState = iota
	PromptShowing
	PromptAwaiting
	PromptRateChosen
	PromptLaterChosen
	PromptCancelChosen
)

func (s PromptState) String() string {
	switch s {
	case PromptIdle:
		return "idle"
	case PromptShowing:
		return "showing"
	case PromptAwaiting:
		return "awaiting_response"
	case PromptRateChosen:
		return "rate_chosen"
	case PromptLaterChosen:
		return "later_chosen"
	case PromptCancelChosen:
		return "cancel_chosen"
	default:
		return fmt.Sprintf("prompt_state(%d)", int(s))
	}
}

func terminalState(r core.Response) PromptState {
	switch r {
	case core.ResponseRateNow:
		return PromptRateChosen
	case core.ResponseRateLater:
		return PromptLaterChosen
	case core.ResponseNoThanks:
		return PromptCancelChosen
	default:
		return PromptIdle
	}
}

// PromptResult describes one completed prompt.
type PromptResult struct {
	Response core.Response
	Outcome  core.EventType
	// StoreErr is set when "Rate Now" could not open the store listing.
	StoreErr error
}

// Prompter drives the reminder dialog: show, block for exactly one response,
// apply the transition to the in-memory state, destroy the dialog. It never
// persists; the caller does.
type Prompter struct {
	dialog Dialog
	loop   EventLoop
	text   PromptText
	log    *slog.Logger
	// read without the engine lock while a prompt blocks
	state  atomic.Int32
	onStep func(PromptState)
}

func NewPrompter(dialog Dialog, loop EventLoop, text PromptText, log *slog.Logger) *Prompter {
	if log == nil {
		log = discardLogger()
	}
	return &Prompter{dialog: dialog, loop: loop, text: text, log: log}
}

// State returns the current lifecycle state.
func (p *Prompter) State() PromptState { return PromptState(p.state.Load()) }

func (p *Prompter) enter(s PromptState) {
	p.state.Store(int32(s))
	if p.onStep != nil {
		p.onStep(s)
	}
}

// Run shows the reminder and applies the user's answer to st. now supplies the
// timestamp for postpone stamps; openStore opens the store listing for
// "Rate Now". A dialog or event loop failure aborts without touching st and
// returns an error wrapping core.ErrPlatform.
func (p *Prompter) Run(ctx context.Context, st *core.State, now func() int64, openStore func(context.Context) error) (PromptResult, error) {
	if p.dialog == nil || p.loop == nil {
		return PromptResult{}, core.Err(core.ErrPlatform, fmt.Errorf("no dialog service"), "")
	}
	p.enter(PromptShowing)
	alert, err := p.show(ctx)
	if err != nil {
		p.enter(PromptIdle)
		p.log.Debug("reminder dialog could not be shown", "error", err)
		return PromptResult{}, core.Err(core.ErrPlatform, err, "show reminder")
	}
	defer func() {
		alert.Destroy()
		p.enter(PromptIdle)
	}()

	p.enter(PromptAwaiting)
	idx, err := p.await(ctx)
	if err != nil {
		p.log.Debug("reminder response not received", "error", err)
		return PromptResult{}, core.Err(core.ErrPlatform, err, "wait for reminder response")
	}

	resp := core.ResponseFromIndex(idx)
	p.enter(terminalState(resp))
	if resp == core.ResponseUnknown {
		p.log.Debug("unknown selection in reminder response", "index", idx)
	}
	outcome, storeErr := core.ApplyResponse(st, resp, now(), func() error {
		if openStore == nil {
			return fmt.Errorf("no store opener")
		}
		return openStore(ctx)
	})
	p.log.Debug("reminder answered", "response", resp, "outcome", outcome, "rated", st.Rated, "postponed", st.Postponed)
	return PromptResult{Response: resp, Outcome: outcome, StoreErr: storeErr}, nil
}

// show builds and displays the alert. On any failure the partially built alert
// is destroyed before returning.
func (p *Prompter) show(ctx context.Context) (a Alert, err error) {
	a, err = p.dialog.NewAlert(ctx)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	defer func() {
		if err != nil {
			a.Destroy()
			a = nil
		}
	}()
	if err = a.SetMessage(p.text.Message); err != nil {
		return a, fmt.Errorf("set alert message: %w", err)
	}
	for _, label := range p.text.buttons() {
		if err = a.AddButton(label); err != nil {
			return a, fmt.Errorf("add %q button: %w", label, err)
		}
	}
	if err = a.Show(ctx); err != nil {
		return a, fmt.Errorf("show alert: %w", err)
	}
	return a, nil
}

// await pumps the host event loop, discarding events of other domains, until
// the dialog answers.
func (p *Prompter) await(ctx context.Context) (int, error) {
	for {
		ev, err := p.loop.Next(ctx)
		if err != nil {
			return 0, err
		}
		if ev.Domain == DomainDialog {
			return ev.SelectedIndex, nil
		}
	}
}
