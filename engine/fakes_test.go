package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"appraisekit/core"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock { return &testClock{t: time.Unix(1_700_000_000, 0)} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Clock() core.Clock { return c.Now }

const testDay = 24 * time.Hour

// fakeDialog builds fakeAlerts; failAt names the step that fails:
// "create", "message", "button0".."button2" or "show".
type fakeDialog struct {
	failAt  string
	created int
	alerts  []*fakeAlert
}

func (d *fakeDialog) NewAlert(context.Context) (Alert, error) {
	if d.failAt == "create" {
		return nil, errors.New("create failed")
	}
	d.created++
	a := &fakeAlert{failAt: d.failAt}
	d.alerts = append(d.alerts, a)
	return a, nil
}

func (d *fakeDialog) destroyed() int {
	n := 0
	for _, a := range d.alerts {
		n += a.destroyed
	}
	return n
}

type fakeAlert struct {
	failAt    string
	message   string
	buttons   []string
	shown     bool
	destroyed int
}

func (a *fakeAlert) SetMessage(text string) error {
	if a.failAt == "message" {
		return errors.New("message failed")
	}
	a.message = text
	return nil
}

func (a *fakeAlert) AddButton(label string) error {
	if a.failAt == fmt.Sprintf("button%d", len(a.buttons)) {
		return errors.New("button failed")
	}
	a.buttons = append(a.buttons, label)
	return nil
}

func (a *fakeAlert) Show(context.Context) error {
	if a.failAt == "show" {
		return errors.New("show failed")
	}
	a.shown = true
	return nil
}

func (a *fakeAlert) Destroy() { a.destroyed++ }

// scriptedLoop replays events; once exhausted it returns err or a context error.
type scriptedLoop struct {
	events []HostEvent
	err    error
	pulled int
}

func (l *scriptedLoop) Next(ctx context.Context) (HostEvent, error) {
	if len(l.events) == 0 {
		if l.err != nil {
			return HostEvent{}, l.err
		}
		return HostEvent{}, errors.New("event loop exhausted")
	}
	ev := l.events[0]
	l.events = l.events[1:]
	l.pulled++
	return ev, nil
}

func (l *scriptedLoop) answer(idx ...int) {
	for _, i := range idx {
		l.events = append(l.events, HostEvent{Domain: DomainDialog, SelectedIndex: i})
	}
}

// blockingLoop signals each Next call and then waits for a selected index.
type blockingLoop struct {
	waiting chan struct{}
	release chan int
}

func newBlockingLoop() *blockingLoop {
	return &blockingLoop{waiting: make(chan struct{}, 1), release: make(chan int)}
}

func (l *blockingLoop) Next(ctx context.Context) (HostEvent, error) {
	l.waiting <- struct{}{}
	select {
	case i := <-l.release:
		return HostEvent{Domain: DomainDialog, SelectedIndex: i}, nil
	case <-ctx.Done():
		return HostEvent{}, ctx.Err()
	}
}

type fakeNetwork struct {
	online bool
	err    error
	calls  int
}

func (n *fakeNetwork) Available(context.Context) (bool, error) {
	n.calls++
	return n.online, n.err
}

type fakeOpener struct {
	err  error
	uris []string
}

func (o *fakeOpener) Open(_ context.Context, uri string) error {
	o.uris = append(o.uris, uri)
	return o.err
}

type fakePlatform struct {
	initErr   error
	inits     int
	shutdowns int
}

func (p *fakePlatform) Init(context.Context) error {
	p.inits++
	return p.initErr
}

func (p *fakePlatform) Shutdown() error {
	p.shutdowns++
	return nil
}

// flakyStorage wraps another Storage and fails on demand.
type flakyStorage struct {
	Storage
	loadErr error
	saveErr error
}

func (s *flakyStorage) Load(ctx context.Context) (core.State, error) {
	if s.loadErr != nil {
		return core.State{}, s.loadErr
	}
	return s.Storage.Load(ctx)
}

func (s *flakyStorage) Save(ctx context.Context, st core.State) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Storage.Save(ctx, st)
}
