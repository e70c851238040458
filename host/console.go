// Package host provides terminal renditions of the engine's host
// collaborators: a console dialog with its event loop, a TCP connectivity
// probe and a command based deep-link opener.
package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"appraisekit/engine"
)

// DomainConsole tags lines that are not an answer to an open dialog.
const DomainConsole engine.Domain = "console"

// Console renders alerts as numbered menus on out and reads answers from in.
// It implements engine.Platform, engine.Dialog and engine.EventLoop.
type Console struct {
	out io.Writer

	mu      sync.Mutex
	in      *bufio.Scanner
	lines   chan string
	readErr error
	started bool
	open    *consoleAlert
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewScanner(in), out: out}
}

// Init starts the input reader.
func (c *Console) Init(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked()
	return nil
}

func (c *Console) Shutdown() error { return nil }

func (c *Console) startLocked() {
	if c.started {
		return
	}
	c.started = true
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		for c.in.Scan() {
			c.lines <- c.in.Text()
		}
		c.mu.Lock()
		c.readErr = c.in.Err()
		c.mu.Unlock()
	}()
}

func (c *Console) NewAlert(context.Context) (engine.Alert, error) {
	if c.out == nil {
		return nil, errors.New("console has no output")
	}
	return &consoleAlert{console: c}, nil
}

// Next blocks for one input line. A number selecting a button of the alert
// on screen is a dialog event with the zero based button index; anything
// else is a console event.
func (c *Console) Next(ctx context.Context) (engine.HostEvent, error) {
	c.mu.Lock()
	c.startLocked()
	lines := c.lines
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return engine.HostEvent{}, ctx.Err()
	case line, ok := <-lines:
		if !ok {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return engine.HostEvent{}, fmt.Errorf("console input closed: %w", err)
		}
		return c.classify(line), nil
	}
}

func (c *Console) classify(line string) engine.HostEvent {
	c.mu.Lock()
	a := c.open
	c.mu.Unlock()
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if a == nil || err != nil || n < 1 || n > len(a.buttons) {
		if a != nil {
			fmt.Fprintf(c.out, "Please choose 1-%d.\n", len(a.buttons))
		}
		return engine.HostEvent{Domain: DomainConsole, SelectedIndex: -1}
	}
	return engine.HostEvent{Domain: engine.DomainDialog, SelectedIndex: n - 1}
}

type consoleAlert struct {
	console   *Console
	message   string
	buttons   []string
	destroyed bool
}

func (a *consoleAlert) SetMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty alert message")
	}
	a.message = text
	return nil
}

func (a *consoleAlert) AddButton(label string) error {
	if strings.TrimSpace(label) == "" {
		return errors.New("empty button label")
	}
	a.buttons = append(a.buttons, label)
	return nil
}

func (a *consoleAlert) Show(context.Context) error {
	if a.destroyed {
		return errors.New("alert destroyed")
	}
	if len(a.buttons) == 0 {
		return errors.New("alert has no buttons")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", a.message)
	for i, label := range a.buttons {
		fmt.Fprintf(&b, "  [%d] %s\n", i+1, label)
	}
	b.WriteString("> ")
	if _, err := io.WriteString(a.console.out, b.String()); err != nil {
		return err
	}
	a.console.mu.Lock()
	a.console.open = a
	a.console.mu.Unlock()
	return nil
}

func (a *consoleAlert) Destroy() {
	a.destroyed = true
	a.console.mu.Lock()
	if a.console.open == a {
		a.console.open = nil
	}
	a.console.mu.Unlock()
}
