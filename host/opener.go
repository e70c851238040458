package host

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// CommandOpener hands store URIs to an external command such as xdg-open.
type CommandOpener struct {
	name string
	args []string
	run  func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewCommandOpener runs name with args followed by the URI.
func NewCommandOpener(name string, args ...string) *CommandOpener {
	return &CommandOpener{name: name, args: args, run: exec.CommandContext}
}

// SystemOpener returns the platform's URL handler.
func SystemOpener() *CommandOpener {
	switch runtime.GOOS {
	case "darwin":
		return NewCommandOpener("open")
	case "windows":
		return NewCommandOpener("rundll32", "url.dll,FileProtocolHandler")
	default:
		return NewCommandOpener("xdg-open")
	}
}

func (o *CommandOpener) Open(ctx context.Context, uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return errors.New("uri is required")
	}
	args := append(append([]string{}, o.args...), uri)
	cmd := o.run(ctx, o.name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", o.name, uri, err, msg)
		}
		return fmt.Errorf("%s %s: %w", o.name, uri, err)
	}
	return nil
}
