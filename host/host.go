package host

import (
	"io"
	"time"

	"appraisekit/engine"
)

// DefaultProbeAddr is dialed to decide whether the network is up.
const DefaultProbeAddr = "1.1.1.1:443"

// Terminal assembles an engine.Host around a console on in/out, the default
// TCP probe and the system URL handler.
func Terminal(in io.Reader, out io.Writer) engine.Host {
	c := NewConsole(in, out)
	return engine.Host{
		Platform: c,
		Dialog:   c,
		Loop:     c,
		Network:  NewTCPProbe(DefaultProbeAddr, 2*time.Second),
		Store:    SystemOpener(),
	}
}
