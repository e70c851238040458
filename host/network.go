package host

import (
	"context"
	"errors"
	"net"
	"time"
)

// TCPProbe reports the network as available when a TCP connection to Addr
// can be established within Timeout.
type TCPProbe struct {
	Addr    string
	Timeout time.Duration
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewTCPProbe probes addr, e.g. "1.1.1.1:443".
func NewTCPProbe(addr string, timeout time.Duration) *TCPProbe {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := &net.Dialer{Timeout: timeout}
	return &TCPProbe{Addr: addr, Timeout: timeout, dial: d.DialContext}
}

// Available returns false without error when the target is unreachable; an
// error means the probe itself is misconfigured.
func (p *TCPProbe) Available(ctx context.Context) (bool, error) {
	if p.Addr == "" {
		return false, errors.New("no probe address configured")
	}
	if _, _, err := net.SplitHostPort(p.Addr); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	conn, err := p.dial(ctx, "tcp", p.Addr)
	if err != nil {
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}

// Static is a fixed connectivity answer.
type Static bool

func (s Static) Available(context.Context) (bool, error) { return bool(s), nil }
