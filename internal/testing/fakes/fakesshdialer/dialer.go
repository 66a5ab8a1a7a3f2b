// Package fakesshdialer provides a recording ports.SSHDialer for testing.
package fakesshdialer

import (
	"errors"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/acolita/appliance-shell/internal/ports"
)

// ErrNotConfigured is returned when no dial function was set.
var ErrNotConfigured = errors.New("fakesshdialer: not configured")

// DialFunc establishes the connection for a recorded call.
type DialFunc func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)

// Dialer records every Dial call and delegates to a DialFunc.
type Dialer struct {
	mu    sync.Mutex
	dial  DialFunc
	calls []Call
}

// Call is one recorded Dial.
type Call struct {
	Network string
	Addr    string
	User    string
}

// New returns a dialer that fails with ErrNotConfigured until configured.
func New() *Dialer {
	return &Dialer{}
}

// Through forwards dials to the real ssh.Dial, which is how tests reach an
// in-process server while still recording the target.
func Through() *Dialer {
	return &Dialer{dial: ssh.Dial}
}

// Fail makes every dial return err.
func (d *Dialer) Fail(err error) *Dialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dial = func(string, string, *ssh.ClientConfig) (*ssh.Client, error) { return nil, err }
	return d
}

// Dial implements ports.SSHDialer.
func (d *Dialer) Dial(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d.mu.Lock()
	call := Call{Network: network, Addr: addr}
	if config != nil {
		call.User = config.User
	}
	d.calls = append(d.calls, call)
	dial := d.dial
	d.mu.Unlock()

	if dial == nil {
		return nil, ErrNotConfigured
	}
	return dial(network, addr, config)
}

// Calls returns the recorded calls.
func (d *Dialer) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

var _ ports.SSHDialer = (*Dialer)(nil)
