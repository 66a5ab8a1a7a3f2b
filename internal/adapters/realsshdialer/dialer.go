// Package realsshdialer provides a real implementation of the SSHDialer port.
package realsshdialer

import (
	"golang.org/x/crypto/ssh"

	"github.com/acolita/appliance-shell/internal/ports"
)

// Dialer implements ports.SSHDialer using ssh.Dial.
type Dialer struct{}

// New creates a new Dialer.
func New() *Dialer {
	return &Dialer{}
}

// Dial establishes an SSH connection to the appliance at addr.
func (d *Dialer) Dial(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	return ssh.Dial(network, addr, config)
}

var _ ports.SSHDialer = (*Dialer)(nil)
