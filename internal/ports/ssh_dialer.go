package ports

import (
	"golang.org/x/crypto/ssh"
)

// SSHDialer abstracts SSH connection establishment so the appliance
// transport can be exercised against an in-process server.
type SSHDialer interface {
	// Dial establishes an SSH connection to the given address.
	Dial(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}
