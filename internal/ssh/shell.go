package ssh

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"
)

// ShellOptions configures the PTY requested for an appliance shell.
type ShellOptions struct {
	Term string // default vt100
	Rows uint32 // default 24
	Cols uint32 // default 511
}

// Shell is an interactive appliance shell over SSH. It satisfies
// channel.Stream.
type Shell struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	mu      sync.Mutex
	closed  bool
}

// OpenShell opens a session on client, requests a PTY and starts the shell.
// Appliances reject exec and env requests, so neither is attempted.
func OpenShell(client *Client, opts ShellOptions) (*Shell, error) {
	if !client.IsConnected() {
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
	}

	if opts.Term == "" {
		opts.Term = "vt100"
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	// Wide window so long configuration lines do not wrap.
	if opts.Cols == 0 {
		opts.Cols = 511
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(opts.Term, int(opts.Rows), int(opts.Cols), modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	return &Shell{session: session, stdin: stdin, stdout: stdout}, nil
}

// Read reads appliance output.
func (s *Shell) Read(b []byte) (int, error) {
	return s.stdout.Read(b)
}

// Write sends input to the appliance.
func (s *Shell) Write(b []byte) (int, error) {
	return s.stdin.Write(b)
}

// Resize changes the PTY window size.
func (s *Shell) Resize(rows, cols uint32) error {
	if err := s.session.WindowChange(int(rows), int(cols)); err != nil {
		return fmt.Errorf("window change: %w", err)
	}
	return nil
}

// Close closes the SSH session. It is safe to call more than once.
func (s *Shell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.session.Close()
}
