// Package pty spawns a local program under a pseudo-terminal so appliances
// reached through telnet, a serial console client or a jump script can be
// driven like an SSH shell.
package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// Console is a local program attached to a PTY. It satisfies channel.Stream.
type Console struct {
	cmd    *exec.Cmd
	pty    *os.File
	mu     sync.Mutex
	closed bool
}

// Options configures the spawned program.
type Options struct {
	Command []string // argv, e.g. {"telnet", "10.0.0.5"}
	Term    string   // default vt100
	Rows    uint16   // default 24
	Cols    uint16   // default 511
	Dir     string
	Env     []string // appended to the current environment
}

// Start runs opts.Command under a new PTY.
func Start(opts Options) (*Console, error) {
	if len(opts.Command) == 0 || opts.Command[0] == "" {
		return nil, errors.New("command is required")
	}
	if opts.Term == "" {
		opts.Term = "vt100"
	}
	if opts.Rows == 0 {
		opts.Rows = 24
	}
	if opts.Cols == 0 {
		opts.Cols = 511
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "TERM="+opts.Term)
	cmd.Env = append(cmd.Env, opts.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Command[0], err)
	}
	return &Console{cmd: cmd, pty: ptmx}, nil
}

// Read reads program output.
func (c *Console) Read(b []byte) (int, error) {
	return c.pty.Read(b)
}

// Write sends input to the program.
func (c *Console) Write(b []byte) (int, error) {
	return c.pty.Write(b)
}

// Resize changes the PTY window size.
func (c *Console) Resize(rows, cols uint16) error {
	return pty.Setsize(c.pty, &pty.Winsize{Rows: rows, Cols: cols})
}

// Pid returns the process ID of the spawned program.
func (c *Console) Pid() int {
	return c.cmd.Process.Pid
}

// Wait waits for the program to exit.
func (c *Console) Wait() error {
	return c.cmd.Wait()
}

// Close closes the PTY and kills the program if it is still running.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.pty.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pty: %w", err))
	}
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		errs = append(errs, fmt.Errorf("kill process: %w", err))
	}
	return errors.Join(errs...)
}
