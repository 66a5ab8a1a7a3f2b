// Package simappliance simulates the line-oriented shell of a wireless access
// point: it echoes input, prints a prompt after every line, refuses the paging
// toggle outside configuration mode, and can be told to misbehave.
package simappliance

import (
	"fmt"
	"strings"
	"sync"
)

// Options configures a simulated appliance.
type Options struct {
	Hostname      string
	Terminator    string // "#" unless set
	PagingCommand string // "no more" unless set
	// IgnoreConfigure makes "configure" a silent no-op.
	IgnoreConfigure bool
	// LockConfigure makes "configure" fail with a lock message that still
	// mentions the (config) marker.
	LockConfigure bool
	// IgnoreEnd makes "end" and "exit" silent no-ops in configuration mode.
	IgnoreEnd bool
	// ANSI wraps every prompt in color escape sequences.
	ANSI bool
}

// Appliance is a concurrency-safe shell state machine.
type Appliance struct {
	mu       sync.Mutex
	opts     Options
	inConfig bool
	paging   bool
	lines    []string
}

// New returns an appliance in operational mode with paging enabled.
func New(opts Options) *Appliance {
	if opts.Hostname == "" {
		opts.Hostname = "AP"
	}
	if opts.Terminator == "" {
		opts.Terminator = "#"
	}
	if opts.PagingCommand == "" {
		opts.PagingCommand = "no more"
	}
	return &Appliance{opts: opts, paging: true}
}

// Prompt returns the prompt the appliance currently prints, including the
// trailing space.
func (a *Appliance) Prompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.promptLocked()
}

func (a *Appliance) promptLocked() string {
	p := a.opts.Hostname
	if a.inConfig {
		p += "(config)"
	}
	p += a.opts.Terminator
	if a.opts.ANSI {
		p = "\x1b[1;32m" + p + "\x1b[0m"
	}
	return p + " "
}

// Banner is what the appliance prints right after login.
func (a *Appliance) Banner() string {
	return "\r\nWelcome to the Wireless Array\r\n" + a.Prompt()
}

// Handle consumes one input line (without its terminator) and returns the
// bytes the appliance would send back: echo, output and the next prompt.
func (a *Appliance) Handle(line string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	line = strings.TrimRight(line, "\r\n")
	a.lines = append(a.lines, line)

	var out strings.Builder
	out.WriteString(line)
	out.WriteString("\r\n")
	out.WriteString(a.executeLocked(strings.TrimSpace(line)))
	out.WriteString(a.promptLocked())
	return out.String()
}

func (a *Appliance) executeLocked(cmd string) string {
	switch {
	case cmd == "":
		return ""
	case cmd == "configure":
		switch {
		case a.opts.LockConfigure:
			return "% Unable to enter (config) mode: locked by another session\r\n"
		case a.opts.IgnoreConfigure:
			return ""
		}
		a.inConfig = true
		return ""
	case cmd == "end" || cmd == "exit":
		if a.inConfig && !a.opts.IgnoreEnd {
			a.inConfig = false
		}
		return ""
	case cmd == a.opts.PagingCommand:
		if !a.inConfig {
			return "% Command valid only in configuration mode\r\n"
		}
		a.paging = false
		return ""
	case strings.HasPrefix(cmd, "show "):
		return a.showLocked(strings.TrimPrefix(cmd, "show "))
	case a.inConfig:
		return ""
	}
	return fmt.Sprintf("%% Unknown command: %s\r\n", cmd)
}

func (a *Appliance) showLocked(what string) string {
	var body []string
	switch what {
	case "version":
		body = []string{"Software Version 6.5.0", "Model XR-620", "Uptime 12 days"}
	case "interfaces":
		for i := 1; i <= 30; i++ {
			body = append(body, fmt.Sprintf("iap%d    up    channel %d", i, i%11+1))
		}
	default:
		return fmt.Sprintf("%% Unknown show target: %s\r\n", what)
	}

	if a.paging && len(body) > 24 {
		return strings.Join(body[:24], "\r\n") + "\r\n--More--"
	}
	return strings.Join(body, "\r\n") + "\r\n"
}

// InConfig reports whether the appliance is in configuration mode.
func (a *Appliance) InConfig() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inConfig
}

// PagingEnabled reports whether output paging is still on.
func (a *Appliance) PagingEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paging
}

// Lines returns every input line received, in order.
func (a *Appliance) Lines() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.lines...)
}
