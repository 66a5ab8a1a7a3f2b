// Package driver implements the interactive session driver for line-oriented
// appliance shells. It discovers the prompt, suppresses pagination and moves
// between operational and configuration mode, verifying every transition by
// re-probing the live stream.
//
// The driver never caches the configuration-mode state and never retries.
// Timeouts and cancellation are enforced by the Channel it is given.
package driver

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/acolita/appliance-shell/internal/adapters/realclock"
	"github.com/acolita/appliance-shell/internal/ports"
	"github.com/acolita/appliance-shell/internal/prompt"
)

// Channel is the transport the driver talks through. Every read is bounded
// by a pattern and by the channel's own timeout.
type Channel interface {
	WriteChannel(ctx context.Context, text string) error
	ReadUntilPattern(ctx context.Context, pattern string) (string, error)
	ReadUntilPrompt(ctx context.Context) (string, error)
	ClearBuffer()
	SelectDelayFactor(requested float64) float64
	StripAnsiEscapeCodes(text string) string
	NormalizeCmd(cmd string) string
}

// Defaults for Options.
const (
	DefaultPagingCommand     = "no more"
	DefaultConfigCommand     = "configure"
	DefaultExitConfigCommand = "end"
	DefaultDelayFactor       = 1.0

	settleUnit = 100 * time.Millisecond
)

// DefaultConfigPattern is the read bound after the configure command.
var DefaultConfigPattern = regexp.QuoteMeta(prompt.DefaultConfigMarker)

// Options configures a Driver. Zero values select the defaults.
type Options struct {
	Terminators       string
	PagingCommand     string
	ConfigCommand     string
	ConfigPattern     string
	ExitConfigCommand string
	// ExitConfigPattern bounds the read after the exit command. Empty means
	// the default quiescence pattern.
	ExitConfigPattern string
	ConfigMarker      string
	// DelayFactor scales the settle delay before paging is disabled. It is
	// resolved through Channel.SelectDelayFactor. Nil means DefaultDelayFactor.
	DelayFactor *float64
	Clock       ports.Clock
	Events      EventSink
}

// Driver drives one appliance session. It is not safe for concurrent use
// beyond what the Channel itself serialises; use one Driver per connection.
type Driver struct {
	NoPrivilegeMode

	ch     Channel
	opts   Options
	clock  ports.Clock
	events EventSink

	mu         sync.RWMutex
	basePrompt string
	preparing  bool
	prepared   bool // base prompt is sealed
}

// New returns a driver over ch.
func New(ch Channel, opts Options) *Driver {
	if opts.Terminators == "" {
		opts.Terminators = prompt.DefaultTerminators
	}
	if opts.PagingCommand == "" {
		opts.PagingCommand = DefaultPagingCommand
	}
	if opts.ConfigCommand == "" {
		opts.ConfigCommand = DefaultConfigCommand
	}
	if opts.ConfigPattern == "" {
		opts.ConfigPattern = DefaultConfigPattern
	}
	if opts.ExitConfigCommand == "" {
		opts.ExitConfigCommand = DefaultExitConfigCommand
	}
	if opts.ConfigMarker == "" {
		opts.ConfigMarker = prompt.DefaultConfigMarker
	}
	if opts.DelayFactor == nil {
		df := DefaultDelayFactor
		opts.DelayFactor = &df
	}

	clk := opts.Clock
	if clk == nil {
		clk = realclock.New()
	}
	events := opts.Events
	if events == nil {
		events = slogEvents
	}

	return &Driver{
		ch:     ch,
		opts:   opts,
		clock:  clk,
		events: events,
	}
}

// DelayFactor returns a pointer to f for Options.DelayFactor.
func DelayFactor(f float64) *float64 {
	return &f
}

// Capabilities is the full operation surface of a Driver.
type Capabilities interface {
	PrivilegeCapabilities

	PrepareSession(ctx context.Context) (string, error)
	DisablePaging(ctx context.Context) (string, error)
	DiscoverPrompt(ctx context.Context) (string, error)
	BasePrompt() string
	IsInConfigMode(ctx context.Context, marker, pattern string) (bool, error)
	EnterConfigMode(ctx context.Context, command, pattern string) (string, error)
	ExitConfigMode(ctx context.Context, command, pattern string) (string, error)
	SendCommand(ctx context.Context, cmd string) (string, error)
	SendConfigSet(ctx context.Context, lines []string) (string, error)
}

var _ Capabilities = (*Driver)(nil)

// PrepareSession runs once after connecting: it disables paging and then
// discovers the base prompt. The returned string is the paging transcript.
// After a successful run the base prompt is sealed. A failed run may be
// retried on the same driver.
func (d *Driver) PrepareSession(ctx context.Context) (string, error) {
	d.mu.Lock()
	if d.prepared || d.preparing {
		d.mu.Unlock()
		return "", ErrAlreadyPrepared
	}
	d.preparing = true
	d.mu.Unlock()

	out, err := d.prepare(ctx)

	d.mu.Lock()
	d.preparing = false
	d.prepared = err == nil
	d.mu.Unlock()
	return out, err
}

func (d *Driver) prepare(ctx context.Context) (string, error) {
	out, err := d.DisablePaging(ctx)
	if err != nil {
		return out, err
	}
	if _, err := d.discoverPrompt(ctx, true); err != nil {
		return out, err
	}
	return out, nil
}

// Prepared reports whether PrepareSession has completed.
func (d *Driver) Prepared() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.prepared
}

// BasePrompt returns the prompt without its terminator, or "" before
// discovery.
func (d *Driver) BasePrompt() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.basePrompt
}

// Terminators returns the accepted prompt terminators.
func (d *Driver) Terminators() string {
	return d.opts.Terminators
}

// quiescencePattern is the read bound used when a caller passes no pattern:
// the base prompt followed by a terminator once it is known, otherwise a
// prompt-shaped line at the end of the output.
func (d *Driver) quiescencePattern() string {
	if base := d.BasePrompt(); base != "" {
		return prompt.BasePromptPattern(base, d.opts.Terminators)
	}
	return prompt.LinePromptPattern(d.opts.Terminators)
}

func (d *Driver) emit(ev Event) {
	ev.Time = d.clock.Now()
	d.events(ev)
}

// SendCommand writes cmd and returns the output up to the next prompt.
func (d *Driver) SendCommand(ctx context.Context, cmd string) (string, error) {
	if err := d.ch.WriteChannel(ctx, d.ch.NormalizeCmd(cmd)); err != nil {
		return "", err
	}
	out, err := d.ch.ReadUntilPrompt(ctx)
	if err != nil {
		return out, err
	}
	out = d.ch.StripAnsiEscapeCodes(out)
	d.emit(Event{Kind: EventCommandSent, Data: out})
	return out, nil
}

// SendConfigSet enters configuration mode, sends each line and exits again.
// The returned transcript covers all three phases.
func (d *Driver) SendConfigSet(ctx context.Context, lines []string) (string, error) {
	if len(lines) == 0 {
		return "", nil
	}

	out, err := d.EnterConfigMode(ctx, "", "")
	if err != nil {
		return out, err
	}
	for _, line := range lines {
		resp, err := d.SendCommand(ctx, line)
		out += resp
		if err != nil {
			return out, fmt.Errorf("config line %q: %w", line, err)
		}
	}
	resp, err := d.ExitConfigMode(ctx, "", "")
	out += resp
	return out, err
}
