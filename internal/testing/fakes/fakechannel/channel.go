// Package fakechannel provides a synchronous, scripted implementation of the
// driver's channel over a simulated appliance. Reads never block: when the
// pattern is not in the pending output they fail with channel.ErrTimeout.
package fakechannel

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/acolita/appliance-shell/internal/channel"
)

// defaultPromptPattern accepts any common shell terminator, optionally
// followed by color resets, so tests can feed prompts the driver must reject.
const defaultPromptPattern = `[#>$%](?:\x1b\[[0-9;]*m)*\s*$`

// Responder answers one written line.
type Responder func(line string) string

// Options configures a Channel.
type Options struct {
	// PromptPattern bounds ReadUntilPrompt.
	PromptPattern string
	// GlobalDelayFactor makes SelectDelayFactor return the larger of the
	// requested and the global factor. Zero returns the request unchanged.
	GlobalDelayFactor float64
	// Ansi enables StripAnsiEscapeCodes.
	Ansi bool
}

// Channel is a fake appliance channel.
type Channel struct {
	mu        sync.Mutex
	opts      Options
	prompt    *regexp.Regexp
	responder Responder
	pending   strings.Builder
	partial   string

	writes    []string
	reads     []string
	delays    []float64
	clears    int
	writeErr  error
	readErrAt map[int]error
}

// New returns a channel whose written lines are answered by responder.
func New(responder Responder, opts Options) *Channel {
	if opts.PromptPattern == "" {
		opts.PromptPattern = defaultPromptPattern
	}
	return &Channel{
		opts:      opts,
		prompt:    regexp.MustCompile(opts.PromptPattern),
		responder: responder,
		readErrAt: make(map[int]error),
	}
}

// Feed queues output as if the appliance had sent it unprompted.
func (c *Channel) Feed(data string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.WriteString(data)
	return c
}

// FailWrites makes every subsequent write return err.
func (c *Channel) FailWrites(err error) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
	return c
}

// FailRead makes the n-th read (zero based) return err.
func (c *Channel) FailRead(n int, err error) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErrAt[n] = err
	return c
}

// WriteChannel answers every complete line through the responder.
func (c *Channel) WriteChannel(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, text)

	c.partial += text
	for {
		idx := strings.IndexByte(c.partial, '\n')
		if idx < 0 {
			return nil
		}
		line := c.partial[:idx]
		c.partial = c.partial[idx+1:]
		if c.responder != nil {
			c.pending.WriteString(c.responder(line))
		}
	}
}

// ReadUntilPattern consumes pending output up to the end of the first match.
func (c *Channel) ReadUntilPattern(ctx context.Context, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("compile read pattern %q: %w", pattern, err)
	}
	return c.readUntil(ctx, re)
}

// ReadUntilPrompt consumes pending output up to a prompt-shaped suffix.
func (c *Channel) ReadUntilPrompt(ctx context.Context) (string, error) {
	return c.readUntil(ctx, c.prompt)
}

func (c *Channel) readUntil(ctx context.Context, re *regexp.Regexp) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.reads)
	if err, ok := c.readErrAt[n]; ok {
		c.reads = append(c.reads, "")
		return "", err
	}

	data := c.pending.String()
	loc := re.FindStringIndex(data)
	if loc == nil {
		c.reads = append(c.reads, "")
		return "", &channel.TimeoutError{Pattern: re.String(), Buffered: data}
	}

	out := data[:loc[1]]
	c.pending.Reset()
	c.pending.WriteString(data[loc[1]:])
	c.reads = append(c.reads, out)
	return out, nil
}

// ClearBuffer drops pending output.
func (c *Channel) ClearBuffer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.Reset()
	c.clears++
}

// SelectDelayFactor records requested.
func (c *Channel) SelectDelayFactor(requested float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, requested)
	if c.opts.GlobalDelayFactor > requested {
		return c.opts.GlobalDelayFactor
	}
	return requested
}

// StripAnsiEscapeCodes strips escape sequences in ANSI mode.
func (c *Channel) StripAnsiEscapeCodes(text string) string {
	if !c.opts.Ansi {
		return text
	}
	return channel.StripANSI(text)
}

// NormalizeCmd trims trailing line breaks and appends "\n".
func (c *Channel) NormalizeCmd(cmd string) string {
	return strings.TrimRight(cmd, "\r\n") + "\n"
}

// --- Test inspection methods ---

// Writes returns every WriteChannel payload in order.
func (c *Channel) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

// Commands returns the non-empty written lines, trimmed.
func (c *Channel) Commands() []string {
	var out []string
	for _, w := range c.Writes() {
		if cmd := strings.TrimSpace(w); cmd != "" {
			out = append(out, cmd)
		}
	}
	return out
}

// Reads returns what every read returned, in order. Failed reads are "".
func (c *Channel) Reads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.reads...)
}

// DelayFactors returns every factor passed to SelectDelayFactor.
func (c *Channel) DelayFactors() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.delays...)
}

// Clears returns how many times ClearBuffer was called.
func (c *Channel) Clears() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

// Pending returns unread output.
func (c *Channel) Pending() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.String()
}
