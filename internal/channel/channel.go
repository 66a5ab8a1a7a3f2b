// Package channel turns a raw terminal byte stream (SSH PTY, local PTY)
// into the pattern-bounded read/write primitives the appliance driver needs.
package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/acolita/appliance-shell/internal/adapters/realclock"
	"github.com/acolita/appliance-shell/internal/ports"
	"github.com/acolita/appliance-shell/internal/prompt"
)

// Defaults applied by New.
const (
	DefaultReadTimeout = 10 * time.Second
	DefaultLineEnding  = "\n"
	readChunkSize      = 4096
)

// ansiRegex matches CSI sequences, OSC sequences and charset selection.
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07|\x1b[()][0-9A-Za-z]`)

// Stream is the byte transport under a Channel.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Recorder receives a copy of everything written and read.
type Recorder interface {
	RecordInput(data string) error
	RecordOutput(data string) error
}

// MaskedRecorder is implemented by recorders that can log secret input
// without its content.
type MaskedRecorder interface {
	RecordMaskedInput(length int) error
}

// Options configures a Channel.
type Options struct {
	// ReadTimeout bounds every read. Zero means DefaultReadTimeout.
	ReadTimeout time.Duration
	// GlobalDelayFactor and FastCLI drive SelectDelayFactor.
	GlobalDelayFactor float64
	FastCLI           bool
	// AnsiEscapeCodes strips terminal control sequences from received data.
	AnsiEscapeCodes bool
	// LineEnding is appended by NormalizeCmd.
	LineEnding string
	// Terminators shape the default prompt pattern.
	Terminators string
	// PromptPattern overrides the regex used by ReadUntilPrompt.
	PromptPattern string
	Clock         ports.Clock
	Recorder      Recorder
}

// Channel serialises access to a Stream. A background goroutine drains the
// stream so reads can be bounded by a timeout and a context.
type Channel struct {
	stream Stream
	opts   Options
	clock  ports.Clock
	prompt *regexp.Regexp

	mu  sync.Mutex // one operation at a time
	buf bytes.Buffer

	chunks    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	errMu   sync.Mutex
	readErr error
}

// New wraps stream and starts draining it.
func New(stream Stream, opts Options) (*Channel, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream is required")
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.GlobalDelayFactor <= 0 {
		opts.GlobalDelayFactor = 1
	}
	if opts.LineEnding == "" {
		opts.LineEnding = DefaultLineEnding
	}
	if opts.Terminators == "" {
		opts.Terminators = prompt.DefaultTerminators
	}
	if opts.PromptPattern == "" {
		opts.PromptPattern = prompt.ShapePattern(opts.Terminators)
	}
	re, err := regexp.Compile(opts.PromptPattern)
	if err != nil {
		return nil, fmt.Errorf("compile prompt pattern: %w", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = realclock.New()
	}

	c := &Channel{
		stream: stream,
		opts:   opts,
		clock:  clk,
		prompt: re,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// readLoop copies stream data into chunks until the stream fails or the
// channel is closed.
func (c *Channel) readLoop() {
	defer close(c.chunks)

	buf := make([]byte, readChunkSize)
	for {
		n, err := c.stream.Read(buf)
		if n > 0 {
			chunk := bytes.Clone(buf[:n])
			select {
			case c.chunks <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.errMu.Lock()
			c.readErr = err
			c.errMu.Unlock()
			return
		}
	}
}

// WriteChannel sends text as-is. Callers normalise line endings first.
func (c *Channel) WriteChannel(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := io.WriteString(c.stream, text); err != nil {
		return fmt.Errorf("write channel: %w", err)
	}
	if c.opts.Recorder != nil {
		_ = c.opts.Recorder.RecordInput(text)
	}
	slog.Debug("channel write", slog.Int("bytes", len(text)))
	return nil
}

// WriteSecret sends text like WriteChannel but keeps it out of recordings
// and logs.
func (c *Channel) WriteSecret(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := io.WriteString(c.stream, text); err != nil {
		return fmt.Errorf("write channel: %w", err)
	}
	if m, ok := c.opts.Recorder.(MaskedRecorder); ok {
		_ = m.RecordMaskedInput(len(text))
	}
	return nil
}

// ReadUntilPattern blocks until pattern matches the accumulated output and
// returns everything up to the end of the match. Unmatched bytes stay
// buffered for the next read.
func (c *Channel) ReadUntilPattern(ctx context.Context, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("compile read pattern %q: %w", pattern, err)
	}
	return c.readUntil(ctx, re)
}

// ReadUntilPrompt blocks until the output ends with a prompt-shaped line.
func (c *Channel) ReadUntilPrompt(ctx context.Context) (string, error) {
	return c.readUntil(ctx, c.prompt)
}

func (c *Channel) readUntil(ctx context.Context, re *regexp.Regexp) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	timeout := c.clock.After(c.opts.ReadTimeout)
	for {
		if loc := re.FindIndex(c.buf.Bytes()); loc != nil {
			return string(c.buf.Next(loc[1])), nil
		}

		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				return "", c.closedErr()
			}
			c.accept(chunk)
		case <-timeout:
			return "", &TimeoutError{
				Pattern:  re.String(),
				Buffered: c.buf.String(),
				After:    c.opts.ReadTimeout,
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// accept appends a received chunk to the buffer. Caller holds mu.
func (c *Channel) accept(chunk []byte) {
	data := string(chunk)
	if c.opts.Recorder != nil {
		_ = c.opts.Recorder.RecordOutput(data)
	}
	if c.opts.AnsiEscapeCodes {
		data = ansiRegex.ReplaceAllString(data, "")
	}
	c.buf.WriteString(data)
}

func (c *Channel) closedErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr != nil && c.readErr != io.EOF {
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	}
	return ErrClosed
}

// ClearBuffer discards buffered and already-received bytes.
func (c *Channel) ClearBuffer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				c.buf.Reset()
				return
			}
			if c.opts.Recorder != nil {
				_ = c.opts.Recorder.RecordOutput(string(chunk))
			}
		default:
			c.buf.Reset()
			return
		}
	}
}

// SelectDelayFactor resolves requested against the global delay factor.
// With FastCLI the smaller of the two wins, otherwise the larger.
func (c *Channel) SelectDelayFactor(requested float64) float64 {
	global := c.opts.GlobalDelayFactor
	if c.opts.FastCLI {
		if requested <= global {
			return requested
		}
		return global
	}
	if requested >= global {
		return requested
	}
	return global
}

// StripAnsiEscapeCodes removes terminal control sequences when ANSI mode is on.
func (c *Channel) StripAnsiEscapeCodes(text string) string {
	if !c.opts.AnsiEscapeCodes {
		return text
	}
	return StripANSI(text)
}

// NormalizeCmd trims trailing line breaks and appends the configured ending.
func (c *Channel) NormalizeCmd(cmd string) string {
	return strings.TrimRight(cmd, "\r\n") + c.opts.LineEnding
}

// Close stops the reader and closes the stream.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.stream.Close()
	})
	return err
}

// StripANSI removes ANSI escape sequences from s unconditionally.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}
