// Package fakepty provides an in-memory terminal stream for testing the
// channel layer without SSH or a real pseudo-terminal.
package fakepty

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// Responder produces the bytes echoed back for one written line.
type Responder func(line string) string

// PTY is a fake terminal stream. Reads block until data is fed or the PTY is
// closed; writes are captured and, when a Responder is set, every complete
// line is answered.
type PTY struct {
	mu        sync.Mutex
	cond      *sync.Cond
	pending   bytes.Buffer // bytes waiting to be read
	written   bytes.Buffer // everything ever written
	partial   string       // current unterminated input line
	responder Responder
	closed    bool
	writeErr  error
}

// New creates a new fake PTY.
func New() *PTY {
	p := &PTY{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetResponder answers each written line with r(line).
func (p *PTY) SetResponder(r Responder) *PTY {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responder = r
	return p
}

// SetWriteError makes every subsequent Write fail with err.
func (p *PTY) SetWriteError(err error) *PTY {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
	return p
}

// Feed queues data to be returned by Read.
func (p *PTY) Feed(data string) *PTY {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.WriteString(data)
	p.cond.Broadcast()
	return p
}

// Read implements io.Reader, blocking until data is available.
func (p *PTY) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.pending.Len() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.pending.Len() == 0 {
		return 0, io.EOF
	}
	return p.pending.Read(b)
}

// Write implements io.Writer.
func (p *PTY) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}

	p.written.Write(b)
	if p.responder == nil {
		return len(b), nil
	}

	p.partial += string(b)
	for {
		idx := strings.IndexByte(p.partial, '\n')
		if idx < 0 {
			break
		}
		line := p.partial[:idx]
		p.partial = p.partial[idx+1:]
		p.pending.WriteString(p.responder(line))
	}
	p.cond.Broadcast()
	return len(b), nil
}

// Close unblocks pending reads with io.EOF.
func (p *PTY) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// --- Test inspection methods ---

// Written returns all data that was written to the PTY.
func (p *PTY) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// IsClosed returns true if Close() was called.
func (p *PTY) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
