// Package fakedialog provides a test fake for ports.CredentialPrompt.
package fakedialog

import (
	"sync"

	"github.com/acolita/appliance-shell/internal/ports"
)

// Prompt answers every credential request with a fixed password.
type Prompt struct {
	mu       sync.Mutex
	password string
	err      error
	requests []ports.CredentialRequest
}

// New returns a prompt that answers with password.
func New(password string) *Prompt {
	return &Prompt{password: password}
}

// SetError makes every subsequent request fail with err.
func (p *Prompt) SetError(err error) *Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	return p
}

// PromptPassword records req and returns the configured answer.
func (p *Prompt) PromptPassword(req ports.CredentialRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return "", p.err
	}
	return p.password, nil
}

// Requests returns every request received, in order.
func (p *Prompt) Requests() []ports.CredentialRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.CredentialRequest(nil), p.requests...)
}

var _ ports.CredentialPrompt = (*Prompt)(nil)
