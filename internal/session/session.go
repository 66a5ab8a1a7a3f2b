// Package session connects to appliances, prepares their shells and keeps
// the live sessions addressable by ID.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/acolita/appliance-shell/internal/channel"
	"github.com/acolita/appliance-shell/internal/config"
	"github.com/acolita/appliance-shell/internal/driver"
	"github.com/acolita/appliance-shell/internal/ports"
	"github.com/acolita/appliance-shell/internal/security"
)

// Session is one prepared appliance shell. Operations are serialised.
type Session struct {
	ID        string
	Appliance config.ApplianceConfig
	CreatedAt time.Time

	driver    *driver.Driver
	ch        *channel.Channel
	filter    *security.CommandFilter
	clock     ports.Clock
	marker    string
	recording string
	onClose   func()

	mu       sync.Mutex
	lastUsed time.Time
	closed   bool
}

// Info is a snapshot of a session for listings.
type Info struct {
	ID         string    `json:"id"`
	Appliance  string    `json:"appliance"`
	Address    string    `json:"address,omitempty"`
	Transport  string    `json:"transport"`
	BasePrompt string    `json:"base_prompt"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsed   time.Time `json:"last_used"`
	Recording  string    `json:"recording,omitempty"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:         s.ID,
		Appliance:  s.Appliance.Name,
		Transport:  s.Appliance.Transport,
		BasePrompt: s.driver.BasePrompt(),
		CreatedAt:  s.CreatedAt,
		LastUsed:   s.lastUsed,
		Recording:  s.recording,
	}
	if s.Appliance.Transport == config.TransportSSH {
		info.Address = s.Appliance.Address()
	}
	return info
}

// BasePrompt returns the prompt discovered while preparing the session.
func (s *Session) BasePrompt() string {
	return s.driver.BasePrompt()
}

// Driver exposes the underlying driver, including its no-op privilege
// surface.
func (s *Session) Driver() *driver.Driver {
	return s.driver
}

// do runs fn with the session lock held and refreshes the idle timer.
func (s *Session) do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.lastUsed = s.clock.Now()
	return fn()
}

func (s *Session) allowed(line string) error {
	if s.filter == nil {
		return nil
	}
	if ok, reason := s.filter.IsAllowed(line); !ok {
		return fmt.Errorf("%w: %q: %s", ErrCommandBlocked, line, reason)
	}
	return nil
}

// Send runs one operational command and returns its output.
func (s *Session) Send(ctx context.Context, cmd string) (string, error) {
	if err := s.allowed(cmd); err != nil {
		return "", err
	}
	var out string
	err := s.do(func() error {
		var err error
		out, err = s.driver.SendCommand(ctx, cmd)
		return err
	})
	return out, err
}

// SendConfig applies lines inside configuration mode. Every line is checked
// against the filter before anything is written.
func (s *Session) SendConfig(ctx context.Context, lines []string) (string, error) {
	for _, line := range lines {
		if err := s.allowed(line); err != nil {
			return "", err
		}
	}
	var out string
	err := s.do(func() error {
		var err error
		out, err = s.driver.SendConfigSet(ctx, lines)
		return err
	})
	return out, err
}

// EnterConfigMode enters configuration mode with the configured command.
func (s *Session) EnterConfigMode(ctx context.Context) (string, error) {
	var out string
	err := s.do(func() error {
		var err error
		out, err = s.driver.EnterConfigMode(ctx, "", "")
		return err
	})
	return out, err
}

// ExitConfigMode leaves configuration mode with the configured command.
func (s *Session) ExitConfigMode(ctx context.Context) (string, error) {
	var out string
	err := s.do(func() error {
		var err error
		out, err = s.driver.ExitConfigMode(ctx, "", "")
		return err
	})
	return out, err
}

// IsInConfigMode probes the appliance with the configured marker.
func (s *Session) IsInConfigMode(ctx context.Context) (bool, error) {
	var in bool
	err := s.do(func() error {
		var err error
		in, err = s.driver.IsInConfigMode(ctx, s.marker, "")
		return err
	})
	return in, err
}

// Close tears down the channel and its transport. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	err := s.ch.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}
