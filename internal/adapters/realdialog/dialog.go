// Package realdialog provides a TUI-based CredentialPrompt using charmbracelet/huh.
package realdialog

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/acolita/appliance-shell/internal/ports"
)

// Provider implements ports.CredentialPrompt with a huh form on the
// controlling terminal.
type Provider struct {
	// Accessible switches huh into screen-reader friendly line mode.
	Accessible bool
}

// New returns a new TUI credential prompt.
func New() *Provider {
	return &Provider{}
}

// PromptPassword shows a masked password input for the appliance.
func (p *Provider) PromptPassword(req ports.CredentialRequest) (string, error) {
	var password string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Password for %s", describe(req))).
				Description("Used for this connection only unless saved to the keyring").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	).WithAccessible(p.Accessible)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("password form: %w", err)
	}
	return password, nil
}

func describe(req ports.CredentialRequest) string {
	target := req.Host
	if req.User != "" {
		target = req.User + "@" + req.Host
	}
	if req.Appliance != "" && req.Appliance != req.Host {
		return fmt.Sprintf("%s (%s)", req.Appliance, target)
	}
	return target
}

var _ ports.CredentialPrompt = (*Provider)(nil)
