// Package security resolves and protects appliance credentials.
package security

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/acolita/appliance-shell/internal/config"
	"github.com/acolita/appliance-shell/internal/ports"
)

// ErrNoPassword means no source produced a password for a password login.
var ErrNoPassword = errors.New("no password available")

// Resolver finds the password of an appliance. Sources are tried in order:
// the configured environment variable, the OS keyring, the in-memory cache
// of earlier prompts, and finally the interactive prompt.
type Resolver struct {
	Env     func(string) string
	Keyring *KeyringStore
	Cache   *PasswordCache
	Prompt  ports.CredentialPrompt
}

// Password returns the login password for a. Callers own the returned slice
// and should wipe it after use.
func (r *Resolver) Password(a config.ApplianceConfig) ([]byte, error) {
	if a.Auth.PasswordEnv != "" && r.Env != nil {
		if v := r.Env(a.Auth.PasswordEnv); v != "" {
			return []byte(v), nil
		}
	}

	if a.Auth.UseKeyring && r.Keyring != nil {
		pw, err := r.Keyring.GetPassword(a.Host, a.User)
		if err != nil {
			slog.Warn("keyring lookup failed",
				slog.String("appliance", a.Name),
				slog.String("error", err.Error()),
			)
		} else if pw != nil {
			return pw, nil
		}
	}

	if r.Cache != nil {
		if pw := r.Cache.Get(a.Name); pw != nil {
			return pw, nil
		}
	}

	if r.Prompt == nil {
		return nil, fmt.Errorf("%w for appliance %q", ErrNoPassword, a.Name)
	}
	entered, err := r.Prompt.PromptPassword(ports.CredentialRequest{
		Appliance: a.Name,
		Host:      a.Host,
		User:      a.User,
	})
	if err != nil {
		return nil, fmt.Errorf("prompt for password: %w", err)
	}
	if entered == "" {
		return nil, fmt.Errorf("%w for appliance %q", ErrNoPassword, a.Name)
	}

	pw := []byte(entered)
	if r.Cache != nil {
		r.Cache.Set(a.Name, pw)
	}
	return pw, nil
}

// Forget drops cached credentials for a, typically after a rejected login.
func (r *Resolver) Forget(a config.ApplianceConfig) {
	if r.Cache != nil {
		r.Cache.Clear(a.Name)
	}
}
