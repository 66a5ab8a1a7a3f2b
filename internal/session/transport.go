package session

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/acolita/appliance-shell/internal/channel"
	"github.com/acolita/appliance-shell/internal/config"
	"github.com/acolita/appliance-shell/internal/pty"
	"github.com/acolita/appliance-shell/internal/security"
	sshclient "github.com/acolita/appliance-shell/internal/ssh"
)

// ConsoleStarter spawns the local program behind a pty transport.
type ConsoleStarter func(opts pty.Options) (channel.Stream, error)

// StartConsole runs the program under a real pseudo-terminal.
func StartConsole(opts pty.Options) (channel.Stream, error) {
	return pty.Start(opts)
}

// sshStream closes the SSH connection together with its shell.
type sshStream struct {
	*sshclient.Shell
	client *sshclient.Client
}

func (s *sshStream) Close() error {
	err := s.Shell.Close()
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *Manager) openStream(a config.ApplianceConfig, sc config.SessionConfig) (channel.Stream, error) {
	switch a.Transport {
	case config.TransportPTY:
		return m.startConsole(pty.Options{Command: a.Command})
	case config.TransportSSH, "":
		return m.openSSH(a, sc)
	}
	return nil, fmt.Errorf("unsupported transport %q", a.Transport)
}

func (m *Manager) openSSH(a config.ApplianceConfig, sc config.SessionConfig) (channel.Stream, error) {
	methods, err := m.sshAuthMethods(a)
	if err != nil {
		return nil, err
	}
	hostKeys, err := sshclient.BuildHostKeyCallback(m.fs, a.Auth.KnownHosts)
	if err != nil {
		return nil, err
	}

	client, err := sshclient.NewClient(sshclient.ClientOptions{
		Host:            a.Host,
		Port:            a.Port,
		User:            a.User,
		AuthMethods:     methods,
		HostKeyCallback: hostKeys,
		Timeout:         sc.LoginTimeout,
		Clock:           m.clock,
		Dialer:          m.dialer,
		Logger:          m.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := client.Connect(); err != nil {
		if isAuthFailure(err) {
			m.authFailed(a)
		}
		return nil, err
	}
	m.limiter.RecordSuccess(a.Host, a.User)

	shell, err := sshclient.OpenShell(client, sshclient.ShellOptions{})
	if err != nil {
		client.Close()
		return nil, err
	}
	return &sshStream{Shell: shell, client: client}, nil
}

func (m *Manager) sshAuthMethods(a config.ApplianceConfig) ([]ssh.AuthMethod, error) {
	cfg := sshclient.AuthConfig{FS: m.fs}
	switch a.Auth.Type {
	case "key":
		cfg.KeyPath = a.Auth.Path
		if a.Auth.PassphraseEnv != "" {
			cfg.KeyPassphrase = m.fs.Getenv(a.Auth.PassphraseEnv)
		}
	case "agent":
		cfg.UseAgent = true
	default:
		pw, err := m.password(a)
		if err != nil {
			return nil, err
		}
		cfg.Password = string(pw)
		security.WipeBytes(pw)
	}
	return sshclient.BuildAuthMethods(cfg)
}

func (m *Manager) password(a config.ApplianceConfig) ([]byte, error) {
	if m.creds == nil {
		return nil, fmt.Errorf("%w for appliance %q", security.ErrNoPassword, a.Name)
	}
	return m.creds.Password(a)
}

// authFailed counts a rejected login and drops any cached password.
func (m *Manager) authFailed(a config.ApplianceConfig) {
	m.limiter.RecordFailure(a.Host, a.User)
	if m.creds != nil {
		m.creds.Forget(a)
	}
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}
