package ssh

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/acolita/appliance-shell/internal/adapters/realfs"
	"github.com/acolita/appliance-shell/internal/ports"
)

// InsecureKnownHosts disables host key verification when used as the
// known_hosts path.
const InsecureKnownHosts = "insecure"

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	KeyPath       string // Path to private key file
	KeyPassphrase string // Passphrase for encrypted keys
	UseAgent      bool   // Use SSH agent for authentication
	Password      string // Password for password and keyboard-interactive auth
	FS            ports.FileSystem
}

// BuildAuthMethods constructs SSH auth methods from config. Agent keys come
// first, then the key file, then the password.
func BuildAuthMethods(cfg AuthConfig) ([]ssh.AuthMethod, error) {
	fsys := cfg.FS
	if fsys == nil {
		fsys = realfs.New()
	}

	var methods []ssh.AuthMethod
	if cfg.UseAgent {
		if agentAuth, err := sshAgentAuth(fsys.Getenv("SSH_AUTH_SOCK")); err == nil {
			methods = append(methods, agentAuth)
		} else {
			slog.Debug("ssh agent unavailable", slog.String("error", err.Error()))
		}
	}

	if cfg.KeyPath != "" {
		keyAuth, err := privateKeyAuth(fsys, cfg.KeyPath, cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("private key auth: %w", err)
		}
		methods = append(methods, keyAuth)
	}

	if cfg.Password != "" {
		methods = append(methods, PasswordAuth(cfg.Password), KeyboardInteractiveAuth(cfg.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no authentication methods available")
	}
	return methods, nil
}

func sshAgentAuth(socket string) (ssh.AuthMethod, error) {
	if socket == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("dial agent: %w", err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

func privateKeyAuth(fsys ports.FileSystem, keyPath, passphrase string) (ssh.AuthMethod, error) {
	keyData, err := fsys.ReadFile(ExpandPath(fsys, keyPath))
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

// BuildHostKeyCallback creates a host key callback from a known_hosts file.
// An empty path means ~/.ssh/known_hosts. When the file does not exist every
// key is accepted and logged at warn.
func BuildHostKeyCallback(fsys ports.FileSystem, knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == InsecureKnownHosts {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if fsys == nil {
		fsys = realfs.New()
	}
	if knownHostsPath == "" {
		knownHostsPath = "~/.ssh/known_hosts"
	}

	expanded := ExpandPath(fsys, knownHostsPath)
	if _, err := os.Stat(expanded); os.IsNotExist(err) {
		return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			slog.Warn("accepting unknown host key",
				slog.String("host", hostname),
				slog.String("fingerprint", ssh.FingerprintSHA256(key)),
			)
			return nil
		}, nil
	}

	callback, err := knownhosts.New(expanded)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return callback, nil
}

// ExpandPath expands a leading ~/ to the home directory.
func ExpandPath(fsys ports.FileSystem, path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := fsys.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// PasswordAuth returns a password auth method.
func PasswordAuth(password string) ssh.AuthMethod {
	return ssh.Password(password)
}

// KeyboardInteractiveAuth answers every challenge with password, which is
// how most appliance sshd builds ask for it.
func KeyboardInteractiveAuth(password string) ssh.AuthMethod {
	return ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	})
}
