// Package config handles configuration parsing for appliance-shell.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/acolita/appliance-shell/internal/ports"
)

// Transports.
const (
	TransportSSH = "ssh"
	TransportPTY = "pty"
)

// DefaultConfigPath returns the default config file path:
// $XDG_CONFIG_HOME/appliance-shell/config.yaml or ~/.config/appliance-shell/config.yaml
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "appliance-shell", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	Appliances      []ApplianceConfig `yaml:"appliances"`
	Session         SessionConfig     `yaml:"session"`
	Security        SecurityConfig    `yaml:"security"`
	Logging         LoggingConfig     `yaml:"logging"`
	Recording       RecordingConfig   `yaml:"recording"`
	PromptDetection PromptConfig      `yaml:"prompt_detection"`
}

// ApplianceConfig defines one appliance and how to reach it.
type ApplianceConfig struct {
	Name      string        `yaml:"name"`
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	User      string        `yaml:"user"`
	Transport string        `yaml:"transport"` // "ssh" or "pty"
	Command   []string      `yaml:"command"`   // pty only, e.g. ["telnet", "10.0.0.5"]
	Auth      AuthConfig    `yaml:"auth"`
	Session   SessionConfig `yaml:"session"` // per-appliance overrides
}

// Address returns host:port.
func (a ApplianceConfig) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// AuthConfig defines authentication settings.
type AuthConfig struct {
	Type          string `yaml:"type"`           // "key", "password" or "agent"
	Path          string `yaml:"path"`           // path to key file
	PassphraseEnv string `yaml:"passphrase_env"` // env var containing key passphrase
	PasswordEnv   string `yaml:"password_env"`   // env var containing the password
	UseKeyring    bool   `yaml:"use_keyring"`    // look the password up in the OS keyring
	KnownHosts    string `yaml:"known_hosts"`    // known_hosts file, empty accepts any host key
}

// SessionConfig tunes the channel and the driver.
type SessionConfig struct {
	DelayFactor       float64       `yaml:"delay_factor"`
	GlobalDelayFactor float64       `yaml:"global_delay_factor"`
	FastCLI           *bool         `yaml:"fast_cli"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	PagingCommand     string        `yaml:"paging_command"`
	ConfigCommand     string        `yaml:"config_command"`
	ExitConfigCommand string        `yaml:"exit_config_command"`
	ConfigMarker      string        `yaml:"config_marker"`
	Terminators       string        `yaml:"terminators"`
	AnsiEscapeCodes   *bool         `yaml:"ansi_escape_codes"`
	LineEnding        string        `yaml:"line_ending"`
	LoginTimeout      time.Duration `yaml:"login_timeout"`
}

// SecurityConfig defines security settings.
type SecurityConfig struct {
	MaxSessions         int           `yaml:"max_sessions"`
	MaxAuthFailures     int           `yaml:"max_auth_failures"`     // failed logins before lockout
	AuthLockoutDuration time.Duration `yaml:"auth_lockout_duration"` // duration of auth lockout
	PasswordCacheTTL    time.Duration `yaml:"password_cache_ttl"`    // reuse of prompted passwords
	CommandBlocklist    []string      `yaml:"command_blocklist"`     // regex patterns for blocked commands
	CommandAllowlist    []string      `yaml:"command_allowlist"`     // if set, only these patterns allowed
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // sanitize sensitive data from logs
}

// RecordingConfig defines session recording settings.
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"` // enable session recording
	Path    string `yaml:"path"`    // directory to store recordings
}

// PromptConfig defines prompt detection settings.
type PromptConfig struct {
	CustomPatterns []PatternConfig `yaml:"custom_patterns"`
}

// PatternConfig defines a custom prompt pattern.
type PatternConfig struct {
	Name      string `yaml:"name"`
	Regex     string `yaml:"regex"`
	Type      string `yaml:"type"`       // "operational", "config", "pager", "login", "password"
	MaskInput bool   `yaml:"mask_input"` // mask input in logs
}

// DefaultSession returns the session defaults.
func DefaultSession() SessionConfig {
	fast := false
	ansi := false
	return SessionConfig{
		DelayFactor:       1,
		GlobalDelayFactor: 1,
		FastCLI:           &fast,
		ReadTimeout:       10 * time.Second,
		PagingCommand:     "no more",
		ConfigCommand:     "configure",
		ExitConfigCommand: "end",
		ConfigMarker:      "(config)",
		Terminators:       "#>",
		AnsiEscapeCodes:   &ansi,
		LineEnding:        "\n",
		LoginTimeout:      30 * time.Second,
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Session: DefaultSession(),
		Security: SecurityConfig{
			MaxSessions:         32,
			MaxAuthFailures:     3,
			AuthLockoutDuration: 5 * time.Minute,
			PasswordCacheTTL:    15 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
	}
}

// DefaultRecordingPath is the recordings directory next to the default
// config file.
func DefaultRecordingPath() string {
	cfgPath := DefaultConfigPath()
	if cfgPath == "" {
		return "recordings"
	}
	return filepath.Join(filepath.Dir(cfgPath), "recordings")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. An optional FileSystem can be passed for testing; if omitted,
// the real OS is used.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	var data []byte
	var err error
	if len(fsys) > 0 && fsys[0] != nil {
		data, err = fsys[0].ReadFile(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Validate fills defaults and rejects inconsistent appliance entries.
func (c *Config) Validate() error {
	c.Session = c.Session.Merge(DefaultSession())
	if c.Security.MaxSessions <= 0 {
		c.Security.MaxSessions = 32
	}
	if c.Recording.Enabled && c.Recording.Path == "" {
		c.Recording.Path = DefaultRecordingPath()
	}

	seen := make(map[string]bool, len(c.Appliances))
	for i := range c.Appliances {
		a := &c.Appliances[i]
		if a.Name == "" {
			return fmt.Errorf("appliance %d: name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("appliance %q defined twice", a.Name)
		}
		seen[a.Name] = true

		if a.Transport == "" {
			a.Transport = TransportSSH
		}
		switch a.Transport {
		case TransportSSH:
			if a.Host == "" {
				return fmt.Errorf("appliance %q: host is required for ssh", a.Name)
			}
			if a.Port == 0 {
				a.Port = 22
			}
		case TransportPTY:
			if len(a.Command) == 0 {
				return fmt.Errorf("appliance %q: command is required for pty", a.Name)
			}
		default:
			return fmt.Errorf("appliance %q: unknown transport %q", a.Name, a.Transport)
		}
	}
	return nil
}

// Merge returns s with every zero field taken from base.
func (s SessionConfig) Merge(base SessionConfig) SessionConfig {
	if s.DelayFactor == 0 {
		s.DelayFactor = base.DelayFactor
	}
	if s.GlobalDelayFactor == 0 {
		s.GlobalDelayFactor = base.GlobalDelayFactor
	}
	if s.FastCLI == nil {
		s.FastCLI = base.FastCLI
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = base.ReadTimeout
	}
	if s.PagingCommand == "" {
		s.PagingCommand = base.PagingCommand
	}
	if s.ConfigCommand == "" {
		s.ConfigCommand = base.ConfigCommand
	}
	if s.ExitConfigCommand == "" {
		s.ExitConfigCommand = base.ExitConfigCommand
	}
	if s.ConfigMarker == "" {
		s.ConfigMarker = base.ConfigMarker
	}
	if s.Terminators == "" {
		s.Terminators = base.Terminators
	}
	if s.AnsiEscapeCodes == nil {
		s.AnsiEscapeCodes = base.AnsiEscapeCodes
	}
	if s.LineEnding == "" {
		s.LineEnding = base.LineEnding
	}
	if s.LoginTimeout == 0 {
		s.LoginTimeout = base.LoginTimeout
	}
	return s
}

// SessionFor returns the effective session settings of an appliance.
func (c *Config) SessionFor(a ApplianceConfig) SessionConfig {
	return a.Session.Merge(c.Session.Merge(DefaultSession()))
}

// Find returns the appliance with the given name.
func (c *Config) Find(name string) (ApplianceConfig, bool) {
	for _, a := range c.Appliances {
		if a.Name == name {
			return a, true
		}
	}
	return ApplianceConfig{}, false
}

// Match returns the appliances whose name matches a doublestar glob such as
// "lobby-*" or "site1/**", sorted by name.
func (c *Config) Match(pattern string) ([]ApplianceConfig, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid appliance pattern %q", pattern)
	}
	var out []ApplianceConfig
	for _, a := range c.Appliances {
		if ok, _ := doublestar.Match(pattern, a.Name); ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddAppliance adds an appliance to the configuration.
// Returns an error if an appliance with the same name already exists.
func (c *Config) AddAppliance(a ApplianceConfig) error {
	if _, ok := c.Find(a.Name); ok {
		return fmt.Errorf("appliance %q already exists", a.Name)
	}
	c.Appliances = append(c.Appliances, a)
	return nil
}

// Save writes the configuration to a YAML file.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Save(cfg *Config, path string, fsys ...ports.FileSystem) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if len(fsys) > 0 && fsys[0] != nil {
		if err := fsys[0].MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		return fsys[0].WriteFile(path, data, 0644)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
