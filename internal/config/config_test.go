package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/acolita/appliance-shell/internal/testing/fakes/fakefs"
)

const sampleConfig = `
appliances:
  - name: lobby-ap1
    host: 10.0.0.11
    user: admin
    auth:
      type: password
      password_env: LOBBY_PW
  - name: lobby-ap2
    host: 10.0.0.12
    port: 2222
    user: admin
    session:
      delay_factor: 2
      terminators: "#"
  - name: lab/console
    transport: pty
    command: ["telnet", "10.9.0.1", "2001"]
session:
  read_timeout: 20s
  ansi_escape_codes: true
logging:
  level: debug
  sanitize: true
`

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func loadSample(t *testing.T) *Config {
	t.Helper()
	fs := fakefs.New()
	fs.AddFile("/etc/appliance-shell/config.yaml", []byte(sampleConfig))
	cfg, err := Load("/etc/appliance-shell/config.yaml", fs)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Session.PagingCommand != "no more" {
		t.Errorf("PagingCommand = %q, want %q", cfg.Session.PagingCommand, "no more")
	}
	if cfg.Session.ConfigMarker != "(config)" {
		t.Errorf("ConfigMarker = %q, want %q", cfg.Session.ConfigMarker, "(config)")
	}
	if cfg.Session.Terminators != "#>" {
		t.Errorf("Terminators = %q, want %q", cfg.Session.Terminators, "#>")
	}
	if cfg.Session.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v, want 10s", cfg.Session.ReadTimeout)
	}
	if cfg.Logging.Level != "info" || !cfg.Logging.Sanitize {
		t.Errorf("Logging = %+v, want info with sanitize", cfg.Logging)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if len(cfg.Appliances) != 0 {
		t.Errorf("Appliances = %d, want 0", len(cfg.Appliances))
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml", fakefs.New())
	if err != nil {
		t.Fatalf("Load(missing) error: %v", err)
	}
	if cfg.Session.ConfigCommand != "configure" {
		t.Errorf("ConfigCommand = %q, want default", cfg.Session.ConfigCommand)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	fs := fakefs.New()
	fs.AddFile("/bad.yaml", []byte(":::invalid:::yaml{{{"))

	if _, err := Load("/bad.yaml", fs); err == nil {
		t.Fatal("Load(invalid YAML) expected error, got nil")
	}
}

func TestLoadValidConfig(t *testing.T) {
	cfg := loadSample(t)

	if len(cfg.Appliances) != 3 {
		t.Fatalf("Appliances = %d, want 3", len(cfg.Appliances))
	}
	ap1 := cfg.Appliances[0]
	if ap1.Transport != TransportSSH || ap1.Port != 22 {
		t.Errorf("ap1 transport/port = %s/%d, want ssh/22", ap1.Transport, ap1.Port)
	}
	if ap1.Address() != "10.0.0.11:22" {
		t.Errorf("Address() = %q", ap1.Address())
	}
	if ap1.Auth.PasswordEnv != "LOBBY_PW" {
		t.Errorf("PasswordEnv = %q", ap1.Auth.PasswordEnv)
	}
	console := cfg.Appliances[2]
	if console.Transport != TransportPTY || len(console.Command) != 3 {
		t.Errorf("console = %+v", console)
	}
	if cfg.Session.ReadTimeout != 20*time.Second {
		t.Errorf("ReadTimeout = %v, want 20s", cfg.Session.ReadTimeout)
	}
	// Unset fields are filled by Validate.
	if cfg.Session.PagingCommand != "no more" {
		t.Errorf("PagingCommand = %q after Validate", cfg.Session.PagingCommand)
	}
}

func TestSessionFor(t *testing.T) {
	cfg := loadSample(t)

	ap2, ok := cfg.Find("lobby-ap2")
	if !ok {
		t.Fatal("lobby-ap2 not found")
	}
	s := cfg.SessionFor(ap2)
	if s.DelayFactor != 2 {
		t.Errorf("DelayFactor = %v, want 2", s.DelayFactor)
	}
	if s.Terminators != "#" {
		t.Errorf("Terminators = %q, want #", s.Terminators)
	}
	if s.ReadTimeout != 20*time.Second {
		t.Errorf("ReadTimeout = %v, want global 20s", s.ReadTimeout)
	}
	if s.AnsiEscapeCodes == nil || !*s.AnsiEscapeCodes {
		t.Error("AnsiEscapeCodes should come from the global session")
	}

	ap1, _ := cfg.Find("lobby-ap1")
	if got := cfg.SessionFor(ap1).DelayFactor; got != 1 {
		t.Errorf("ap1 DelayFactor = %v, want 1", got)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name       string
		appliances []ApplianceConfig
	}{
		{"missing name", []ApplianceConfig{{Host: "h"}}},
		{"duplicate", []ApplianceConfig{{Name: "a", Host: "h"}, {Name: "a", Host: "h2"}}},
		{"ssh without host", []ApplianceConfig{{Name: "a"}}},
		{"pty without command", []ApplianceConfig{{Name: "a", Transport: TransportPTY}}},
		{"unknown transport", []ApplianceConfig{{Name: "a", Host: "h", Transport: "serial"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Appliances = tt.appliances
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}
}

func TestMatch(t *testing.T) {
	cfg := loadSample(t)

	tests := []struct {
		pattern string
		want    []string
	}{
		{"lobby-*", []string{"lobby-ap1", "lobby-ap2"}},
		{"lobby-ap2", []string{"lobby-ap2"}},
		{"lab/*", []string{"lab/console"}},
		{"**", []string{"lab/console", "lobby-ap1", "lobby-ap2"}},
		{"*", []string{"lobby-ap1", "lobby-ap2"}},
		{"core-*", nil},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := cfg.Match(tt.pattern)
			if err != nil {
				t.Fatalf("Match(%q) error: %v", tt.pattern, err)
			}
			var names []string
			for _, a := range got {
				names = append(names, a.Name)
			}
			if len(names) != len(tt.want) {
				t.Fatalf("Match(%q) = %v, want %v", tt.pattern, names, tt.want)
			}
			for i := range names {
				if names[i] != tt.want[i] {
					t.Errorf("Match(%q)[%d] = %q, want %q", tt.pattern, i, names[i], tt.want[i])
				}
			}
		})
	}
}

func TestMatchInvalidPattern(t *testing.T) {
	cfg := loadSample(t)
	if _, err := cfg.Match("lobby-[ap"); err == nil {
		t.Error("Match(invalid) expected error")
	}
}

func TestAddAppliance(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.AddAppliance(ApplianceConfig{Name: "ap1", Host: "h"}); err != nil {
		t.Fatalf("AddAppliance() error: %v", err)
	}
	if err := cfg.AddAppliance(ApplianceConfig{Name: "ap1", Host: "h2"}); err == nil {
		t.Error("AddAppliance(duplicate) expected error")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	fs := fakefs.New()
	cfg := DefaultConfig()
	_ = cfg.AddAppliance(ApplianceConfig{Name: "ap1", Host: "10.0.0.1", Port: 22, User: "admin"})

	if err := Save(cfg, "/home/u/.config/appliance-shell/config.yaml", fs); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if !fs.IsDir("/home/u/.config/appliance-shell") {
		t.Error("Save should create the config directory")
	}

	loaded, err := Load("/home/u/.config/appliance-shell/config.yaml", fs)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if a, ok := loaded.Find("ap1"); !ok || a.User != "admin" {
		t.Errorf("loaded ap1 = %+v, %v", a, ok)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultConfigPath(); got != "/tmp/xdg/appliance-shell/config.yaml" {
		t.Errorf("DefaultConfigPath() = %q", got)
	}
}

func TestValidateRecordingPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	cfg := DefaultConfig()
	cfg.Recording.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Recording.Path != "/tmp/xdg/appliance-shell/recordings" {
		t.Errorf("Recording.Path = %q", cfg.Recording.Path)
	}

	cfg = DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Recording.Path != "" {
		t.Errorf("disabled recording should keep an empty path, got %q", cfg.Recording.Path)
	}
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestWatcherReload(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	writeConfigFile(t, path, "appliances:\n  - name: ap1\n    host: 10.0.0.1\n")

	var mu sync.Mutex
	var changed *Config

	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		changed = cfg
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	writeConfigFile(t, path, "appliances:\n  - name: ap1\n    host: 10.0.0.1\n  - name: ap2\n    host: 10.0.0.2\n")

	if !waitFor(t, func() bool { return len(w.Config().Appliances) == 2 }) {
		t.Fatalf("Config() appliances = %d after reload, want 2", len(w.Config().Appliances))
	}

	mu.Lock()
	defer mu.Unlock()
	if changed == nil {
		t.Error("onChange callback was never called")
	} else if changed.Appliances[1].Port != 22 {
		t.Errorf("reloaded config not validated, port = %d", changed.Appliances[1].Port)
	}
}

func TestWatcherReloadInvalidConfig(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	writeConfigFile(t, path, "appliances:\n  - name: ap1\n    host: 10.0.0.1\n")

	callCount := 0
	var mu sync.Mutex

	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	// Unknown transport fails validation; the old inventory must survive.
	writeConfigFile(t, path, "appliances:\n  - name: ap1\n    host: h\n    transport: serial\n")
	time.Sleep(500 * time.Millisecond)

	cfg := w.Config()
	if len(cfg.Appliances) != 1 || cfg.Appliances[0].Transport != TransportSSH {
		t.Errorf("Config() = %+v, want original inventory", cfg.Appliances)
	}

	mu.Lock()
	if callCount > 0 {
		t.Errorf("onChange was called %d times, want 0", callCount)
	}
	mu.Unlock()
}

func TestWatcherClose(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	writeConfigFile(t, path, "logging:\n  level: warn\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	if w.Config().Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", w.Config().Logging.Level)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
