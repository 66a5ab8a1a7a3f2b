// Package main is the entrypoint for the appliance-shell CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/acolita/appliance-shell/internal/adapters/realclock"
	"github.com/acolita/appliance-shell/internal/adapters/realdialog"
	"github.com/acolita/appliance-shell/internal/adapters/realkeyring"
	"github.com/acolita/appliance-shell/internal/config"
	"github.com/acolita/appliance-shell/internal/logging"
	"github.com/acolita/appliance-shell/internal/ports"
	"github.com/acolita/appliance-shell/internal/recovery"
	"github.com/acolita/appliance-shell/internal/security"
	"github.com/acolita/appliance-shell/internal/session"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath string
	debug      bool
	noPrompt   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if hint := recovery.AnalyzeError(err); hint != nil {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint.Explanation)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "appliance-shell",
	Short: "Drive wireless appliance CLIs over SSH or a console",
	Long: `appliance-shell connects to Xirrus-class appliances, disables output
paging, discovers the prompt and moves between operational and
configuration mode, verifying every transition on the live shell.

Appliances are listed in a YAML inventory (default
$XDG_CONFIG_HOME/appliance-shell/config.yaml).`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the appliance inventory")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Log driver events at debug level")
	rootCmd.PersistentFlags().BoolVar(&noPrompt, "no-prompt", false, "Never ask for passwords interactively")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(promptCmd)
	rootCmd.AddCommand(prepareCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(configModeCmd)
	rootCmd.AddCommand(keyringCmd)
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads and validates the inventory and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Sanitize)
	return cfg, nil
}

// newResolver builds the password lookup chain. interactive adds the
// terminal prompt as the last resort.
func newResolver(cfg *config.Config, interactive bool) *security.Resolver {
	r := &security.Resolver{
		Env:     os.Getenv,
		Keyring: security.NewKeyringStore(realkeyring.New()),
		Cache:   security.NewPasswordCache(cfg.Security.PasswordCacheTTL, realclock.New()),
	}
	if interactive && !noPrompt {
		r.Prompt = &serialPrompt{prompt: realdialog.New()}
	}
	return r
}

func newManager(cfg *config.Config, interactive bool) (*session.Manager, error) {
	return session.NewManager(cfg,
		session.WithManagerCredentials(newResolver(cfg, interactive)),
		session.WithManagerLogger(slog.Default()),
	)
}

// serialPrompt keeps parallel connects from drawing two forms at once.
type serialPrompt struct {
	mu     sync.Mutex
	prompt ports.CredentialPrompt
}

func (p *serialPrompt) PromptPassword(req ports.CredentialRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompt.PromptPassword(req)
}
