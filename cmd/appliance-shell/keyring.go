package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acolita/appliance-shell/internal/adapters/realdialog"
	"github.com/acolita/appliance-shell/internal/adapters/realkeyring"
	"github.com/acolita/appliance-shell/internal/config"
	"github.com/acolita/appliance-shell/internal/ports"
	"github.com/acolita/appliance-shell/internal/security"
)

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage appliance passwords in the OS keyring",
}

var keyringSetCmd = &cobra.Command{
	Use:   "set <appliance>",
	Short: "Ask for a password and store it in the keyring",
	Long: `Store the login password of an appliance in the OS keyring. The
appliance must set auth.use_keyring for the password to be used.`,
	Args: cobra.ExactArgs(1),
	RunE: runKeyringSet,
}

var keyringDeleteCmd = &cobra.Command{
	Use:   "delete <appliance>",
	Short: "Remove a stored password",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyringDelete,
}

func init() {
	keyringCmd.AddCommand(keyringSetCmd)
	keyringCmd.AddCommand(keyringDeleteCmd)
}

func keyringTarget(name string) (config.ApplianceConfig, *security.KeyringStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.ApplianceConfig{}, nil, err
	}
	a, ok := cfg.Find(name)
	if !ok {
		return config.ApplianceConfig{}, nil, fmt.Errorf("unknown appliance %q", name)
	}
	return a, security.NewKeyringStore(realkeyring.New()), nil
}

func runKeyringSet(cmd *cobra.Command, args []string) error {
	a, store, err := keyringTarget(args[0])
	if err != nil {
		return err
	}

	password, err := realdialog.New().PromptPassword(ports.CredentialRequest{
		Appliance: a.Name,
		Host:      a.Host,
		User:      a.User,
	})
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("empty password, nothing stored")
	}

	pw := []byte(password)
	defer security.WipeBytes(pw)
	if err := store.StorePassword(a.Host, a.User, pw); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	if !a.Auth.UseKeyring {
		fmt.Printf("stored; set auth.use_keyring on %s to use it\n", a.Name)
		return nil
	}
	fmt.Printf("stored password for %s\n", a.Name)
	return nil
}

func runKeyringDelete(cmd *cobra.Command, args []string) error {
	a, store, err := keyringTarget(args[0])
	if err != nil {
		return err
	}
	if err := store.DeletePassword(a.Host, a.User); err != nil {
		return fmt.Errorf("delete password: %w", err)
	}
	fmt.Printf("removed password for %s\n", a.Name)
	return nil
}
