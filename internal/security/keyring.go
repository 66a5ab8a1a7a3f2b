package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/acolita/appliance-shell/internal/ports"
)

// KeyringService is the service name used for keyring entries.
const KeyringService = "appliance-shell"

const keyAppliancePasswordFmt = "appliance:%s@%s"

// KeyringStore keeps appliance passwords in the OS keyring.
type KeyringStore struct {
	store ports.SecretStore
}

// NewKeyringStore wraps a secret store.
func NewKeyringStore(store ports.SecretStore) *KeyringStore {
	return &KeyringStore{store: store}
}

func passwordKey(host, user string) string {
	return fmt.Sprintf(keyAppliancePasswordFmt, user, host)
}

// StorePassword stores the login password for user@host.
func (ks *KeyringStore) StorePassword(host, user string, password []byte) error {
	encoded := base64.StdEncoding.EncodeToString(password)
	if err := ks.store.Set(KeyringService, passwordKey(host, user), encoded); err != nil {
		return fmt.Errorf("store appliance password: %w", err)
	}

	slog.Debug("stored appliance password in keyring",
		slog.String("user", user),
		slog.String("host", host),
	)
	return nil
}

// GetPassword returns the stored password for user@host, or nil when none
// is stored.
func (ks *KeyringStore) GetPassword(host, user string) ([]byte, error) {
	encoded, err := ks.store.Get(KeyringService, passwordKey(host, user))
	if err != nil {
		if errors.Is(err, ports.ErrSecretNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get appliance password: %w", err)
	}

	password, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode appliance password: %w", err)
	}
	return password, nil
}

// DeletePassword removes the stored password for user@host.
func (ks *KeyringStore) DeletePassword(host, user string) error {
	if err := ks.store.Delete(KeyringService, passwordKey(host, user)); err != nil && !errors.Is(err, ports.ErrSecretNotFound) {
		return fmt.Errorf("delete appliance password: %w", err)
	}
	return nil
}
