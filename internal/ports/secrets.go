package ports

import "errors"

// ErrSecretNotFound is returned by SecretStore.Get when no entry exists.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore abstracts the OS keyring.
type SecretStore interface {
	Set(service, user, secret string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}
