package securestore

import "errors"

var (
	// ErrSecretNotFound ...
	ErrSecretNotFound = errors.New("secret not found")
	// ErrNullSecretName ...
	ErrNullSecretName = errors.New("secret name must not be null")
)

// SecretStore is a named-blob backend for raw and derived key material,
// swappable between local encrypted storage and a managed secret manager.
// Values are opaque bytes: callers encrypt before putting anything
// sensitive, the store never sees plain text seed material.
type SecretStore interface {
	// GetSecret retrieves a secret by name, ErrSecretNotFound if absent
	GetSecret(name string) ([]byte, error)
	// PutSecret stores or replaces a secret by name
	PutSecret(name string, value []byte) error
	// Close closes the connection to the backend
	Close() error
}
