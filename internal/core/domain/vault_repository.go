package domain

import "context"

// VaultRepository is the persistence boundary for the encrypted seed
// material. Implementations store encrypted blobs only; the plain text
// mnemonic never reaches them.
type VaultRepository interface {
	GetVault(ctx context.Context) (*Vault, error)
	AddVault(ctx context.Context, vault *Vault) error
	UpdateVault(
		ctx context.Context,
		updateFn func(vault *Vault) (*Vault, error),
	) error
}
