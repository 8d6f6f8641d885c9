package secretstore

import (
	"context"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/pkg/securestore"
)

const (
	mnemonicSecret       = "vault/mnemonic"
	masterKeySecret      = "vault/masterKey"
	passphraseHashSecret = "vault/passphraseHash"
)

// vaultRepositoryImpl persists the vault's encrypted blobs in a secret
// store backend. Only ciphertext ever reaches the store.
type vaultRepositoryImpl struct {
	store securestore.SecretStore
}

// NewVaultRepositoryImpl returns a domain.VaultRepository backed by the
// given secret store
func NewVaultRepositoryImpl(store securestore.SecretStore) domain.VaultRepository {
	return vaultRepositoryImpl{store: store}
}

func (r vaultRepositoryImpl) GetVault(_ context.Context) (*domain.Vault, error) {
	encryptedMnemonic, err := r.store.GetSecret(mnemonicSecret)
	if err != nil {
		if err == securestore.ErrSecretNotFound {
			return nil, domain.ErrVaultNotInitialized
		}
		return nil, err
	}
	encryptedMasterKey, err := r.store.GetSecret(masterKeySecret)
	if err != nil {
		return nil, err
	}
	passphraseHash, err := r.store.GetSecret(passphraseHashSecret)
	if err != nil {
		return nil, err
	}

	return &domain.Vault{
		EncryptedMnemonic:  string(encryptedMnemonic),
		EncryptedMasterKey: string(encryptedMasterKey),
		PassphraseHash:     passphraseHash,
	}, nil
}

func (r vaultRepositoryImpl) AddVault(ctx context.Context, vault *domain.Vault) error {
	if _, err := r.GetVault(ctx); err == nil {
		return domain.ErrVaultAlreadyInitialized
	} else if err != domain.ErrVaultNotInitialized {
		return err
	}
	return r.putVault(vault)
}

func (r vaultRepositoryImpl) UpdateVault(
	ctx context.Context,
	updateFn func(vault *domain.Vault) (*domain.Vault, error),
) error {
	vault, err := r.GetVault(ctx)
	if err != nil {
		return err
	}

	updatedVault, err := updateFn(vault)
	if err != nil {
		return err
	}
	return r.putVault(updatedVault)
}

func (r vaultRepositoryImpl) putVault(vault *domain.Vault) error {
	if err := r.store.PutSecret(
		mnemonicSecret, []byte(vault.EncryptedMnemonic),
	); err != nil {
		return err
	}
	if err := r.store.PutSecret(
		masterKeySecret, []byte(vault.EncryptedMasterKey),
	); err != nil {
		return err
	}
	return r.store.PutSecret(passphraseHashSecret, vault.PassphraseHash)
}
