package domain

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/paygate-network/paygate-daemon/pkg/wallet"
)

// Vault guards the wallet seed material. The mnemonic and the derived
// master key are persisted only as encrypted blobs and exist in plain text
// transiently in memory while the vault is unlocked. Any rendering of the
// mnemonic outside an explicit reveal goes through MaskedMnemonic.
type Vault struct {
	mnemonic           string
	EncryptedMnemonic  string
	EncryptedMasterKey string
	PassphraseHash     []byte
}

// NewVault encrypts the provided mnemonic and its derived master key with
// the passphrase and returns a new locked Vault
func NewVault(mnemonic []string, passphrase string) (*Vault, error) {
	if len(mnemonic) <= 0 || len(passphrase) <= 0 {
		return nil, ErrNullMnemonicOrPassphrase
	}
	w, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
		Mnemonic: mnemonic,
	})
	if err != nil {
		return nil, err
	}

	strMnemonic := strings.Join(mnemonic, " ")
	encryptedMnemonic, err := wallet.Encrypt(wallet.EncryptOpts{
		PlainText:  strMnemonic,
		Passphrase: passphrase,
	})
	if err != nil {
		return nil, err
	}

	masterKey, err := w.MasterKey()
	if err != nil {
		return nil, err
	}
	encryptedMasterKey, err := wallet.Encrypt(wallet.EncryptOpts{
		PlainText:  hex.EncodeToString(masterKey),
		Passphrase: passphrase,
	})
	if err != nil {
		return nil, err
	}

	return &Vault{
		EncryptedMnemonic:  encryptedMnemonic,
		EncryptedMasterKey: encryptedMasterKey,
		PassphraseHash:     btcutil.Hash160([]byte(passphrase)),
	}, nil
}

// IsLocked tells whether the mnemonic is currently flushed from memory
func (v *Vault) IsLocked() bool {
	return v.mnemonic == ""
}

// Lock flushes the plain text mnemonic from memory. The encrypted blobs
// are untouched, so no re-encryption (and no fresh iv) happens here.
func (v *Vault) Lock() {
	v.mnemonic = ""
}

// Unlock attempts to decrypt the mnemonic with the provided passphrase.
// A decryption failure or a failed checksum validation of the decrypted
// words surfaces as ErrDecryption and is never retried internally.
func (v *Vault) Unlock(passphrase string) error {
	// the passphrase is checked even when the mnemonic is already in
	// memory, so callers can rely on Unlock as an authentication gate
	if !v.isValidPassphrase(passphrase) {
		return ErrInvalidPassphrase
	}
	if !v.IsLocked() {
		return nil
	}

	mnemonic, err := wallet.Decrypt(wallet.DecryptOpts{
		CypherText: v.EncryptedMnemonic,
		Passphrase: passphrase,
	})
	if err != nil {
		return ErrDecryption
	}
	if !wallet.IsMnemonicValid(strings.Split(mnemonic, " ")) {
		return ErrDecryption
	}

	v.mnemonic = mnemonic
	return nil
}

// ChangePassphrase re-encrypts the seed material under a new passphrase
func (v *Vault) ChangePassphrase(currentPassphrase, newPassphrase string) error {
	if len(newPassphrase) <= 0 {
		return ErrNullMnemonicOrPassphrase
	}
	if !v.isValidPassphrase(currentPassphrase) {
		return ErrInvalidPassphrase
	}

	mnemonic, err := wallet.Decrypt(wallet.DecryptOpts{
		CypherText: v.EncryptedMnemonic,
		Passphrase: currentPassphrase,
	})
	if err != nil {
		return ErrDecryption
	}
	masterKey, err := wallet.Decrypt(wallet.DecryptOpts{
		CypherText: v.EncryptedMasterKey,
		Passphrase: currentPassphrase,
	})
	if err != nil {
		return ErrDecryption
	}

	encryptedMnemonic, err := wallet.Encrypt(wallet.EncryptOpts{
		PlainText:  mnemonic,
		Passphrase: newPassphrase,
	})
	if err != nil {
		return err
	}
	encryptedMasterKey, err := wallet.Encrypt(wallet.EncryptOpts{
		PlainText:  masterKey,
		Passphrase: newPassphrase,
	})
	if err != nil {
		return err
	}

	v.EncryptedMnemonic = encryptedMnemonic
	v.EncryptedMasterKey = encryptedMasterKey
	v.PassphraseHash = btcutil.Hash160([]byte(newPassphrase))
	return nil
}

// Mnemonic returns the plain text mnemonic. The vault must be unlocked.
func (v *Vault) Mnemonic() ([]string, error) {
	if v.IsLocked() {
		return nil, ErrVaultMustBeUnlocked
	}
	return strings.Split(v.mnemonic, " "), nil
}

// MaskedMnemonic returns the irreversibly masked rendering of the mnemonic,
// safe to surface to operators without a reveal
func (v *Vault) MaskedMnemonic() string {
	if v.IsLocked() {
		return wallet.MaskMnemonic(nil)
	}
	return wallet.MaskMnemonic(strings.Split(v.mnemonic, " "))
}

func (v *Vault) isValidPassphrase(passphrase string) bool {
	return strings.EqualFold(
		hex.EncodeToString(v.PassphraseHash),
		hex.EncodeToString(btcutil.Hash160([]byte(passphrase))),
	)
}
