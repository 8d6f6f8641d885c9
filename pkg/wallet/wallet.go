package wallet

import (
	"errors"
	"strings"
)

var (
	// ErrNullMnemonic ...
	ErrNullMnemonic = errors.New("mnemonic is null")
	// ErrNullSeed ...
	ErrNullSeed = errors.New("seed is null")
	// ErrNullMasterKey ...
	ErrNullMasterKey = errors.New("master key is null")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrNullPlainText ...
	ErrNullPlainText = errors.New("text to encrypt must not be null")
	// ErrNullCypherText ...
	ErrNullCypherText = errors.New("cypher to decrypt must not be null")

	// ErrInvalidMnemonic ...
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrInvalidEntropySize ...
	ErrInvalidEntropySize = errors.New(
		"entropy size must be a multiple of 32 in the range [128,256]",
	)
	// ErrInvalidCypherText ...
	ErrInvalidCypherText = errors.New("cypher must be in base64 format")
	// ErrMalformedCypherText ...
	ErrMalformedCypherText = errors.New("cypher is too short to be decrypted")
	// ErrUnableToDecrypt is thrown when the cyphertext cannot be opened with
	// the key derived from the provided passphrase
	ErrUnableToDecrypt = errors.New("invalid passphrase or corrupted cypher")

	// ErrOutOfRangeIndex ...
	ErrOutOfRangeIndex = errors.New(
		"derivation index must not be in the hardened range",
	)
)

// Wallet data structure allows to create a new wallet from a mnemonic,
// and to derive the key pair and payment address bound to any index of
// its account chain
type Wallet struct {
	mnemonic  string
	masterKey []byte
}

// NewWalletOpts is the struct given to the NewWallet method
type NewWalletOpts struct {
	EntropySize int
}

func (o NewWalletOpts) validate() error {
	if o.EntropySize < 128 || o.EntropySize > 256 || o.EntropySize%32 != 0 {
		return ErrInvalidEntropySize
	}
	return nil
}

// NewWallet creates a new wallet with a freshly generated mnemonic
func NewWallet(opts NewWalletOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	mnemonic, err := generateMnemonic(opts.EntropySize)
	if err != nil {
		return nil, err
	}
	seed := generateSeedFromMnemonic(mnemonic)
	masterKey, err := generateMasterKey(seed, DefaultBaseDerivationPath)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		mnemonic:  strings.Join(mnemonic, " "),
		masterKey: masterKey,
	}, nil
}

// NewWalletFromMnemonicOpts is the struct given to the
// NewWalletFromMnemonic method
type NewWalletFromMnemonicOpts struct {
	Mnemonic []string
}

func (o NewWalletFromMnemonicOpts) validate() error {
	if len(o.Mnemonic) <= 0 {
		return ErrNullMnemonic
	}
	if !isMnemonicValid(o.Mnemonic) {
		return ErrInvalidMnemonic
	}
	return nil
}

// NewWalletFromMnemonic restores a wallet from an existing mnemonic
func NewWalletFromMnemonic(opts NewWalletFromMnemonicOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	seed := generateSeedFromMnemonic(opts.Mnemonic)
	masterKey, err := generateMasterKey(seed, DefaultBaseDerivationPath)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		mnemonic:  strings.Join(opts.Mnemonic, " "),
		masterKey: masterKey,
	}, nil
}

func (w *Wallet) validate() error {
	if len(w.mnemonic) <= 0 {
		return ErrNullMnemonic
	}
	if !isMnemonicValid(strings.Split(w.mnemonic, " ")) {
		return ErrInvalidMnemonic
	}
	if len(w.masterKey) <= 0 {
		return ErrNullMasterKey
	}
	return nil
}

// Mnemonic returns the mnemonic of the wallet as a list of words
func (w *Wallet) Mnemonic() ([]string, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	return strings.Split(w.mnemonic, " "), nil
}

// MasterKey returns a copy of the serialized extended key of the wallet's
// account chain
func (w *Wallet) MasterKey() ([]byte, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	masterKey := make([]byte, len(w.masterKey))
	copy(masterKey, w.masterKey)
	return masterKey, nil
}
