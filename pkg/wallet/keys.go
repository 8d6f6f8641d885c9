package wallet

import (
	"crypto/ecdsa"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/ethereum/go-ethereum/crypto"
)

// DerivationPath is the internal representation of a hierarchical
// deterministic wallet account
type DerivationPath []uint32

// DefaultBaseDerivationPath m/44'/60'/0'/0, the account chain every
// payment address is derived from. Changing it would change the address
// bound to every index ever issued, so it is fixed for the lifetime of a
// wallet.
var DefaultBaseDerivationPath = DerivationPath{
	hdkeychain.HardenedKeyStart + 44,
	hdkeychain.HardenedKeyStart + 60,
	hdkeychain.HardenedKeyStart + 0,
	0,
}

const (
	// MaxDerivationIndex is the highest index that can be derived on the
	// account chain. Indexes at or above the hardened range are rejected.
	MaxDerivationIndex = hdkeychain.HardenedKeyStart - 1

	// EmergencyIndex is the sentinel index reserved for fallback address
	// issuance when the regular index allocation fails. It is never handed
	// out by the registry.
	EmergencyIndex uint32 = MaxDerivationIndex
)

// DeriveKeyPairOpts is the struct given to the DeriveKeyPair method
type DeriveKeyPairOpts struct {
	Index uint32
}

func (o DeriveKeyPairOpts) validate() error {
	if o.Index > MaxDerivationIndex {
		return ErrOutOfRangeIndex
	}
	return nil
}

// DeriveKeyPair derives the key pair at the provided index of the wallet's
// account chain and returns the private key along with its payment address
// in lowercased 0x hex format. The derivation is pure and deterministic:
// the same (mnemonic, index) always yields the same pair, and concurrent
// calls are safe since the wallet is never mutated.
func (w *Wallet) DeriveKeyPair(opts DeriveKeyPairOpts) (*ecdsa.PrivateKey, string, error) {
	if err := opts.validate(); err != nil {
		return nil, "", err
	}
	if err := w.validate(); err != nil {
		return nil, "", err
	}

	baseKey, err := hdkeychain.NewKeyFromString(
		base58.Encode(w.masterKey),
	)
	if err != nil {
		return nil, "", err
	}

	childKey, err := baseKey.Derive(opts.Index)
	if err != nil {
		return nil, "", err
	}

	ecPrvKey, err := childKey.ECPrivKey()
	if err != nil {
		return nil, "", err
	}

	prvKey := ecPrvKey.ToECDSA()
	address := strings.ToLower(crypto.PubkeyToAddress(prvKey.PublicKey).Hex())
	return prvKey, address, nil
}

// DeriveAddress is a shortcut of DeriveKeyPair for callers that only need
// the payment address at the provided index.
func (w *Wallet) DeriveAddress(opts DeriveKeyPairOpts) (string, error) {
	_, address, err := w.DeriveKeyPair(opts)
	return address, err
}
