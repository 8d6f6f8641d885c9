package domain

import "errors"

var (
	// ErrVaultMustBeUnlocked is thrown when trying to make an operation that
	// requires the vault to be unlocked
	ErrVaultMustBeUnlocked = errors.New("vault must be unlocked to perform this operation")
	// ErrVaultAlreadyInitialized ...
	ErrVaultAlreadyInitialized = errors.New("vault is already initialized")
	// ErrVaultNotInitialized ...
	ErrVaultNotInitialized = errors.New("vault is not initialized")
	// ErrInvalidPassphrase ...
	ErrInvalidPassphrase = errors.New("passphrase is not valid")
	// ErrNullMnemonicOrPassphrase ...
	ErrNullMnemonicOrPassphrase = errors.New("mnemonic and/or passphrase must not be null")

	// ErrConfiguration is thrown at startup on bad or missing key material
	// or merchant address. It is fatal: the daemon never proceeds silently
	// on unusable config.
	ErrConfiguration = errors.New("configuration is invalid")
	// ErrDecryption is thrown when the seed material cannot be decrypted.
	// Operator recoverable, never auto-retried with the same input.
	ErrDecryption = errors.New("unable to decrypt seed material")
	// ErrProviderUnavailable is thrown once every configured endpoint and
	// the freshness-bounded cached connection have been exhausted
	ErrProviderUnavailable = errors.New("no blockchain provider available")
	// ErrInsufficientFunds ...
	ErrInsufficientFunds = errors.New("insufficient funds to cover amount and gas")
	// ErrIndexNotFound is thrown when no derivation index could be matched
	// to an address within the deepest configured scan bound. Funds remain
	// on chain but cannot be signed for until the bound is raised.
	ErrIndexNotFound = errors.New("derivation index not found within scan bound")
	// ErrAddressDerivationMismatch ...
	ErrAddressDerivationMismatch = errors.New("derived address does not match the recorded one")
	// ErrSubmissionFailed is thrown after bounded retries with the last
	// cause attached, always leaving a transaction record trail
	ErrSubmissionFailed = errors.New("transaction submission failed")
	// ErrTxInFlight is thrown when an unconfirmed transaction for the same
	// (from, to) pair is still unmined, blocking a duplicate send
	ErrTxInFlight = errors.New("a transaction for this pair is still in flight")

	// ErrAddressRecordNotFound ...
	ErrAddressRecordNotFound = errors.New("address record not found")
	// ErrTransactionNotFound ...
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrAddressRetired is thrown when a payment is observed on an address
	// already flagged wrong and permanently retired
	ErrAddressRetired = errors.New("address is permanently retired")
)
