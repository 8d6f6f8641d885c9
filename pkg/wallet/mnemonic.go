package wallet

import "strings"

// MaskedMnemonicPlaceholder is the fixed placeholder rendered between the
// first and last word of a masked mnemonic.
const MaskedMnemonicPlaceholder = "•••• •••• ••••"

// NewMnemonicOpts is the struct given to the NewMnemonic method
type NewMnemonicOpts struct {
	EntropySize int
}

func (o NewMnemonicOpts) validate() error {
	if o.EntropySize > 0 {
		if o.EntropySize < 128 || o.EntropySize > 256 || o.EntropySize%32 != 0 {
			return ErrInvalidEntropySize
		}
	}
	if o.EntropySize < 0 {
		return ErrInvalidEntropySize
	}
	return nil
}

// NewMnemonic returns a new mnemonic as a list of words
func NewMnemonic(opts NewMnemonicOpts) ([]string, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.EntropySize == 0 {
		opts.EntropySize = 256
	}

	return generateMnemonic(opts.EntropySize)
}

// IsMnemonicValid tells whether the given list of words is a valid BIP39
// mnemonic with a correct checksum
func IsMnemonicValid(mnemonic []string) bool {
	return isMnemonicValid(mnemonic)
}

// MaskMnemonic returns an irreversibly masked rendering of the given
// mnemonic, showing only the first and last word around a fixed
// placeholder. The original word sequence cannot be recovered from the
// returned string.
func MaskMnemonic(mnemonic []string) string {
	if len(mnemonic) <= 0 {
		return MaskedMnemonicPlaceholder
	}
	return strings.Join([]string{
		mnemonic[0],
		MaskedMnemonicPlaceholder,
		mnemonic[len(mnemonic)-1],
	}, " ")
}
