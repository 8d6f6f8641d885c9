package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWallet(t *testing.T) {
	w, err := NewWallet(NewWalletOpts{EntropySize: 256})
	require.NoError(t, err)

	mnemonic, err := w.Mnemonic()
	require.NoError(t, err)
	assert.Len(t, mnemonic, 24)
	assert.True(t, IsMnemonicValid(mnemonic))
}

func TestFailingNewWallet(t *testing.T) {
	_, err := NewWallet(NewWalletOpts{EntropySize: 130})
	assert.Equal(t, ErrInvalidEntropySize, err)
}

func TestFailingNewWalletFromMnemonic(t *testing.T) {
	tests := []struct {
		name string
		opts NewWalletFromMnemonicOpts
		err  error
	}{
		{
			name: "null mnemonic",
			opts: NewWalletFromMnemonicOpts{Mnemonic: nil},
			err:  ErrNullMnemonic,
		},
		{
			name: "bad checksum",
			opts: NewWalletFromMnemonicOpts{
				Mnemonic: []string{
					"abandon", "abandon", "abandon", "abandon", "abandon",
					"abandon", "abandon", "abandon", "abandon", "abandon",
					"abandon", "abandon",
				},
			},
			err: ErrInvalidMnemonic,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWalletFromMnemonic(tt.opts)
			assert.Equal(t, tt.err, err)
		})
	}
}

func TestMaskMnemonic(t *testing.T) {
	masked := MaskMnemonic(testMnemonic)

	assert.Contains(t, masked, MaskedMnemonicPlaceholder)
	assert.Equal(t, testMnemonic[0]+" "+MaskedMnemonicPlaceholder+" "+
		testMnemonic[len(testMnemonic)-1], masked)
	assert.NotContains(t, masked, "sausage")
}
