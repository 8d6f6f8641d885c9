package application

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/pkg/wallet"
)

// DefaultRevealWindow bounds how long a revealed mnemonic stays readable
// before it is re-masked automatically.
const DefaultRevealWindow = 30 * time.Second

// VaultService manages the encrypted seed material: initialization,
// lock/unlock, passphrase rotation and the time-boxed mnemonic reveal.
// Every other service obtains key material exclusively through Wallet().
type VaultService interface {
	GenSeed(ctx context.Context) ([]string, error)
	InitVault(ctx context.Context, mnemonic []string, passphrase string) error
	UnlockVault(ctx context.Context, passphrase string) error
	LockVault(ctx context.Context) error
	ChangePassword(ctx context.Context, currentPassphrase, newPassphrase string) error
	IsInitialized(ctx context.Context) bool
	IsUnlocked() bool
	// RenderMnemonic returns the plain words only within the reveal window
	// opened by RevealMnemonic, the masked placeholder otherwise.
	RenderMnemonic(ctx context.Context) (string, error)
	// RevealMnemonic re-authenticates with the passphrase and opens a
	// bounded window during which RenderMnemonic returns the plain words.
	RevealMnemonic(ctx context.Context, passphrase string) ([]string, error)
	// Wallet returns the HD wallet restored from the unlocked mnemonic
	Wallet() (*wallet.Wallet, error)
}

type vaultService struct {
	vaultRepository domain.VaultRepository
	revealWindow    time.Duration

	lock           *sync.RWMutex
	vault          *domain.Vault
	hdWallet       *wallet.Wallet
	revealDeadline time.Time
}

// NewVaultService returns a VaultService persisting encrypted blobs
// through the given repository
func NewVaultService(
	vaultRepository domain.VaultRepository, revealWindow time.Duration,
) VaultService {
	if revealWindow <= 0 {
		revealWindow = DefaultRevealWindow
	}
	return &vaultService{
		vaultRepository: vaultRepository,
		revealWindow:    revealWindow,
		lock:            &sync.RWMutex{},
	}
}

func (s *vaultService) GenSeed(ctx context.Context) ([]string, error) {
	mnemonic, err := wallet.NewMnemonic(wallet.NewMnemonicOpts{EntropySize: 256})
	if err != nil {
		return nil, err
	}
	return mnemonic, nil
}

func (s *vaultService) InitVault(
	ctx context.Context, mnemonic []string, passphrase string,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, err := s.vaultRepository.GetVault(ctx); err == nil {
		return domain.ErrVaultAlreadyInitialized
	}

	vault, err := domain.NewVault(mnemonic, passphrase)
	if err != nil {
		return err
	}
	if err := s.vaultRepository.AddVault(ctx, vault); err != nil {
		return err
	}

	log.Info("vault initialized")
	return nil
}

func (s *vaultService) UnlockVault(ctx context.Context, passphrase string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	vault, err := s.loadVault(ctx)
	if err != nil {
		return err
	}
	if err := vault.Unlock(passphrase); err != nil {
		return err
	}

	mnemonic, err := vault.Mnemonic()
	if err != nil {
		return err
	}
	hdWallet, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
		Mnemonic: mnemonic,
	})
	if err != nil {
		return err
	}

	s.vault = vault
	s.hdWallet = hdWallet
	log.Info("vault unlocked")
	return nil
}

func (s *vaultService) LockVault(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.vault != nil {
		s.vault.Lock()
	}
	s.hdWallet = nil
	s.revealDeadline = time.Time{}
	log.Info("vault locked")
	return nil
}

func (s *vaultService) ChangePassword(
	ctx context.Context, currentPassphrase, newPassphrase string,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, err := s.loadVault(ctx); err != nil {
		return err
	}

	return s.vaultRepository.UpdateVault(
		ctx, func(v *domain.Vault) (*domain.Vault, error) {
			if err := v.ChangePassphrase(currentPassphrase, newPassphrase); err != nil {
				return nil, err
			}
			s.vault = v
			return v, nil
		},
	)
}

func (s *vaultService) IsInitialized(ctx context.Context) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.vault != nil {
		return true
	}
	_, err := s.vaultRepository.GetVault(ctx)
	return err == nil
}

func (s *vaultService) IsUnlocked() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.vault != nil && !s.vault.IsLocked()
}

func (s *vaultService) RenderMnemonic(ctx context.Context) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.vault == nil {
		if _, err := s.loadVault(ctx); err != nil {
			return "", err
		}
		return wallet.MaskMnemonic(nil), nil
	}
	if time.Now().Before(s.revealDeadline) {
		mnemonic, err := s.vault.Mnemonic()
		if err != nil {
			return "", err
		}
		return strings.Join(mnemonic, " "), nil
	}
	return s.vault.MaskedMnemonic(), nil
}

func (s *vaultService) RevealMnemonic(
	ctx context.Context, passphrase string,
) ([]string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	vault := s.vault
	if vault == nil {
		v, err := s.loadVault(ctx)
		if err != nil {
			return nil, err
		}
		vault = v
	}
	// a reveal always re-authenticates, even on an unlocked vault
	if err := vault.Unlock(passphrase); err != nil {
		return nil, err
	}

	mnemonic, err := vault.Mnemonic()
	if err != nil {
		return nil, err
	}
	// revealing on a locked service leaves the vault unlocked, so the
	// wallet must come back with it
	if s.hdWallet == nil {
		hdWallet, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
			Mnemonic: mnemonic,
		})
		if err != nil {
			return nil, err
		}
		s.hdWallet = hdWallet
	}

	s.vault = vault
	s.revealDeadline = time.Now().Add(s.revealWindow)
	log.WithField("window", s.revealWindow.String()).Warn("mnemonic revealed")
	return mnemonic, nil
}

func (s *vaultService) Wallet() (*wallet.Wallet, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.hdWallet == nil {
		return nil, domain.ErrVaultMustBeUnlocked
	}
	return s.hdWallet, nil
}

// loadVault fetches the persisted vault, keeping any in-memory unlocked
// instance if present. Callers must hold the lock.
func (s *vaultService) loadVault(ctx context.Context) (*domain.Vault, error) {
	if s.vault != nil {
		return s.vault, nil
	}
	vault, err := s.vaultRepository.GetVault(ctx)
	if err != nil {
		return nil, err
	}
	return vault, nil
}
