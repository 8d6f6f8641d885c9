package application

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/pkg/wallet"
)

const (
	// DefaultScanWorkers bounds the worker pool used by healing scans
	DefaultScanWorkers = 8
	// DefaultScanBound is the deepest index a last-resort search walks
	// before giving up with ErrIndexNotFound
	DefaultScanBound uint32 = 10000
)

// RegistryService owns the persisted address→index map. Indexes are
// assigned monotonically and never reused; the map itself is a
// write-through cache in front of deterministic derivation, rebuilt by
// scans whenever entries are missing.
type RegistryService interface {
	// AssignNextIndex reserves the smallest index greater than the
	// historical maximum
	AssignNextIndex(ctx context.Context) (uint32, error)
	// NextAddress assigns a fresh index, derives its address and records
	// the mapping, all under the assignment lock so concurrent issuances
	// can never share an index
	NextAddress(ctx context.Context) (string, uint32, error)
	Lookup(ctx context.Context, address string) (uint32, bool, error)
	// ScanRange derives every index in [1, maxIndex] and merges the
	// resulting mappings non-destructively into the registry
	ScanRange(ctx context.Context, maxIndex uint32) (int, error)
	// FindByAddress resolves the derivation index of target, walking a
	// linear derivation scan up to maxIndex as a last resort. A hit found
	// by scanning is cached back into the registry.
	FindByAddress(ctx context.Context, target string, maxIndex uint32) (uint32, error)
	MaxIndex(ctx context.Context) (uint32, error)
	RegisteredAddresses(ctx context.Context) (map[string]uint32, error)
}

type registryService struct {
	registry     domain.IndexRegistry
	vaultService VaultService
	scanWorkers  int

	// serializes concurrent assignments so two issuances can never be
	// handed the same index
	assignMtx *sync.Mutex
}

// NewRegistryService returns a RegistryService backed by the given
// persisted registry, deriving addresses through the vault's wallet
func NewRegistryService(
	registry domain.IndexRegistry, vaultService VaultService, scanWorkers int,
) RegistryService {
	if scanWorkers <= 0 {
		scanWorkers = DefaultScanWorkers
	}
	return &registryService{
		registry:     registry,
		vaultService: vaultService,
		scanWorkers:  scanWorkers,
		assignMtx:    &sync.Mutex{},
	}
}

func (s *registryService) AssignNextIndex(ctx context.Context) (uint32, error) {
	s.assignMtx.Lock()
	defer s.assignMtx.Unlock()
	return s.nextIndex(ctx)
}

func (s *registryService) NextAddress(ctx context.Context) (string, uint32, error) {
	hdWallet, err := s.vaultService.Wallet()
	if err != nil {
		return "", 0, err
	}

	s.assignMtx.Lock()
	defer s.assignMtx.Unlock()

	index, err := s.nextIndex(ctx)
	if err != nil {
		return "", 0, err
	}
	address, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{Index: index})
	if err != nil {
		return "", 0, err
	}
	if err := s.registry.Put(ctx, address, index); err != nil {
		return "", 0, err
	}
	return address, index, nil
}

func (s *registryService) nextIndex(ctx context.Context) (uint32, error) {
	maxIndex, ok, err := s.registry.MaxIndex(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		// index 0 is the root address, payment addresses start at 1
		return 1, nil
	}
	if maxIndex >= wallet.MaxDerivationIndex {
		return 0, fmt.Errorf("derivation index space exhausted")
	}
	return maxIndex + 1, nil
}

func (s *registryService) Lookup(
	ctx context.Context, address string,
) (uint32, bool, error) {
	return s.registry.Lookup(ctx, address)
}

func (s *registryService) ScanRange(
	ctx context.Context, maxIndex uint32,
) (int, error) {
	hdWallet, err := s.vaultService.Wallet()
	if err != nil {
		return 0, err
	}

	mappings := make(map[string]uint32, maxIndex)
	mtx := &sync.Mutex{}

	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(s.scanWorkers)
	for i := uint32(1); i <= maxIndex; i++ {
		index := i
		eg.Go(func() error {
			address, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{
				Index: index,
			})
			if err != nil {
				return fmt.Errorf("deriving index %d: %w", index, err)
			}
			mtx.Lock()
			mappings[address] = index
			mtx.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	if err := s.registry.Merge(ctx, mappings); err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"max_index": maxIndex,
		"mappings":  len(mappings),
	}).Debug("registry scan completed")
	return len(mappings), nil
}

func (s *registryService) FindByAddress(
	ctx context.Context, target string, maxIndex uint32,
) (uint32, error) {
	target = strings.ToLower(target)

	if index, ok, err := s.registry.Lookup(ctx, target); err != nil {
		return 0, err
	} else if ok {
		return index, nil
	}

	hdWallet, err := s.vaultService.Wallet()
	if err != nil {
		return 0, err
	}
	if maxIndex == 0 {
		maxIndex = DefaultScanBound
	}

	// root address first, then the linear walk
	for index := uint32(0); index <= maxIndex; index++ {
		address, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{
			Index: index,
		})
		if err != nil {
			return 0, err
		}
		if address == target {
			if err := s.registry.Put(ctx, target, index); err != nil {
				log.WithError(err).Warn("failed to cache recovered index")
			}
			return index, nil
		}
	}

	return 0, fmt.Errorf(
		"%w: address %s not derived within bound %d",
		domain.ErrIndexNotFound, target, maxIndex,
	)
}

func (s *registryService) MaxIndex(ctx context.Context) (uint32, error) {
	maxIndex, ok, err := s.registry.MaxIndex(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return maxIndex, nil
}

func (s *registryService) RegisteredAddresses(
	ctx context.Context,
) (map[string]uint32, error) {
	return s.registry.All(ctx)
}
