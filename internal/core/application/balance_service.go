package application

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/paygate-network/paygate-daemon/internal/core/ports"
	"github.com/paygate-network/paygate-daemon/internal/metrics"
	"github.com/paygate-network/paygate-daemon/pkg/cache"
	"github.com/paygate-network/paygate-daemon/pkg/mathutil"
	"github.com/paygate-network/paygate-daemon/pkg/wallet"
)

// DefaultBalanceCacheTTL keeps balance reads cheap under bursty dashboard
// polling without hiding fresh deposits for long
const DefaultBalanceCacheTTL = 10 * time.Second

// BalanceService serves on-chain balances through a short-lived cache.
// Reads can bypass the cache explicitly; when the provider errors and a
// cached value exists the read degrades to a stale answer instead of
// failing hard.
type BalanceService interface {
	GetBalance(ctx context.Context, address string, bypass bool) (*BalanceInfo, error)
	// GetTotalBalance sums root plus all registered addresses
	GetTotalBalance(ctx context.Context, bypass bool) (*BalanceInfo, error)
}

type balanceService struct {
	pool            ports.ProviderPool
	vaultService    VaultService
	registryService RegistryService
	balances        *cache.Cache[*big.Int]
}

// NewBalanceService returns a BalanceService caching balances for ttl
func NewBalanceService(
	pool ports.ProviderPool, vaultService VaultService,
	registryService RegistryService, ttl time.Duration,
) BalanceService {
	if ttl <= 0 {
		ttl = DefaultBalanceCacheTTL
	}
	return &balanceService{
		pool:            pool,
		vaultService:    vaultService,
		registryService: registryService,
		balances:        cache.New[*big.Int](ttl),
	}
}

func (s *balanceService) GetBalance(
	ctx context.Context, address string, bypass bool,
) (*BalanceInfo, error) {
	wei, stale, err := s.balances.Resolve(
		ctx, address, bypass,
		func(ctx context.Context) (*big.Int, error) {
			return s.fetchBalance(ctx, address)
		},
	)
	if err != nil {
		return nil, err
	}
	if stale {
		metrics.BalanceCacheStale.Inc()
	}
	return &BalanceInfo{
		Address: address,
		Balance: mathutil.FromWei(wei),
		Stale:   stale,
	}, nil
}

func (s *balanceService) GetTotalBalance(
	ctx context.Context, bypass bool,
) (*BalanceInfo, error) {
	hdWallet, err := s.vaultService.Wallet()
	if err != nil {
		return nil, err
	}
	rootAddress, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{Index: 0})
	if err != nil {
		return nil, err
	}
	registered, err := s.registryService.RegisteredAddresses(ctx)
	if err != nil {
		return nil, err
	}

	addresses := make([]string, 0, len(registered)+1)
	addresses = append(addresses, rootAddress)
	for address := range registered {
		addresses = append(addresses, address)
	}

	total := decimal.Zero
	anyStale := false
	for _, address := range addresses {
		info, err := s.GetBalance(ctx, address, bypass)
		if err != nil {
			return nil, err
		}
		total = total.Add(info.Balance)
		anyStale = anyStale || info.Stale
	}

	return &BalanceInfo{Balance: total, Stale: anyStale}, nil
}

func (s *balanceService) fetchBalance(
	ctx context.Context, address string,
) (*big.Int, error) {
	client, err := s.pool.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, common.HexToAddress(address), nil)
}
