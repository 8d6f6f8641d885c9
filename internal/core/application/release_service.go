package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/internal/core/ports"
	"github.com/paygate-network/paygate-daemon/pkg/mathutil"
	"github.com/paygate-network/paygate-daemon/pkg/wallet"
)

// DefaultForwardScanDepth is how many indexes past the registry maximum a
// release-all sweep probes for balances on addresses the registry never
// recorded
const DefaultForwardScanDepth uint32 = 20

// ReleaseService consolidates collected funds to the merchant address. It
// never attempts multi-input consolidation: an amount release uses exactly
// one funding address or reports an actionable shortfall.
type ReleaseService interface {
	// ReleaseAmount sends amount to the merchant address from the first
	// single address able to cover it plus gas
	ReleaseAmount(ctx context.Context, amount decimal.Decimal) (*domain.Transaction, error)
	// ReleaseAll sweeps every funded address to the merchant address,
	// never aborting the run on a single address's failure
	ReleaseAll(ctx context.Context) (*ReleaseSummary, error)
}

type releaseService struct {
	repoManager      ports.RepoManager
	pool             ports.ProviderPool
	vaultService     VaultService
	registryService  RegistryService
	submitter        TxSubmitterService
	merchantAddress  string
	forwardScanDepth uint32
}

// NewReleaseService returns a ReleaseService consolidating to
// merchantAddress
func NewReleaseService(
	repoManager ports.RepoManager, pool ports.ProviderPool,
	vaultService VaultService, registryService RegistryService,
	submitter TxSubmitterService, merchantAddress string,
	forwardScanDepth uint32,
) (ReleaseService, error) {
	if !common.IsHexAddress(merchantAddress) {
		return nil, fmt.Errorf(
			"%w: invalid merchant address %q", domain.ErrConfiguration,
			merchantAddress,
		)
	}
	if forwardScanDepth == 0 {
		forwardScanDepth = DefaultForwardScanDepth
	}
	return &releaseService{
		repoManager:      repoManager,
		pool:             pool,
		vaultService:     vaultService,
		registryService:  registryService,
		submitter:        submitter,
		merchantAddress:  merchantAddress,
		forwardScanDepth: forwardScanDepth,
	}, nil
}

type fundingCandidate struct {
	address string
	index   uint32
	balance *big.Int
}

func (s *releaseService) ReleaseAmount(
	ctx context.Context, amount decimal.Decimal,
) (*domain.Transaction, error) {
	amountWei, err := mathutil.ToWei(amount)
	if err != nil {
		return nil, err
	}
	if amountWei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", domain.ErrConfiguration)
	}

	candidates, err := s.fundingCandidates(ctx, false)
	if err != nil {
		return nil, err
	}

	gasPrice, err := s.submitter.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	gasCost := new(big.Int).Mul(
		gasPrice, new(big.Int).SetUint64(TransferGasLimit),
	)
	required := new(big.Int).Add(amountWei, gasCost)

	available := big.NewInt(0)
	for _, candidate := range candidates {
		available.Add(available, candidate.balance)
		if candidate.balance.Cmp(required) >= 0 {
			return s.submitter.Send(ctx, SendRequest{
				FromIndex: candidate.index,
				To:        s.merchantAddress,
				AmountWei: amountWei,
				Type:      domain.TxTypeRelease,
			})
		}
	}

	// no single funder covers it: report the shortfall and point the
	// caller at the aggregate path instead of multi-hop consolidation
	return nil, fmt.Errorf(
		"%w: no single address covers %s plus gas %s (total available %s), "+
			"use release-all to consolidate",
		domain.ErrInsufficientFunds, amountWei, gasCost, available,
	)
}

func (s *releaseService) ReleaseAll(ctx context.Context) (*ReleaseSummary, error) {
	candidates, err := s.fundingCandidates(ctx, true)
	if err != nil {
		return nil, err
	}

	suggested, err := s.submitter.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	// descending candidates so dust balances are not stranded by an
	// overestimated gas price
	gasCandidates := []*big.Int{
		suggested,
		new(big.Int).Div(new(big.Int).Mul(suggested, big.NewInt(80)), big.NewInt(100)),
		new(big.Int).Div(suggested, big.NewInt(2)),
	}

	summary := &ReleaseSummary{TotalReleased: decimal.Zero}
	totalWei := big.NewInt(0)

	for _, candidate := range candidates {
		if candidate.balance.Sign() <= 0 {
			summary.Skipped++
			continue
		}

		tx, err := s.sweepAddress(ctx, candidate, gasCandidates)
		if err != nil {
			summary.Failed++
			log.WithError(err).WithField("address", candidate.address).
				Warn("release-all: address sweep failed")
			continue
		}
		if tx == nil {
			summary.Skipped++
			continue
		}

		summary.Released++
		summary.Transactions = append(summary.Transactions, *tx)
		totalWei.Add(totalWei, tx.AmountSent())
	}

	summary.TotalReleased = mathutil.FromWei(totalWei)
	log.WithFields(log.Fields{
		"released": summary.Released,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
		"total":    summary.TotalReleased.String(),
	}).Info("release-all completed")
	return summary, nil
}

// sweepAddress tries to send the whole balance minus gas, walking the
// descending gas price candidates until one leaves a positive sendable
// amount. Returns (nil, nil) when even the cheapest candidate cannot
// cover gas.
func (s *releaseService) sweepAddress(
	ctx context.Context, candidate fundingCandidate, gasCandidates []*big.Int,
) (*domain.Transaction, error) {
	var lastErr error
	for _, gasPrice := range gasCandidates {
		gasCost := new(big.Int).Mul(
			gasPrice, new(big.Int).SetUint64(TransferGasLimit),
		)
		if candidate.balance.Cmp(gasCost) <= 0 {
			continue
		}

		tx, err := s.submitter.Send(ctx, SendRequest{
			FromIndex: candidate.index,
			To:        s.merchantAddress,
			SendAll:   true,
			GasPrice:  gasPrice,
			Type:      domain.TxTypeRelease,
		})
		if err == nil {
			return tx, nil
		}
		lastErr = err
		if errors.Is(err, domain.ErrTxInFlight) {
			// a previous sweep of this address is still unmined
			return nil, nil
		}
		if !isInsufficientFunds(err) {
			return nil, err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// fundingCandidates gathers the root address, every registered or recorded
// address not retired by a wrong payment and, when scanAhead is set, a
// bounded forward scan past the registry maximum, each with its current
// balance. Ordered by ascending index so the root is always considered
// first.
func (s *releaseService) fundingCandidates(
	ctx context.Context, scanAhead bool,
) ([]fundingCandidate, error) {
	hdWallet, err := s.vaultService.Wallet()
	if err != nil {
		return nil, err
	}
	client, err := s.pool.Client(ctx)
	if err != nil {
		return nil, err
	}

	registered, err := s.registryService.RegisteredAddresses(ctx)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[uint32]string, len(registered)+1)
	rootAddress, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{Index: 0})
	if err != nil {
		return nil, err
	}
	byIndex[0] = rootAddress
	for address, index := range registered {
		byIndex[index] = address
	}

	if scanAhead {
		maxIndex, err := s.registryService.MaxIndex(ctx)
		if err != nil {
			return nil, err
		}
		for i := maxIndex + 1; i <= maxIndex+s.forwardScanDepth; i++ {
			address, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{
				Index: i,
			})
			if err != nil {
				return nil, err
			}
			byIndex[i] = address
		}
	}

	records, err := s.repoManager.AddressRepository().GetAllAddressRecords(ctx)
	if err != nil {
		return nil, err
	}
	retired := make(map[string]bool)
	for i := range records {
		record := &records[i]
		if record.IsRetired() {
			retired[record.Address] = true
			continue
		}
		// issuances that never made it into the registry, like the
		// emergency sentinel, are still sweepable through their record
		if _, ok := byIndex[record.Index]; !ok {
			byIndex[record.Index] = record.Address
		}
	}

	indexes := make([]uint32, 0, len(byIndex))
	for index := range byIndex {
		indexes = append(indexes, index)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	candidates := make([]fundingCandidate, 0, len(indexes))
	for _, index := range indexes {
		address := byIndex[index]
		if retired[address] {
			continue
		}
		balance, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err != nil {
			log.WithError(err).WithField("address", address).
				Warn("skipping address, balance unavailable")
			continue
		}
		candidates = append(candidates, fundingCandidate{
			address: address,
			index:   index,
			balance: balance,
		})
	}
	return candidates, nil
}

func isInsufficientFunds(err error) bool {
	return errors.Is(err, domain.ErrInsufficientFunds)
}
