package application

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/internal/core/ports"
	"github.com/paygate-network/paygate-daemon/internal/metrics"
)

// ReleaseAllKeyword selects the aggregate release path in ReleaseFunds
const ReleaseAllKeyword = "all"

// OperatorService is the facade exposed to upstream collaborators: address
// issuance, payment reconciliation, fund releases and ledger queries.
type OperatorService interface {
	IssueAddress(
		ctx context.Context, expectedAmount decimal.Decimal, cryptoType string,
	) (*domain.AddressRecord, error)
	RecordObservedPayment(
		ctx context.Context, address string, amount decimal.Decimal,
		cryptoType string,
	) (*VerifyResult, error)
	// ReleaseFunds releases the given decimal amount, or sweeps everything
	// when amount is the "all" keyword
	ReleaseFunds(ctx context.Context, amount string) (*ReleaseResult, error)
	GetBalance(ctx context.Context, address string, bypass bool) (*BalanceInfo, error)
	GetTotalBalance(ctx context.Context, bypass bool) (*BalanceInfo, error)
	GetTransactionStatus(ctx context.Context, hash string) (*domain.Transaction, error)
}

type operatorService struct {
	repoManager       ports.RepoManager
	pool              ports.ProviderPool
	issuerService     IssuerService
	reconcilerService ReconcilerService
	releaseService    ReleaseService
	balanceService    BalanceService
}

// NewOperatorService wires the facade over the underlying services
func NewOperatorService(
	repoManager ports.RepoManager, pool ports.ProviderPool,
	issuerService IssuerService, reconcilerService ReconcilerService,
	releaseService ReleaseService, balanceService BalanceService,
) OperatorService {
	return &operatorService{
		repoManager:       repoManager,
		pool:              pool,
		issuerService:     issuerService,
		reconcilerService: reconcilerService,
		releaseService:    releaseService,
		balanceService:    balanceService,
	}
}

func (s *operatorService) IssueAddress(
	ctx context.Context, expectedAmount decimal.Decimal, cryptoType string,
) (*domain.AddressRecord, error) {
	record, err := s.issuerService.IssueAddress(ctx, expectedAmount, cryptoType)
	if err != nil {
		return nil, err
	}
	metrics.AddressesIssued.WithLabelValues(string(record.Status)).Inc()
	return record, nil
}

func (s *operatorService) RecordObservedPayment(
	ctx context.Context, address string, amount decimal.Decimal,
	cryptoType string,
) (*VerifyResult, error) {
	return s.reconcilerService.RecordObservedPayment(ctx, address, amount, cryptoType)
}

func (s *operatorService) ReleaseFunds(
	ctx context.Context, amount string,
) (*ReleaseResult, error) {
	if strings.EqualFold(strings.TrimSpace(amount), ReleaseAllKeyword) {
		summary, err := s.releaseService.ReleaseAll(ctx)
		if err != nil {
			return nil, err
		}
		return &ReleaseResult{Summary: summary}, nil
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	tx, err := s.releaseService.ReleaseAmount(ctx, parsed)
	if err != nil {
		return nil, err
	}
	return &ReleaseResult{Transaction: tx}, nil
}

func (s *operatorService) GetBalance(
	ctx context.Context, address string, bypass bool,
) (*BalanceInfo, error) {
	return s.balanceService.GetBalance(ctx, address, bypass)
}

func (s *operatorService) GetTotalBalance(
	ctx context.Context, bypass bool,
) (*BalanceInfo, error) {
	return s.balanceService.GetTotalBalance(ctx, bypass)
}

func (s *operatorService) GetTransactionStatus(
	ctx context.Context, hash string,
) (*domain.Transaction, error) {
	repo := s.repoManager.TransactionRepository()
	record, err := repo.GetTransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !record.IsPending() || record.Hash == "" {
		return record, nil
	}

	// the ledger only moves while a Send is being awaited, so a pending
	// record is refreshed against the chain before it is surfaced
	client, err := s.pool.Client(ctx)
	if err != nil {
		log.WithError(err).Warn("cannot refresh pending transaction, serving ledger view")
		return record, nil
	}
	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(record.Hash))
	if err != nil || receipt == nil {
		return record, nil
	}

	if err := repo.UpdateTransaction(
		ctx, record.ID,
		func(tx *domain.Transaction) (*domain.Transaction, error) {
			if receipt.Status == types.ReceiptStatusSuccessful {
				tx.Confirm(receipt.BlockNumber.Uint64())
			} else {
				tx.Fail("reverted on chain")
			}
			return tx, nil
		},
	); err != nil {
		return nil, err
	}
	return repo.GetTransaction(ctx, record.ID)
}
