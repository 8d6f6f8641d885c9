package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/internal/core/ports"
	"github.com/paygate-network/paygate-daemon/pkg/wallet"
)

// DefaultAddressTTL is how long an issued payment address waits for its
// payment before expiring
const DefaultAddressTTL = 30 * time.Minute

// IssuerService allocates ephemeral receiving addresses for checkouts.
// Issuance never hard-fails: if a fresh index cannot be assigned or
// derived, the fixed emergency index is used and the record is flagged for
// mandatory operator reconciliation.
type IssuerService interface {
	IssueAddress(
		ctx context.Context, expectedAmount decimal.Decimal, cryptoType string,
	) (*domain.AddressRecord, error)
	// ExpireStaleAddresses sweeps pending records whose TTL elapsed and
	// returns how many were expired
	ExpireStaleAddresses(ctx context.Context) (int, error)
}

type issuerService struct {
	repoManager     ports.RepoManager
	registryService RegistryService
	vaultService    VaultService
	addressTTL      time.Duration
}

// NewIssuerService returns an IssuerService issuing addresses with the
// given TTL
func NewIssuerService(
	repoManager ports.RepoManager, registryService RegistryService,
	vaultService VaultService, addressTTL time.Duration,
) IssuerService {
	if addressTTL <= 0 {
		addressTTL = DefaultAddressTTL
	}
	return &issuerService{
		repoManager:     repoManager,
		registryService: registryService,
		vaultService:    vaultService,
		addressTTL:      addressTTL,
	}
}

func (s *issuerService) IssueAddress(
	ctx context.Context, expectedAmount decimal.Decimal, cryptoType string,
) (*domain.AddressRecord, error) {
	address, index, err := s.registryService.NextAddress(ctx)
	if err != nil {
		log.WithError(err).Warn(
			"fresh index assignment failed, falling back to emergency address",
		)
		return s.issueEmergency(ctx, expectedAmount, cryptoType, err)
	}

	record := domain.NewAddressRecord(
		address, index, expectedAmount, cryptoType, s.addressTTL,
	)
	if err := s.repoManager.AddressRepository().AddAddressRecord(
		ctx, record,
	); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"address": record.Address,
		"index":   record.Index,
		"amount":  expectedAmount.String(),
	}).Info("payment address issued")
	return record, nil
}

// issueEmergency derives the reserved sentinel index so checkout is never
// blocked. Concurrent emergency issuances collide on the same address,
// hence the emergency status forcing operator reconciliation.
func (s *issuerService) issueEmergency(
	ctx context.Context, expectedAmount decimal.Decimal, cryptoType string,
	cause error,
) (*domain.AddressRecord, error) {
	hdWallet, err := s.vaultService.Wallet()
	if err != nil {
		return nil, err
	}
	address, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{
		Index: wallet.EmergencyIndex,
	})
	if err != nil {
		return nil, err
	}

	record := domain.NewAddressRecord(
		address, wallet.EmergencyIndex, expectedAmount, cryptoType, s.addressTTL,
	)
	record.Status = domain.AddressStatusEmergency

	repo := s.repoManager.AddressRepository()
	if err := repo.AddAddressRecord(ctx, record); err != nil {
		// a previous emergency issuance already holds the record, reuse it
		existing, getErr := repo.GetAddressRecord(ctx, address)
		if getErr != nil {
			return nil, err
		}
		record = existing
	}

	log.WithFields(log.Fields{
		"address": record.Address,
		"cause":   cause.Error(),
	}).Error("emergency address issued, operator reconciliation required")
	return record, nil
}

func (s *issuerService) ExpireStaleAddresses(ctx context.Context) (int, error) {
	repo := s.repoManager.AddressRepository()
	records, err := repo.GetAllAddressRecords(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	count := 0
	for i := range records {
		record := records[i]
		if record.Status != domain.AddressStatusPending || !record.IsExpired(now) {
			continue
		}
		if err := repo.UpdateAddressRecord(
			ctx, record.Address,
			func(r *domain.AddressRecord) (*domain.AddressRecord, error) {
				r.Expire()
				return r, nil
			},
		); err != nil {
			log.WithError(err).WithField("address", record.Address).
				Warn("failed to expire address")
			continue
		}
		count++
	}

	if count > 0 {
		log.WithField("expired", count).Info("stale payment addresses expired")
	}
	return count, nil
}
