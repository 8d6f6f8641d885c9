package application

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/internal/core/ports"
	"github.com/paygate-network/paygate-daemon/internal/metrics"
	"github.com/paygate-network/paygate-daemon/pkg/mathutil"
)

// DefaultPaymentTolerance absorbs display-unit rounding between the
// invoiced amount and the on-chain transfer. A product default, tunable
// per deployment.
var DefaultPaymentTolerance = decimal.RequireFromString("0.005")

// ReconcilerService classifies observed on-chain payments against the
// amounts their addresses were issued for. Classification is terminal: a
// wrong payment permanently retires its address.
type ReconcilerService interface {
	RecordObservedPayment(
		ctx context.Context, address string, amount decimal.Decimal,
		cryptoType string,
	) (*VerifyResult, error)
	// WrongPaymentTotal returns the running sum of wrong-payment value,
	// accumulated in wei and converted to decimal only on read
	WrongPaymentTotal() decimal.Decimal
}

type reconcilerService struct {
	repoManager ports.RepoManager
	tolerance   decimal.Decimal

	mtx           *sync.Mutex
	totalWrongWei *big.Int
}

// NewReconcilerService returns a ReconcilerService classifying payments
// within the given relative tolerance (e.g. 0.005 for ±0.5%)
func NewReconcilerService(
	repoManager ports.RepoManager, tolerance decimal.Decimal,
) ReconcilerService {
	if tolerance.LessThanOrEqual(decimal.Zero) {
		tolerance = DefaultPaymentTolerance
	}
	return &reconcilerService{
		repoManager:   repoManager,
		tolerance:     tolerance,
		mtx:           &sync.Mutex{},
		totalWrongWei: big.NewInt(0),
	}
}

func (s *reconcilerService) RecordObservedPayment(
	ctx context.Context, address string, amount decimal.Decimal,
	cryptoType string,
) (*VerifyResult, error) {
	repo := s.repoManager.AddressRepository()
	record, err := repo.GetAddressRecord(ctx, address)
	if err != nil {
		return nil, err
	}

	// reprocessing an already classified observation replays its verdict
	// without re-flagging or double-counting
	if record.IsClassified() {
		return &VerifyResult{
			Verified:    record.Status == domain.AddressStatusConfirmed,
			WrongReason: record.WrongReason,
		}, nil
	}

	expectedWei, err := mathutil.ToWei(record.ExpectedAmount)
	if err != nil {
		return nil, err
	}
	observedWei, err := mathutil.ToWei(amount)
	if err != nil {
		return nil, err
	}

	if mathutil.WithinTolerance(expectedWei, observedWei, s.tolerance) {
		if err := repo.UpdateAddressRecord(
			ctx, record.Address,
			func(r *domain.AddressRecord) (*domain.AddressRecord, error) {
				if err := r.Confirm(); err != nil {
					return nil, err
				}
				return r, nil
			},
		); err != nil {
			return nil, err
		}

		metrics.PaymentsVerified.Inc()
		log.WithFields(log.Fields{
			"address": record.Address,
			"amount":  amount.String(),
		}).Info("payment verified")
		return &VerifyResult{Verified: true}, nil
	}

	reason := fmt.Sprintf(
		"expected %s %s, observed %s",
		record.ExpectedAmount.String(), cryptoType, amount.String(),
	)
	if err := repo.UpdateAddressRecord(
		ctx, record.Address,
		func(r *domain.AddressRecord) (*domain.AddressRecord, error) {
			r.FlagWrong(reason)
			return r, nil
		},
	); err != nil {
		return nil, err
	}

	s.mtx.Lock()
	s.totalWrongWei.Add(s.totalWrongWei, observedWei)
	s.mtx.Unlock()

	metrics.PaymentsWrong.Inc()
	log.WithFields(log.Fields{
		"address": record.Address,
		"reason":  reason,
	}).Warn("wrong payment, address retired")
	return &VerifyResult{Verified: false, WrongReason: reason}, nil
}

func (s *reconcilerService) WrongPaymentTotal() decimal.Decimal {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return mathutil.FromWei(new(big.Int).Set(s.totalWrongWei))
}
