package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AddressStatus is the lifecycle state of an issued payment address
type AddressStatus string

const (
	// AddressStatusPending is the initial state of a fresh payment address
	AddressStatusPending AddressStatus = "pending"
	// AddressStatusConfirmed marks an address whose observed payment matched
	// the expected amount within the configured tolerance
	AddressStatusConfirmed AddressStatus = "confirmed"
	// AddressStatusWrong marks an address that received an amount outside
	// the tolerance band. Wrong addresses are permanently retired.
	AddressStatusWrong AddressStatus = "wrong"
	// AddressStatusExpired marks an address whose TTL elapsed with no
	// payment observed
	AddressStatusExpired AddressStatus = "expired"
	// AddressStatusEmergency marks an address issued on the emergency
	// sentinel index after a derivation or registry failure. Emergency
	// records require mandatory operator reconciliation since concurrent
	// emergency issuances may collide on the same address.
	AddressStatusEmergency AddressStatus = "emergency"
)

// AddressRecord is created by the issuer with a fresh derivation index and
// the amount the customer is expected to pay. Its status is mutated only by
// the reconciler, and it is read-only to the release orchestrator.
type AddressRecord struct {
	Address        string
	Index          uint32
	ExpectedAmount decimal.Decimal
	CryptoType     string
	Status         AddressStatus
	WrongReason    string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// NewAddressRecord returns a pending record for the given address and index
func NewAddressRecord(
	address string, index uint32, expectedAmount decimal.Decimal,
	cryptoType string, ttl time.Duration,
) *AddressRecord {
	now := time.Now()
	return &AddressRecord{
		Address:        strings.ToLower(address),
		Index:          index,
		ExpectedAmount: expectedAmount,
		CryptoType:     cryptoType,
		Status:         AddressStatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
}

// IsClassified tells whether the record already went through
// reconciliation, successfully or not
func (r *AddressRecord) IsClassified() bool {
	return r.Status == AddressStatusConfirmed || r.Status == AddressStatusWrong
}

// IsRetired tells whether the record has been permanently retired because
// of a wrong payment. Retired addresses never accept new classifications.
func (r *AddressRecord) IsRetired() bool {
	return r.Status == AddressStatusWrong
}

// IsExpired tells whether the record's TTL elapsed at the given time
func (r *AddressRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Confirm transitions the record to confirmed. It is idempotent on an
// already confirmed record and rejects retired ones.
func (r *AddressRecord) Confirm() error {
	if r.IsRetired() {
		return ErrAddressRetired
	}
	r.Status = AddressStatusConfirmed
	return nil
}

// FlagWrong retires the record attaching a human readable mismatch reason
func (r *AddressRecord) FlagWrong(reason string) {
	r.Status = AddressStatusWrong
	r.WrongReason = reason
}

// Expire transitions a still pending record to expired
func (r *AddressRecord) Expire() {
	if r.Status == AddressStatusPending {
		r.Status = AddressStatusExpired
	}
}
