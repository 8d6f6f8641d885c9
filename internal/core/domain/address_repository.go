package domain

import "context"

// AddressRepository is the persistence boundary for issued payment
// addresses. Updates go through a closure so that issuance, reconciliation
// and release cannot race on the same record.
type AddressRepository interface {
	AddAddressRecord(ctx context.Context, record *AddressRecord) error
	GetAddressRecord(ctx context.Context, address string) (*AddressRecord, error)
	GetAllAddressRecords(ctx context.Context) ([]AddressRecord, error)
	UpdateAddressRecord(
		ctx context.Context, address string,
		updateFn func(record *AddressRecord) (*AddressRecord, error),
	) error
}
