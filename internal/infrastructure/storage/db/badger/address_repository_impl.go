package dbbadger

import (
	"context"
	"strings"

	"github.com/timshannon/badgerhold/v4"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
)

type addressRepositoryImpl struct {
	db *DbManager
}

func newAddressRepositoryImpl(db *DbManager) domain.AddressRepository {
	return addressRepositoryImpl{db: db}
}

func (r addressRepositoryImpl) AddAddressRecord(
	_ context.Context, record *domain.AddressRecord,
) error {
	return r.db.Store.Insert(strings.ToLower(record.Address), record)
}

func (r addressRepositoryImpl) GetAddressRecord(
	_ context.Context, address string,
) (*domain.AddressRecord, error) {
	var record domain.AddressRecord
	if err := r.db.Store.Get(strings.ToLower(address), &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrAddressRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r addressRepositoryImpl) GetAllAddressRecords(
	_ context.Context,
) ([]domain.AddressRecord, error) {
	var records []domain.AddressRecord
	if err := r.db.Store.Find(&records, &badgerhold.Query{}); err != nil {
		return nil, err
	}
	return records, nil
}

func (r addressRepositoryImpl) UpdateAddressRecord(
	ctx context.Context, address string,
	updateFn func(record *domain.AddressRecord) (*domain.AddressRecord, error),
) error {
	record, err := r.GetAddressRecord(ctx, address)
	if err != nil {
		return err
	}

	updatedRecord, err := updateFn(record)
	if err != nil {
		return err
	}

	return r.db.Store.Update(strings.ToLower(address), updatedRecord)
}
