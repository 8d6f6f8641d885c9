package dbbadger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
)

func newTestDb(t *testing.T) *DbManager {
	t.Helper()
	db, err := NewDbManager(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestAddressRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestDb(t).AddressRepository()

	record := domain.NewAddressRecord(
		"0xAbCd000000000000000000000000000000001234", 5,
		decimal.RequireFromString("0.05"), "ETH", 30*time.Minute,
	)
	require.NoError(t, repo.AddAddressRecord(ctx, record))

	// fetched back case insensitively and with the amount intact
	found, err := repo.GetAddressRecord(ctx, "0xABCD000000000000000000000000000000001234")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), found.Index)
	assert.True(t, decimal.RequireFromString("0.05").Equal(found.ExpectedAmount))
	assert.Equal(t, domain.AddressStatusPending, found.Status)

	_, err = repo.GetAddressRecord(ctx, "0x0000000000000000000000000000000000000000")
	assert.Equal(t, domain.ErrAddressRecordNotFound, err)

	err = repo.UpdateAddressRecord(ctx, record.Address,
		func(r *domain.AddressRecord) (*domain.AddressRecord, error) {
			r.FlagWrong("amount mismatch")
			return r, nil
		},
	)
	require.NoError(t, err)

	found, err = repo.GetAddressRecord(ctx, record.Address)
	require.NoError(t, err)
	assert.True(t, found.IsRetired())

	all, err := repo.GetAllAddressRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTransactionRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestDb(t).TransactionRepository()

	from := "0xaaaa000000000000000000000000000000000000"
	to := "0xbbbb000000000000000000000000000000000000"

	first := domain.NewTransaction(
		from, to, decimal.RequireFromString("0.01"),
		big.NewInt(9800000000000000), 1, big.NewInt(20000000000),
		domain.TxTypeRelease,
	)
	require.NoError(t, repo.AddTransaction(ctx, first))

	pending, err := repo.GetPendingTransactionByPair(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, first.ID, pending.ID)

	// confirming flushes it out of the pending view
	err = repo.UpdateTransaction(ctx, first.ID,
		func(tx *domain.Transaction) (*domain.Transaction, error) {
			tx.Hash = "0xdeadbeef"
			tx.Confirm(42)
			return tx, nil
		},
	)
	require.NoError(t, err)

	_, err = repo.GetPendingTransactionByPair(ctx, from, to)
	assert.Equal(t, domain.ErrTransactionNotFound, err)

	byHash, err := repo.GetTransactionByHash(ctx, "0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusConfirmed, byHash.Status)
	assert.Equal(t, uint64(42), byHash.BlockNumber)
	assert.Len(t, byHash.StatusHistory, 2)

	second := domain.NewTransaction(
		from, to, decimal.Zero, big.NewInt(1), 2, big.NewInt(1),
		domain.TxTypeRelease,
	)
	require.NoError(t, repo.AddTransaction(ctx, second))

	all, err := repo.GetAllTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID, "ledger must stay ordered by creation time")
}
