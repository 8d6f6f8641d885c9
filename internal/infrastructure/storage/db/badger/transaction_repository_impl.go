package dbbadger

import (
	"context"
	"sort"
	"strings"

	"github.com/timshannon/badgerhold/v4"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
)

type transactionRepositoryImpl struct {
	db *DbManager
}

func newTransactionRepositoryImpl(db *DbManager) domain.TransactionRepository {
	return transactionRepositoryImpl{db: db}
}

func (r transactionRepositoryImpl) AddTransaction(
	_ context.Context, tx *domain.Transaction,
) error {
	return r.db.Store.Insert(tx.ID, tx)
}

func (r transactionRepositoryImpl) GetTransaction(
	_ context.Context, id string,
) (*domain.Transaction, error) {
	var tx domain.Transaction
	if err := r.db.Store.Get(id, &tx); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r transactionRepositoryImpl) GetTransactionByHash(
	_ context.Context, hash string,
) (*domain.Transaction, error) {
	query := badgerhold.Where("Hash").Eq(hash)

	var txs []domain.Transaction
	if err := r.db.Store.Find(&txs, query); err != nil {
		return nil, err
	}
	if len(txs) <= 0 {
		return nil, domain.ErrTransactionNotFound
	}
	return &txs[0], nil
}

func (r transactionRepositoryImpl) GetPendingTransactionByPair(
	_ context.Context, from, to string,
) (*domain.Transaction, error) {
	query := badgerhold.
		Where("From").Eq(strings.ToLower(from)).
		And("To").Eq(strings.ToLower(to)).
		And("Status").Eq(domain.TxStatusPending)

	var txs []domain.Transaction
	if err := r.db.Store.Find(&txs, query); err != nil {
		return nil, err
	}
	if len(txs) <= 0 {
		return nil, domain.ErrTransactionNotFound
	}

	// the most recent unconfirmed record wins
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	return &txs[0], nil
}

func (r transactionRepositoryImpl) GetAllTransactions(
	_ context.Context,
) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	if err := r.db.Store.Find(&txs, &badgerhold.Query{}); err != nil {
		return nil, err
	}

	// the ledger is an ordered trail
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})
	return txs, nil
}

func (r transactionRepositoryImpl) UpdateTransaction(
	ctx context.Context, id string,
	updateFn func(tx *domain.Transaction) (*domain.Transaction, error),
) error {
	tx, err := r.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	updatedTx, err := updateFn(tx)
	if err != nil {
		return err
	}

	return r.db.Store.Update(id, updatedTx)
}
