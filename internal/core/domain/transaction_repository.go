package domain

import "context"

// TransactionRepository is the persistence boundary for the transaction
// ledger. Records are only ever inserted or updated through a closure,
// never deleted, so the ledger stays an ordered, append-only trail.
type TransactionRepository interface {
	AddTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	GetTransactionByHash(ctx context.Context, hash string) (*Transaction, error)
	// GetPendingTransactionByPair returns the unconfirmed record for the
	// given (from, to) pair, if any. It backs the submitter's idempotency
	// guard against duplicate sends.
	GetPendingTransactionByPair(ctx context.Context, from, to string) (*Transaction, error)
	GetAllTransactions(ctx context.Context) ([]Transaction, error)
	UpdateTransaction(
		ctx context.Context, id string,
		updateFn func(tx *Transaction) (*Transaction, error),
	) error
}
