package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxStatus is the lifecycle state of a submitted transaction
type TxStatus string

const (
	// TxStatusPending ...
	TxStatusPending TxStatus = "pending"
	// TxStatusConfirmed ...
	TxStatusConfirmed TxStatus = "confirmed"
	// TxStatusFailed ...
	TxStatusFailed TxStatus = "failed"
)

// TxType distinguishes customer payments from fund releases to the
// merchant address
type TxType string

const (
	// TxTypePayment ...
	TxTypePayment TxType = "payment"
	// TxTypeRelease ...
	TxTypeRelease TxType = "release"
)

// TxStatusChange is a single append-only entry of a transaction's status
// history
type TxStatusChange struct {
	Status    TxStatus
	Detail    string
	Timestamp time.Time
}

// Transaction is the ledger record of a transfer submitted by the daemon.
// Amounts are tracked both as the requested decimal and as the wei amount
// actually sent, so aggregates never go through floating point.
type Transaction struct {
	ID              string
	Hash            string
	From            string
	To              string
	AmountRequested decimal.Decimal
	AmountSentWei   string
	Nonce           uint64
	GasPrice        string
	Status          TxStatus
	StatusHistory   []TxStatusChange
	BlockNumber     uint64
	Type            TxType
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTransaction returns a pending ledger record for a transfer about to be
// broadcast
func NewTransaction(
	from, to string, amountRequested decimal.Decimal, amountSentWei *big.Int,
	nonce uint64, gasPrice *big.Int, txType TxType,
) *Transaction {
	now := time.Now()
	tx := &Transaction{
		ID:              uuid.New().String(),
		From:            strings.ToLower(from),
		To:              strings.ToLower(to),
		AmountRequested: amountRequested,
		AmountSentWei:   amountSentWei.String(),
		Nonce:           nonce,
		GasPrice:        gasPrice.String(),
		Status:          TxStatusPending,
		Type:            txType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx.appendStatus(TxStatusPending, "created", now)
	return tx
}

// Confirm records the mined block and appends a confirmed entry to the
// status history
func (t *Transaction) Confirm(blockNumber uint64) {
	t.Status = TxStatusConfirmed
	t.BlockNumber = blockNumber
	t.UpdatedAt = time.Now()
	t.appendStatus(TxStatusConfirmed, "", t.UpdatedAt)
}

// Fail appends a failed entry carrying the last cause to the status history
func (t *Transaction) Fail(cause string) {
	t.Status = TxStatusFailed
	t.UpdatedAt = time.Now()
	t.appendStatus(TxStatusFailed, cause, t.UpdatedAt)
}

// IsPending ...
func (t *Transaction) IsPending() bool {
	return t.Status == TxStatusPending
}

// AmountSent returns the sent amount as big integer wei
func (t *Transaction) AmountSent() *big.Int {
	amount, ok := new(big.Int).SetString(t.AmountSentWei, 10)
	if !ok {
		return big.NewInt(0)
	}
	return amount
}

// status history is append-only: entries are never rewritten or dropped
func (t *Transaction) appendStatus(status TxStatus, detail string, at time.Time) {
	t.StatusHistory = append(t.StatusHistory, TxStatusChange{
		Status:    status,
		Detail:    detail,
		Timestamp: at,
	})
}
