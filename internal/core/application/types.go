package application

import (
	"github.com/shopspring/decimal"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
)

// VerifyResult is the outcome of reconciling an observed payment against
// its address record
type VerifyResult struct {
	Verified    bool
	WrongReason string
}

// BalanceInfo carries a balance along with a staleness flag set when the
// value was served from cache because the provider errored
type BalanceInfo struct {
	Address string
	Balance decimal.Decimal
	Stale   bool
}

// ReleaseSummary aggregates the per-address outcomes of a releaseAll run
type ReleaseSummary struct {
	Released      int
	Skipped       int
	Failed        int
	TotalReleased decimal.Decimal
	Transactions  []domain.Transaction
}

// ReleaseResult is the union returned by ReleaseFunds: a single
// transaction for an amount release, a summary for a release-all
type ReleaseResult struct {
	Transaction *domain.Transaction
	Summary     *ReleaseSummary
}
