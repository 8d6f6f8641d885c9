package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ProviderClient is the JSON-RPC surface the daemon needs from a blockchain
// node. The production implementation wraps go-ethereum's ethclient; tests
// inject fakes so no network is involved.
type ProviderClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// ProviderFactory dials a single endpoint. Injected into the pool so its
// selection logic is testable without real network I/O.
type ProviderFactory func(ctx context.Context, endpoint string) (ProviderClient, error)

// ConnectionState is the observable state of the provider pool
type ConnectionState string

const (
	// StateDisconnected ...
	StateDisconnected ConnectionState = "disconnected"
	// StateProbing means the pool is walking the endpoint list
	StateProbing ConnectionState = "probing"
	// StateConnected means a verified endpoint is bound
	StateConnected ConnectionState = "connected"
	// StateDegraded means every endpoint failed and the pool is serving
	// from the freshness-bounded last known good connection
	StateDegraded ConnectionState = "degraded"
)

// ProviderPool manages the ordered list of RPC endpoints with liveness and
// chain-identity verification, failover and a last-known-good fallback.
type ProviderPool interface {
	// Client returns a verified connection, reconnecting if needed
	Client(ctx context.Context) (ProviderClient, error)
	// Reconnect drops the bound endpoint and probes the list again. Called
	// after any downstream provider-class failure instead of retrying the
	// same endpoint.
	Reconnect(ctx context.Context) (ProviderClient, error)
	State() ConnectionState
	Close()
}
