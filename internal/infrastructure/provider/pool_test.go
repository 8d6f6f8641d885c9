package provider

import (
	"context"
	"errors"
	"math/big"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/internal/core/ports"
)

var errTimeout = errors.New("dial tcp: i/o timeout")

type fakeClient struct {
	chainID  *big.Int
	liveErr  error
	closed   bool
	endpoint string
}

func (c *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	return c.chainID, nil
}
func (c *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	if c.liveErr != nil {
		return 0, c.liveErr
	}
	return 100, nil
}
func (c *fakeClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (c *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (c *fakeClient) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return 0, nil
}
func (c *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (c *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return nil
}
func (c *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (c *fakeClient) Close() { c.closed = true }

// fakeFactory dials fake clients from a per-endpoint table. Endpoints
// missing from the table fail to dial.
func fakeFactory(clients map[string]*fakeClient) ports.ProviderFactory {
	return func(ctx context.Context, endpoint string) (ports.ProviderClient, error) {
		client, ok := clients[endpoint]
		if !ok {
			return nil, errTimeout
		}
		client.endpoint = endpoint
		return client, nil
	}
}

func newTestPool(t *testing.T, endpoints []string, factory ports.ProviderFactory) ports.ProviderPool {
	t.Helper()
	p, err := NewPool(PoolOpts{
		Endpoints: endpoints,
		ChainID:   big.NewInt(1),
		Factory:   factory,
	})
	require.NoError(t, err)
	return p
}

func TestConnectSkipsDeadEndpoint(t *testing.T) {
	good := &fakeClient{chainID: big.NewInt(1)}
	pool := newTestPool(t,
		[]string{"http://bad:8545", "http://good:8545"},
		fakeFactory(map[string]*fakeClient{"http://good:8545": good}),
	)

	client, err := pool.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, good, client)
	assert.Equal(t, ports.StateConnected, pool.State())
}

func TestConnectRejectsWrongChainIdentity(t *testing.T) {
	wrongChain := &fakeClient{chainID: big.NewInt(5)}
	good := &fakeClient{chainID: big.NewInt(1)}
	pool := newTestPool(t,
		[]string{"http://wrong:8545", "http://good:8545"},
		fakeFactory(map[string]*fakeClient{
			"http://wrong:8545": wrongChain,
			"http://good:8545":  good,
		}),
	)

	client, err := pool.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, good, client)
	assert.True(t, wrongChain.closed)
}

func TestConnectFailsWhenNoEndpointQualifies(t *testing.T) {
	dead := &fakeClient{chainID: big.NewInt(1), liveErr: syscall.ECONNREFUSED}
	pool := newTestPool(t,
		[]string{"http://dead:8545"},
		fakeFactory(map[string]*fakeClient{"http://dead:8545": dead}),
	)

	_, err := pool.Client(context.Background())
	assert.Equal(t, domain.ErrProviderUnavailable, err)
	assert.Equal(t, ports.StateDisconnected, pool.State())
}

func TestReconnectFallsBackToLastKnownGood(t *testing.T) {
	good := &fakeClient{chainID: big.NewInt(1)}
	clients := map[string]*fakeClient{"http://good:8545": good}
	pool := newTestPool(t, []string{"http://good:8545"}, fakeFactory(clients))

	_, err := pool.Client(context.Background())
	require.NoError(t, err)

	// the endpoint dies after the first bind
	delete(clients, "http://good:8545")

	client, err := pool.Reconnect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, good, client)
	assert.Equal(t, ports.StateDegraded, pool.State())
	assert.False(t, good.closed, "last known good connection must stay open")
}

func TestStaleLastKnownGoodIsNotServed(t *testing.T) {
	good := &fakeClient{chainID: big.NewInt(1)}
	clients := map[string]*fakeClient{"http://good:8545": good}
	p, err := NewPool(PoolOpts{
		Endpoints:       []string{"http://good:8545"},
		ChainID:         big.NewInt(1),
		Factory:         fakeFactory(clients),
		FreshnessWindow: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = p.Client(context.Background())
	require.NoError(t, err)

	delete(clients, "http://good:8545")
	time.Sleep(20 * time.Millisecond)

	_, err = p.Reconnect(context.Background())
	assert.Equal(t, domain.ErrProviderUnavailable, err)
	assert.Equal(t, ports.StateDisconnected, p.State())
}

func TestFailingNewPool(t *testing.T) {
	_, err := NewPool(PoolOpts{ChainID: big.NewInt(1), Factory: DialFactory})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewPool(PoolOpts{Endpoints: []string{"http://x"}, Factory: DialFactory})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"deadline", context.DeadlineExceeded, KindProvider},
		{"refused", syscall.ECONNREFUSED, KindProvider},
		{"already known", errors.New("already known"), KindAlreadyKnown},
		{"nonce too low", errors.New("nonce too low"), KindNonceRace},
		{"underpriced", errors.New("replacement transaction underpriced"), KindNonceRace},
		{"insufficient", errors.New("insufficient funds for gas * price + value"), KindFunds},
		{"malformed body", errors.New("invalid character '<' looking for beginning of value"), KindProvider},
		{"http 502", errors.New("502 bad gateway"), KindProvider},
		{"other", errors.New("execution reverted"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(KindProvider, 1, 5))
	assert.True(t, Retryable(KindNonceRace, 4, 5))
	assert.False(t, Retryable(KindProvider, 5, 5))
	assert.False(t, Retryable(KindFunds, 1, 5))
	assert.False(t, Retryable(KindUnknown, 1, 5))
}
