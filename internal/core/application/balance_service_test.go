package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate-network/paygate-daemon/pkg/wallet"
)

func TestGetBalance(t *testing.T) {
	ctx := context.Background()
	client := newFakeChainClient()
	pool := &fakePool{client: client}
	vaultService := newUnlockedVaultService(t)
	registryService := NewRegistryService(newInMemoryRegistry(), vaultService, 0)
	svc := NewBalanceService(pool, vaultService, registryService, time.Minute)

	address := "0x00000000000000000000000000000000000000aa"
	client.setBalance(address, eth("1000000000000000000"))

	info, err := svc.GetBalance(ctx, address, false)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1").Equal(info.Balance))
	assert.False(t, info.Stale)
}

func TestGetBalanceServesStaleOnProviderError(t *testing.T) {
	ctx := context.Background()
	client := newFakeChainClient()
	pool := &fakePool{client: client}
	vaultService := newUnlockedVaultService(t)
	registryService := NewRegistryService(newInMemoryRegistry(), vaultService, 0)
	// zero-ish ttl so the cached value is immediately stale
	svc := NewBalanceService(pool, vaultService, registryService, time.Nanosecond)

	address := "0x00000000000000000000000000000000000000aa"
	client.setBalance(address, eth("1000000000000000000"))

	_, err := svc.GetBalance(ctx, address, false)
	require.NoError(t, err)

	// the provider goes away, the cached value is served flagged stale
	pool.clientErr = errors.New("connection refused")
	time.Sleep(time.Millisecond)

	info, err := svc.GetBalance(ctx, address, false)
	require.NoError(t, err)
	assert.True(t, info.Stale)
	assert.True(t, decimal.RequireFromString("1").Equal(info.Balance))
}

func TestGetBalanceBypassHitsOrigin(t *testing.T) {
	ctx := context.Background()
	client := newFakeChainClient()
	pool := &fakePool{client: client}
	vaultService := newUnlockedVaultService(t)
	registryService := NewRegistryService(newInMemoryRegistry(), vaultService, 0)
	svc := NewBalanceService(pool, vaultService, registryService, time.Minute)

	address := "0x00000000000000000000000000000000000000aa"
	client.setBalance(address, eth("1000000000000000000"))

	_, err := svc.GetBalance(ctx, address, false)
	require.NoError(t, err)

	client.setBalance(address, eth("2000000000000000000"))

	// without bypass the cached value is still served
	info, err := svc.GetBalance(ctx, address, false)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1").Equal(info.Balance))

	info, err = svc.GetBalance(ctx, address, true)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2").Equal(info.Balance))
	assert.False(t, info.Stale)
}

func TestGetTotalBalance(t *testing.T) {
	ctx := context.Background()
	client := newFakeChainClient()
	pool := &fakePool{client: client}
	vaultService := newUnlockedVaultService(t)
	hdWallet, err := vaultService.Wallet()
	require.NoError(t, err)
	registry := newInMemoryRegistry()
	registryService := NewRegistryService(registry, vaultService, 0)
	svc := NewBalanceService(pool, vaultService, registryService, time.Minute)

	root, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{Index: 0})
	require.NoError(t, err)
	payment, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{Index: 1})
	require.NoError(t, err)
	require.NoError(t, registry.Put(ctx, payment, 1))

	client.setBalance(root, eth("1000000000000000000"))
	client.setBalance(payment, eth("500000000000000000"))

	info, err := svc.GetTotalBalance(ctx, false)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.5").Equal(info.Balance))
}
