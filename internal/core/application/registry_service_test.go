package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/pkg/wallet"
)

func TestAssignNextIndex(t *testing.T) {
	ctx := context.Background()
	registry := newInMemoryRegistry()
	svc := NewRegistryService(registry, newUnlockedVaultService(t), 0)

	index, err := svc.AssignNextIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), index, "payment indexes start after the root")

	require.NoError(t, registry.Put(ctx, "0xaaaa", 7))
	index, err = svc.AssignNextIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), index)
}

func TestNextAddressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	registry := newInMemoryRegistry()
	svc := NewRegistryService(registry, newUnlockedVaultService(t), 0)

	seen := make(map[uint32]bool)
	for i := 0; i < 5; i++ {
		address, index, err := svc.NextAddress(ctx)
		require.NoError(t, err)
		assert.False(t, seen[index], "index %d handed out twice", index)
		seen[index] = true

		stored, ok, err := registry.Lookup(ctx, address)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, index, stored)
	}
	for i := uint32(1); i <= 5; i++ {
		assert.True(t, seen[i])
	}
}

func TestScanRangeHealsRegistry(t *testing.T) {
	ctx := context.Background()
	vaultService := newUnlockedVaultService(t)
	hdWallet, err := vaultService.Wallet()
	require.NoError(t, err)

	registry := newInMemoryRegistry()
	svc := NewRegistryService(registry, vaultService, 4)

	count, err := svc.ScanRange(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	// every derived address in range must be resolvable afterwards
	for i := uint32(1); i <= 10; i++ {
		address, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{Index: i})
		require.NoError(t, err)
		index, ok, err := registry.Lookup(ctx, address)
		require.NoError(t, err)
		require.True(t, ok, "index %d missing after scan", i)
		assert.Equal(t, i, index)
	}
}

func TestScanRangeMergeIsNonDestructive(t *testing.T) {
	ctx := context.Background()
	vaultService := newUnlockedVaultService(t)
	hdWallet, err := vaultService.Wallet()
	require.NoError(t, err)

	registry := newInMemoryRegistry()
	address, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{Index: 3})
	require.NoError(t, err)
	// a pre-existing (possibly manual) entry must survive the scan
	require.NoError(t, registry.Put(ctx, address, 3))

	svc := NewRegistryService(registry, vaultService, 0)
	_, err = svc.ScanRange(ctx, 5)
	require.NoError(t, err)

	index, ok, err := registry.Lookup(ctx, address)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(3), index)
}

func TestFindByAddress(t *testing.T) {
	ctx := context.Background()
	vaultService := newUnlockedVaultService(t)
	hdWallet, err := vaultService.Wallet()
	require.NoError(t, err)

	registry := newInMemoryRegistry()
	svc := NewRegistryService(registry, vaultService, 0)

	target, err := hdWallet.DeriveAddress(wallet.DeriveKeyPairOpts{Index: 42})
	require.NoError(t, err)

	index, err := svc.FindByAddress(ctx, strings.ToUpper(target), 100)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), index)

	// the scan result is cached back into the registry
	cached, ok, err := registry.Lookup(ctx, target)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(42), cached)
}

func TestFindByAddressNotFound(t *testing.T) {
	ctx := context.Background()
	svc := NewRegistryService(newInMemoryRegistry(), newUnlockedVaultService(t), 0)

	_, err := svc.FindByAddress(
		ctx, "0x000000000000000000000000000000000000dead", 50,
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIndexNotFound))
}
