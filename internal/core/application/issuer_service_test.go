package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/pkg/wallet"
)

func TestIssueAddress(t *testing.T) {
	ctx := context.Background()
	registry := newInMemoryRegistry()
	vaultService := newUnlockedVaultService(t)
	registryService := NewRegistryService(registry, vaultService, 0)
	repoManager := newInMemoryRepoManager()
	svc := NewIssuerService(repoManager, registryService, vaultService, 0)

	before := time.Now()
	record, err := svc.IssueAddress(
		ctx, decimal.RequireFromString("0.05"), "ETH",
	)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), record.Index)
	assert.Equal(t, domain.AddressStatusPending, record.Status)
	assert.True(t, decimal.RequireFromString("0.05").Equal(record.ExpectedAmount))
	assert.WithinDuration(
		t, before.Add(DefaultAddressTTL), record.ExpiresAt, 5*time.Second,
	)

	// a second issuance gets the next index, never a reused one
	second, err := svc.IssueAddress(ctx, decimal.RequireFromString("1"), "ETH")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), second.Index)
	assert.NotEqual(t, record.Address, second.Address)

	stored, err := repoManager.AddressRepository().GetAddressRecord(
		ctx, record.Address,
	)
	require.NoError(t, err)
	assert.Equal(t, record.Index, stored.Index)
}

func TestIssueAddressEmergencyFallback(t *testing.T) {
	ctx := context.Background()
	registry := newInMemoryRegistry()
	registry.putErr = errors.New("disk full")
	vaultService := newUnlockedVaultService(t)
	registryService := NewRegistryService(registry, vaultService, 0)
	repoManager := newInMemoryRepoManager()
	svc := NewIssuerService(repoManager, registryService, vaultService, 0)

	record, err := svc.IssueAddress(
		ctx, decimal.RequireFromString("0.05"), "ETH",
	)
	require.NoError(t, err, "checkout must never be blocked by registry failures")

	assert.Equal(t, wallet.EmergencyIndex, record.Index)
	assert.Equal(t, domain.AddressStatusEmergency, record.Status)

	// concurrent emergency issuances collide on the same address
	again, err := svc.IssueAddress(ctx, decimal.RequireFromString("2"), "ETH")
	require.NoError(t, err)
	assert.Equal(t, record.Address, again.Address)
}

func TestExpireStaleAddresses(t *testing.T) {
	ctx := context.Background()
	registry := newInMemoryRegistry()
	vaultService := newUnlockedVaultService(t)
	registryService := NewRegistryService(registry, vaultService, 0)
	repoManager := newInMemoryRepoManager()

	// near-zero TTL so the record expires immediately
	svc := NewIssuerService(
		repoManager, registryService, vaultService, time.Nanosecond,
	)
	record, err := svc.IssueAddress(ctx, decimal.RequireFromString("1"), "ETH")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	count, err := svc.ExpireStaleAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := repoManager.AddressRepository().GetAddressRecord(
		ctx, record.Address,
	)
	require.NoError(t, err)
	assert.Equal(t, domain.AddressStatusExpired, stored.Status)

	// the sweep is idempotent
	count, err = svc.ExpireStaleAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
