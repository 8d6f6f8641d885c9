package application

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/internal/core/ports"
)

var testMnemonic = strings.Split(
	"legal winner thank year wave sausage worth useful legal winner "+
		"thank year wave sausage worth useful legal winner thank year "+
		"wave sausage worth title",
	" ",
)

const testPassphrase = "secret"

// ---- vault ----

type inMemoryVaultRepo struct {
	mtx   sync.Mutex
	vault *domain.Vault
}

func (r *inMemoryVaultRepo) GetVault(_ context.Context) (*domain.Vault, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.vault == nil {
		return nil, domain.ErrVaultNotInitialized
	}
	v := *r.vault
	return &v, nil
}

func (r *inMemoryVaultRepo) AddVault(_ context.Context, vault *domain.Vault) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.vault != nil {
		return domain.ErrVaultAlreadyInitialized
	}
	r.vault = vault
	return nil
}

func (r *inMemoryVaultRepo) UpdateVault(
	ctx context.Context, updateFn func(v *domain.Vault) (*domain.Vault, error),
) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.vault == nil {
		return domain.ErrVaultNotInitialized
	}
	updated, err := updateFn(r.vault)
	if err != nil {
		return err
	}
	r.vault = updated
	return nil
}

func newUnlockedVaultService(t *testing.T) VaultService {
	t.Helper()
	svc := NewVaultService(&inMemoryVaultRepo{}, 0)
	ctx := context.Background()
	require.NoError(t, svc.InitVault(ctx, testMnemonic, testPassphrase))
	require.NoError(t, svc.UnlockVault(ctx, testPassphrase))
	return svc
}

// ---- registry ----

type inMemoryRegistry struct {
	mtx     sync.Mutex
	entries map[string]uint32
	putErr  error
}

func newInMemoryRegistry() *inMemoryRegistry {
	return &inMemoryRegistry{entries: make(map[string]uint32)}
}

func (r *inMemoryRegistry) Lookup(
	_ context.Context, address string,
) (uint32, bool, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	index, ok := r.entries[strings.ToLower(address)]
	return index, ok, nil
}

func (r *inMemoryRegistry) Put(
	_ context.Context, address string, index uint32,
) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.putErr != nil {
		return r.putErr
	}
	r.entries[strings.ToLower(address)] = index
	return nil
}

func (r *inMemoryRegistry) Merge(
	_ context.Context, mappings map[string]uint32,
) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for address, index := range mappings {
		key := strings.ToLower(address)
		if _, ok := r.entries[key]; !ok {
			r.entries[key] = index
		}
	}
	return nil
}

func (r *inMemoryRegistry) MaxIndex(_ context.Context) (uint32, bool, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var max uint32
	found := false
	for _, index := range r.entries {
		if !found || index > max {
			max = index
			found = true
		}
	}
	return max, found, nil
}

func (r *inMemoryRegistry) All(_ context.Context) (map[string]uint32, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make(map[string]uint32, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out, nil
}

// ---- repo manager ----

type inMemoryAddressRepo struct {
	mtx     sync.Mutex
	records map[string]*domain.AddressRecord
}

func (r *inMemoryAddressRepo) AddAddressRecord(
	_ context.Context, record *domain.AddressRecord,
) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, ok := r.records[record.Address]; ok {
		return errors.New("key exists")
	}
	clone := *record
	r.records[record.Address] = &clone
	return nil
}

func (r *inMemoryAddressRepo) GetAddressRecord(
	_ context.Context, address string,
) (*domain.AddressRecord, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	record, ok := r.records[strings.ToLower(address)]
	if !ok {
		return nil, domain.ErrAddressRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (r *inMemoryAddressRepo) GetAllAddressRecords(
	_ context.Context,
) ([]domain.AddressRecord, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]domain.AddressRecord, 0, len(r.records))
	for _, record := range r.records {
		out = append(out, *record)
	}
	return out, nil
}

func (r *inMemoryAddressRepo) UpdateAddressRecord(
	ctx context.Context, address string,
	updateFn func(record *domain.AddressRecord) (*domain.AddressRecord, error),
) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	record, ok := r.records[strings.ToLower(address)]
	if !ok {
		return domain.ErrAddressRecordNotFound
	}
	updated, err := updateFn(record)
	if err != nil {
		return err
	}
	r.records[strings.ToLower(address)] = updated
	return nil
}

type inMemoryTxRepo struct {
	mtx sync.Mutex
	txs map[string]*domain.Transaction
}

func (r *inMemoryTxRepo) AddTransaction(
	_ context.Context, tx *domain.Transaction,
) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	clone := *tx
	r.txs[tx.ID] = &clone
	return nil
}

func (r *inMemoryTxRepo) GetTransaction(
	_ context.Context, id string,
) (*domain.Transaction, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	clone := *tx
	return &clone, nil
}

func (r *inMemoryTxRepo) GetTransactionByHash(
	_ context.Context, hash string,
) (*domain.Transaction, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for _, tx := range r.txs {
		if tx.Hash == hash {
			clone := *tx
			return &clone, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *inMemoryTxRepo) GetPendingTransactionByPair(
	_ context.Context, from, to string,
) (*domain.Transaction, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for _, tx := range r.txs {
		if tx.From == strings.ToLower(from) && tx.To == strings.ToLower(to) &&
			tx.IsPending() {
			clone := *tx
			return &clone, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *inMemoryTxRepo) GetAllTransactions(
	_ context.Context,
) ([]domain.Transaction, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]domain.Transaction, 0, len(r.txs))
	for _, tx := range r.txs {
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *inMemoryTxRepo) UpdateTransaction(
	ctx context.Context, id string,
	updateFn func(tx *domain.Transaction) (*domain.Transaction, error),
) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	updated, err := updateFn(tx)
	if err != nil {
		return err
	}
	r.txs[id] = updated
	return nil
}

type inMemoryRepoManager struct {
	addressRepo *inMemoryAddressRepo
	txRepo      *inMemoryTxRepo
}

func newInMemoryRepoManager() *inMemoryRepoManager {
	return &inMemoryRepoManager{
		addressRepo: &inMemoryAddressRepo{
			records: make(map[string]*domain.AddressRecord),
		},
		txRepo: &inMemoryTxRepo{txs: make(map[string]*domain.Transaction)},
	}
}

func (m *inMemoryRepoManager) AddressRepository() domain.AddressRepository {
	return m.addressRepo
}

func (m *inMemoryRepoManager) TransactionRepository() domain.TransactionRepository {
	return m.txRepo
}

func (m *inMemoryRepoManager) Close() {}

// ---- provider ----

type fakeChainClient struct {
	mtx           sync.Mutex
	chainID       *big.Int
	blockNumber   uint64
	balances      map[common.Address]*big.Int
	pendingNonces map[common.Address]uint64
	latestNonces  map[common.Address]uint64
	gasPrice      *big.Int
	gasPriceErr   error
	sendErrs      []error
	sent          []*types.Transaction
	receipts      map[common.Hash]*types.Receipt
	mineOnSend    bool
}

func newFakeChainClient() *fakeChainClient {
	return &fakeChainClient{
		chainID:       big.NewInt(1),
		blockNumber:   100,
		balances:      make(map[common.Address]*big.Int),
		pendingNonces: make(map[common.Address]uint64),
		latestNonces:  make(map[common.Address]uint64),
		gasPrice:      big.NewInt(10000000000), // 10 gwei
		receipts:      make(map[common.Hash]*types.Receipt),
		mineOnSend:    true,
	}
}

func (c *fakeChainClient) setBalance(address string, wei *big.Int) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.balances[common.HexToAddress(address)] = wei
}

func (c *fakeChainClient) ChainID(_ context.Context) (*big.Int, error) {
	return c.chainID, nil
}

func (c *fakeChainClient) BlockNumber(_ context.Context) (uint64, error) {
	return c.blockNumber, nil
}

func (c *fakeChainClient) BalanceAt(
	_ context.Context, account common.Address, _ *big.Int,
) (*big.Int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if balance, ok := c.balances[account]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (c *fakeChainClient) PendingNonceAt(
	_ context.Context, account common.Address,
) (uint64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.pendingNonces[account], nil
}

func (c *fakeChainClient) NonceAt(
	_ context.Context, account common.Address, _ *big.Int,
) (uint64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.latestNonces[account], nil
}

func (c *fakeChainClient) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.gasPriceErr != nil {
		return nil, c.gasPriceErr
	}
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *fakeChainClient) SendTransaction(
	_ context.Context, tx *types.Transaction,
) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if len(c.sendErrs) > 0 {
		err := c.sendErrs[0]
		c.sendErrs = c.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	c.sent = append(c.sent, tx)
	if c.mineOnSend {
		c.receipts[tx.Hash()] = &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: new(big.Int).SetUint64(c.blockNumber),
		}
	}
	return nil
}

func (c *fakeChainClient) TransactionReceipt(
	_ context.Context, txHash common.Hash,
) (*types.Receipt, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, errors.New("not found")
	}
	return receipt, nil
}

func (c *fakeChainClient) Close() {}

func (c *fakeChainClient) sentCount() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.sent)
}

type fakePool struct {
	mtx        sync.Mutex
	client     ports.ProviderClient
	clientErr  error
	reconnects int
}

func (p *fakePool) Client(_ context.Context) (ports.ProviderClient, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.clientErr != nil {
		return nil, p.clientErr
	}
	return p.client, nil
}

func (p *fakePool) Reconnect(ctx context.Context) (ports.ProviderClient, error) {
	p.mtx.Lock()
	p.reconnects++
	p.mtx.Unlock()
	return p.Client(ctx)
}

func (p *fakePool) State() ports.ConnectionState { return ports.StateConnected }

func (p *fakePool) Close() {}

func fastSubmitterOpts() SubmitterOpts {
	return SubmitterOpts{
		ChainID:        big.NewInt(1),
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: 500 * time.Millisecond,
	}
}
