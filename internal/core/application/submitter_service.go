package application

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/internal/core/ports"
	"github.com/paygate-network/paygate-daemon/internal/infrastructure/provider"
	"github.com/paygate-network/paygate-daemon/internal/metrics"
	"github.com/paygate-network/paygate-daemon/pkg/mathutil"
	"github.com/paygate-network/paygate-daemon/pkg/wallet"
)

const (
	// TransferGasLimit is the fixed gas budget of a plain value transfer
	TransferGasLimit uint64 = 21000
	// DefaultMaxSendAttempts bounds the broadcast retry loop
	DefaultMaxSendAttempts = 5
	// DefaultBackoffBase is the first retry delay, doubled per attempt
	DefaultBackoffBase = 2 * time.Second
	// DefaultBackoffMax caps the retry delay
	DefaultBackoffMax = 30 * time.Second
	// DefaultReceiptPollInterval is how often a broadcast transaction is
	// polled for its mined receipt
	DefaultReceiptPollInterval = 5 * time.Second
	// DefaultConfirmTimeout bounds the receipt wait. On expiry the caller
	// gets the persisted pending record back instead of hanging.
	DefaultConfirmTimeout = 2 * time.Minute
)

// DefaultGasPriceFallback (20 gwei) is used only when the suggested gas
// price cannot be fetched from any provider
var DefaultGasPriceFallback = big.NewInt(20000000000)

// SendRequest describes a single value transfer to build, sign and
// broadcast. FromIndex selects the derivation index of the funding
// address. GasPrice, when set, overrides the suggested-price computation.
type SendRequest struct {
	FromIndex uint32
	To        string
	AmountWei *big.Int
	SendAll   bool
	GasPrice  *big.Int
	Type      domain.TxType
}

// TxSubmitterService builds, signs, broadcasts and confirms transfers. It
// guarantees nonce safety via a per-source-address exclusive lock, an
// idempotency guard on the (from, to) pair, and bounded retries with
// provider failover.
type TxSubmitterService interface {
	Send(ctx context.Context, req SendRequest) (*domain.Transaction, error)
	// GasPrice returns the marked-up gas price the next Send would use
	GasPrice(ctx context.Context) (*big.Int, error)
}

// SubmitterOpts configures a TxSubmitterService. Zero durations and
// counts fall back to the package defaults.
type SubmitterOpts struct {
	ChainID        *big.Int
	GasPriceFloor  *big.Int
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

func (o *SubmitterOpts) fillDefaults() {
	if o.GasPriceFloor == nil {
		o.GasPriceFloor = big.NewInt(0)
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxSendAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultReceiptPollInterval
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = DefaultConfirmTimeout
	}
}

type submitterService struct {
	repoManager  ports.RepoManager
	pool         ports.ProviderPool
	vaultService VaultService
	opts         SubmitterOpts

	// one lock per funding address so overlapping sends from the same
	// source are serialized and cannot race on the nonce
	locksMtx  *sync.Mutex
	addrLocks map[string]*sync.Mutex
}

// NewTxSubmitterService returns a TxSubmitterService signing for the
// chain identified by opts.ChainID
func NewTxSubmitterService(
	repoManager ports.RepoManager, pool ports.ProviderPool,
	vaultService VaultService, opts SubmitterOpts,
) (TxSubmitterService, error) {
	if opts.ChainID == nil || opts.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("%w: missing chain id", domain.ErrConfiguration)
	}
	opts.fillDefaults()
	return &submitterService{
		repoManager:  repoManager,
		pool:         pool,
		vaultService: vaultService,
		opts:         opts,
		locksMtx:     &sync.Mutex{},
		addrLocks:    make(map[string]*sync.Mutex),
	}, nil
}

func (s *submitterService) Send(
	ctx context.Context, req SendRequest,
) (*domain.Transaction, error) {
	hdWallet, err := s.vaultService.Wallet()
	if err != nil {
		return nil, err
	}
	privateKey, from, err := hdWallet.DeriveKeyPair(wallet.DeriveKeyPairOpts{
		Index: req.FromIndex,
	})
	if err != nil {
		return nil, err
	}

	lock := s.lockFor(from)
	lock.Lock()
	defer lock.Unlock()

	if tx, err := s.checkInFlight(ctx, from, req.To); err != nil || tx != nil {
		return tx, err
	}

	client, err := s.pool.Client(ctx)
	if err != nil {
		return nil, err
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		if gasPrice, err = s.gasPrice(ctx, client); err != nil {
			return nil, err
		}
		// the client may have been swapped while fetching the gas price
		if client, err = s.pool.Client(ctx); err != nil {
			return nil, err
		}
	}

	nonce, err := s.nextNonce(ctx, client, from)
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}

	gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(TransferGasLimit))
	balance, err := client.BalanceAt(ctx, common.HexToAddress(from), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching balance: %w", err)
	}

	amount := req.AmountWei
	if req.SendAll {
		amount = new(big.Int).Sub(balance, gasCost)
		if amount.Sign() <= 0 {
			return nil, fmt.Errorf(
				"%w: balance %s does not cover gas cost %s",
				domain.ErrInsufficientFunds, balance, gasCost,
			)
		}
	} else {
		if amount == nil || amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w: non-positive amount", domain.ErrConfiguration)
		}
		required := new(big.Int).Add(amount, gasCost)
		if balance.Cmp(required) < 0 {
			return nil, fmt.Errorf(
				"%w: balance %s, required %s including gas",
				domain.ErrInsufficientFunds, balance, required,
			)
		}
	}

	signedTx, err := s.signTransfer(privateKey, req.To, amount, nonce, gasPrice)
	if err != nil {
		return nil, err
	}

	record := domain.NewTransaction(
		from, req.To, mathutil.FromWei(amount), amount, nonce, gasPrice, req.Type,
	)
	record.Hash = signedTx.Hash().Hex()
	if err := s.repoManager.TransactionRepository().AddTransaction(
		ctx, record,
	); err != nil {
		return nil, err
	}

	if err := s.broadcast(ctx, client, record, signedTx, privateKey, req.To, amount, gasPrice); err != nil {
		return record, err
	}

	return s.awaitReceipt(ctx, record)
}

func (s *submitterService) GasPrice(ctx context.Context) (*big.Int, error) {
	client, err := s.pool.Client(ctx)
	if err != nil {
		return nil, err
	}
	return s.gasPrice(ctx, client)
}

// checkInFlight enforces the idempotency guard: a confirmed record on the
// pair short-circuits to the prior result, a failed one clears the way for
// a fresh send, an unmined one is surfaced as in-flight without
// duplicating.
func (s *submitterService) checkInFlight(
	ctx context.Context, from, to string,
) (*domain.Transaction, error) {
	repo := s.repoManager.TransactionRepository()
	pending, err := repo.GetPendingTransactionByPair(ctx, from, to)
	if err != nil {
		if err == domain.ErrTransactionNotFound {
			return nil, nil
		}
		return nil, err
	}

	if pending.Hash == "" {
		return pending, domain.ErrTxInFlight
	}

	client, err := s.pool.Client(ctx)
	if err != nil {
		return nil, err
	}
	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(pending.Hash))
	if err != nil || receipt == nil {
		// not mined yet
		return pending, domain.ErrTxInFlight
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		if err := repo.UpdateTransaction(
			ctx, pending.ID,
			func(tx *domain.Transaction) (*domain.Transaction, error) {
				tx.Confirm(receipt.BlockNumber.Uint64())
				return tx, nil
			},
		); err != nil {
			return nil, err
		}
		confirmed, err := repo.GetTransaction(ctx, pending.ID)
		if err != nil {
			return nil, err
		}
		log.WithField("hash", confirmed.Hash).
			Info("in-flight transaction already confirmed, skipping duplicate send")
		return confirmed, nil
	}

	// mined but reverted, record it and let the caller send anew
	if err := repo.UpdateTransaction(
		ctx, pending.ID,
		func(tx *domain.Transaction) (*domain.Transaction, error) {
			tx.Fail("reverted on chain")
			return tx, nil
		},
	); err != nil {
		return nil, err
	}
	return nil, nil
}

// nextNonce takes the max of the pending-pool view and the latest
// confirmed view so an unconfirmed in-flight transaction is never
// collided with
func (s *submitterService) nextNonce(
	ctx context.Context, client ports.ProviderClient, from string,
) (uint64, error) {
	account := common.HexToAddress(from)
	pendingNonce, err := client.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, err
	}
	latestNonce, err := client.NonceAt(ctx, account, nil)
	if err != nil {
		return 0, err
	}
	if latestNonce > pendingNonce {
		return latestNonce, nil
	}
	return pendingNonce, nil
}

// gasPrice floors the network-suggested price at the configured minimum
// and adds a 20% markup for faster inclusion. A fetch failure is retried
// once against a fresh provider before falling back to the hardcoded
// default.
func (s *submitterService) gasPrice(
	ctx context.Context, client ports.ProviderClient,
) (*big.Int, error) {
	suggested, err := client.SuggestGasPrice(ctx)
	if err != nil {
		metrics.ProviderFailovers.Inc()
		freshClient, reconnectErr := s.pool.Reconnect(ctx)
		if reconnectErr == nil {
			suggested, err = freshClient.SuggestGasPrice(ctx)
		}
		if err != nil || reconnectErr != nil {
			log.WithError(err).Warn("gas price unavailable, using fallback")
			suggested = new(big.Int).Set(DefaultGasPriceFallback)
		}
	}

	if suggested.Cmp(s.opts.GasPriceFloor) < 0 {
		suggested = new(big.Int).Set(s.opts.GasPriceFloor)
	}

	marked := new(big.Int).Mul(suggested, big.NewInt(120))
	return marked.Div(marked, big.NewInt(100)), nil
}

func (s *submitterService) signTransfer(
	privateKey *ecdsa.PrivateKey, to string, amount *big.Int,
	nonce uint64, gasPrice *big.Int,
) (*types.Transaction, error) {
	toAddress := common.HexToAddress(to)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      TransferGasLimit,
		To:       &toAddress,
		Value:    amount,
	})
	return types.SignTx(tx, types.LatestSignerForChainID(s.opts.ChainID), privateKey)
}

// broadcast sends the signed transaction with bounded exponential backoff,
// swapping to a fresh provider on provider-class errors and re-signing
// with a fresh nonce on nonce races. On exhaustion the record is failed
// and ErrSubmissionFailed carries the last cause.
func (s *submitterService) broadcast(
	ctx context.Context, client ports.ProviderClient,
	record *domain.Transaction, signedTx *types.Transaction,
	privateKey *ecdsa.PrivateKey, to string, amount, gasPrice *big.Int,
) error {
	repo := s.repoManager.TransactionRepository()
	var lastErr error

	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.backoff(ctx, attempt); err != nil {
				lastErr = err
				break
			}
		}

		err := client.SendTransaction(ctx, signedTx)
		if err == nil {
			return nil
		}
		lastErr = err

		kind := provider.Classify(err)
		log.WithError(err).WithFields(log.Fields{
			"hash":    signedTx.Hash().Hex(),
			"attempt": attempt + 1,
			"kind":    kind.String(),
		}).Warn("broadcast attempt failed")

		switch kind {
		case provider.KindAlreadyKnown:
			// the pool already holds this exact transaction
			return nil
		case provider.KindFunds:
			return s.failRecord(ctx, record, err, domain.ErrInsufficientFunds)
		case provider.KindProvider:
			metrics.ProviderFailovers.Inc()
			freshClient, reconnectErr := s.pool.Reconnect(ctx)
			if reconnectErr != nil {
				return s.failRecord(ctx, record, reconnectErr, domain.ErrSubmissionFailed)
			}
			client = freshClient
		case provider.KindNonceRace:
			nonce, nonceErr := s.nextNonce(ctx, client, record.From)
			if nonceErr != nil {
				lastErr = nonceErr
				continue
			}
			resigned, signErr := s.signTransfer(privateKey, to, amount, nonce, gasPrice)
			if signErr != nil {
				return s.failRecord(ctx, record, signErr, domain.ErrSubmissionFailed)
			}
			signedTx = resigned
			if updErr := repo.UpdateTransaction(
				ctx, record.ID,
				func(tx *domain.Transaction) (*domain.Transaction, error) {
					tx.Hash = resigned.Hash().Hex()
					tx.Nonce = nonce
					return tx, nil
				},
			); updErr != nil {
				return updErr
			}
			record.Hash = resigned.Hash().Hex()
			record.Nonce = nonce
		default:
			if !provider.Retryable(kind, attempt, s.opts.MaxAttempts) {
				return s.failRecord(ctx, record, err, domain.ErrSubmissionFailed)
			}
		}
	}

	return s.failRecord(ctx, record, lastErr, domain.ErrSubmissionFailed)
}

// awaitReceipt polls for the mined receipt up to the confirm timeout. On
// expiry the still-pending record is returned so the caller can re-poll
// later instead of hanging on a slow chain.
func (s *submitterService) awaitReceipt(
	ctx context.Context, record *domain.Transaction,
) (*domain.Transaction, error) {
	repo := s.repoManager.TransactionRepository()
	deadline := time.NewTimer(s.opts.ConfirmTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(s.opts.PollInterval)
	defer poll.Stop()

	hash := common.HexToHash(record.Hash)
	for {
		select {
		case <-ctx.Done():
			return record, nil
		case <-deadline.C:
			log.WithField("hash", record.Hash).
				Warn("confirmation timeout, transaction left pending")
			metrics.TransactionsSubmitted.WithLabelValues("pending").Inc()
			return record, nil
		case <-poll.C:
			client, err := s.pool.Client(ctx)
			if err != nil {
				continue
			}
			receipt, err := client.TransactionReceipt(ctx, hash)
			if err != nil || receipt == nil {
				continue
			}

			mined := receipt.Status == types.ReceiptStatusSuccessful
			if err := repo.UpdateTransaction(
				ctx, record.ID,
				func(tx *domain.Transaction) (*domain.Transaction, error) {
					if mined {
						tx.Confirm(receipt.BlockNumber.Uint64())
					} else {
						tx.Fail("reverted on chain")
					}
					return tx, nil
				},
			); err != nil {
				return record, err
			}

			updated, err := repo.GetTransaction(ctx, record.ID)
			if err != nil {
				return record, err
			}
			if mined {
				metrics.TransactionsSubmitted.WithLabelValues("confirmed").Inc()
				log.WithFields(log.Fields{
					"hash":  updated.Hash,
					"block": updated.BlockNumber,
				}).Info("transaction confirmed")
				return updated, nil
			}
			metrics.TransactionsSubmitted.WithLabelValues("failed").Inc()
			return updated, fmt.Errorf(
				"%w: transaction %s reverted",
				domain.ErrSubmissionFailed, updated.Hash,
			)
		}
	}
}

// failRecord appends the failed status with the last cause and wraps it
// into the given taxonomy error
func (s *submitterService) failRecord(
	ctx context.Context, record *domain.Transaction, cause, kind error,
) error {
	if err := s.repoManager.TransactionRepository().UpdateTransaction(
		ctx, record.ID,
		func(tx *domain.Transaction) (*domain.Transaction, error) {
			tx.Fail(cause.Error())
			return tx, nil
		},
	); err != nil {
		log.WithError(err).Error("failed to persist failed transaction")
	}
	metrics.TransactionsSubmitted.WithLabelValues("failed").Inc()
	return fmt.Errorf("%w: %v", kind, cause)
}

func (s *submitterService) backoff(ctx context.Context, attempt int) error {
	delay := s.opts.BackoffBase << uint(attempt-1)
	if delay > s.opts.BackoffMax {
		delay = s.opts.BackoffMax
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *submitterService) lockFor(address string) *sync.Mutex {
	s.locksMtx.Lock()
	defer s.locksMtx.Unlock()

	lock, ok := s.addrLocks[address]
	if !ok {
		lock = &sync.Mutex{}
		s.addrLocks[address] = lock
	}
	return lock
}
