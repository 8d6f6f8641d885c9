package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/paygate-network/paygate-daemon/config"
	"github.com/paygate-network/paygate-daemon/internal/core/application"
	"github.com/paygate-network/paygate-daemon/internal/core/ports"
	"github.com/paygate-network/paygate-daemon/internal/infrastructure/provider"
	dbbadger "github.com/paygate-network/paygate-daemon/internal/infrastructure/storage/db/badger"
	filestore "github.com/paygate-network/paygate-daemon/internal/infrastructure/storage/file"
	secretstore "github.com/paygate-network/paygate-daemon/internal/infrastructure/storage/secrets"
	boltsecurestore "github.com/paygate-network/paygate-daemon/pkg/securestore/bolt"
)

// expiry sweep cadence for issued payment addresses
const expirySweepInterval = time.Minute

type daemon struct {
	repoManager ports.RepoManager
	pool        ports.ProviderPool

	vaultService    application.VaultService
	operatorService application.OperatorService
	issuerService   application.IssuerService
}

func newDaemon() (*daemon, error) {
	datadir := config.GetDatadir()

	repoManager, err := dbbadger.NewDbManager(
		filepath.Join(datadir, config.DbLocation), nil,
	)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	secretStore, err := boltsecurestore.NewSecretStore(
		filepath.Join(datadir, config.SecretsLocation), "vault.db",
	)
	if err != nil {
		return nil, fmt.Errorf("opening secret store: %w", err)
	}

	registry, err := filestore.NewRegistryStore(
		filepath.Join(datadir, config.RegistryLocation),
	)
	if err != nil {
		return nil, fmt.Errorf("opening index registry: %w", err)
	}

	pool, err := provider.NewPool(provider.PoolOpts{
		Endpoints:       config.GetProviderEndpoints(),
		ChainID:         big.NewInt(int64(config.GetInt(config.ChainIDKey))),
		Factory:         provider.DialFactory,
		FreshnessWindow: config.GetDuration(config.ProviderFreshnessWindowKey),
	})
	if err != nil {
		return nil, fmt.Errorf("creating provider pool: %w", err)
	}

	vaultService := application.NewVaultService(
		secretstore.NewVaultRepositoryImpl(secretStore),
		config.GetDuration(config.RevealWindowKey),
	)
	registryService := application.NewRegistryService(
		registry, vaultService, config.GetInt(config.ScanWorkersKey),
	)
	issuerService := application.NewIssuerService(
		repoManager, registryService, vaultService,
		config.GetDuration(config.AddressTTLKey),
	)
	reconcilerService := application.NewReconcilerService(
		repoManager, config.GetPaymentTolerance(),
	)

	gasPriceFloor, ok := new(big.Int).SetString(
		config.GetString(config.GasPriceFloorKey), 10,
	)
	if !ok {
		return nil, fmt.Errorf(
			"invalid gas price floor %q", config.GetString(config.GasPriceFloorKey),
		)
	}
	submitterService, err := application.NewTxSubmitterService(
		repoManager, pool, vaultService, application.SubmitterOpts{
			ChainID:        big.NewInt(int64(config.GetInt(config.ChainIDKey))),
			GasPriceFloor:  gasPriceFloor,
			MaxAttempts:    config.GetInt(config.MaxSendAttemptsKey),
			ConfirmTimeout: config.GetDuration(config.ConfirmTimeoutKey),
		},
	)
	if err != nil {
		return nil, err
	}

	releaseService, err := application.NewReleaseService(
		repoManager, pool, vaultService, registryService, submitterService,
		config.GetString(config.MerchantAddressKey),
		uint32(config.GetInt(config.ForwardScanDepthKey)),
	)
	if err != nil {
		return nil, err
	}

	balanceService := application.NewBalanceService(
		pool, vaultService, registryService,
		config.GetDuration(config.BalanceCacheTTLKey),
	)

	operatorService := application.NewOperatorService(
		repoManager, pool, issuerService, reconcilerService, releaseService,
		balanceService,
	)

	return &daemon{
		repoManager:     repoManager,
		pool:            pool,
		vaultService:    vaultService,
		operatorService: operatorService,
		issuerService:   issuerService,
	}, nil
}

func (d *daemon) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if port := config.GetInt(config.MetricsPortKey); port > 0 {
		go serveMetrics(port)
	}
	go d.expirySweepLoop(ctx)

	log.Info("daemon started")
	if !d.vaultService.IsInitialized(ctx) {
		log.Warn("vault not initialized, run 'paygated genseed' then 'paygated init'")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down")
	return nil
}

// unlock restores the HD wallet from the configured passphrase
func (d *daemon) unlock(ctx context.Context) error {
	passphrase := config.GetString(config.VaultPassphraseKey)
	if passphrase == "" {
		return fmt.Errorf(
			"vault passphrase not configured, set PAYGATE_VAULT_PASSPHRASE",
		)
	}
	return d.vaultService.UnlockVault(ctx, passphrase)
}

func (d *daemon) close() {
	d.pool.Close()
	d.repoManager.Close()
}

// expirySweepLoop periodically expires pending addresses whose TTL elapsed
func (d *daemon) expirySweepLoop(ctx context.Context) {
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.issuerService.ExpireStaleAddresses(ctx); err != nil {
				log.WithError(err).Warn("expiry sweep failed")
			}
		}
	}
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	log.WithField("addr", addr).Info("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics endpoint stopped")
	}
}
