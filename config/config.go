package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the local data directory storing the daemon state
	DatadirKey = "DATA_DIR_PATH"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// ProviderEndpointsKey is the comma-separated ordered list of JSON-RPC
	// endpoints, tried first to last
	ProviderEndpointsKey = "PROVIDER_ENDPOINTS"
	// ChainIDKey is the chain identity every endpoint must report
	ChainIDKey = "CHAIN_ID"
	// MerchantAddressKey is the address all fund releases consolidate to
	MerchantAddressKey = "MERCHANT_ADDRESS"
	// AddressTTLKey is how long an issued payment address waits for its
	// payment before expiring
	AddressTTLKey = "ADDRESS_TTL"
	// PaymentToleranceKey is the relative tolerance for classifying an
	// observed payment as verified (0.005 means ±0.5%)
	PaymentToleranceKey = "PAYMENT_TOLERANCE"
	// GasPriceFloorKey is the minimum gas price in wei
	GasPriceFloorKey = "GAS_PRICE_FLOOR"
	// MaxSendAttemptsKey bounds the broadcast retry loop
	MaxSendAttemptsKey = "MAX_SEND_ATTEMPTS"
	// ConfirmTimeoutKey bounds how long a broadcast waits for its receipt
	ConfirmTimeoutKey = "CONFIRM_TIMEOUT"
	// ProviderFreshnessWindowKey is how long a last-known-good connection
	// stays eligible as a degraded fallback
	ProviderFreshnessWindowKey = "PROVIDER_FRESHNESS_WINDOW"
	// BalanceCacheTTLKey is the lifetime of cached balance reads
	BalanceCacheTTLKey = "BALANCE_CACHE_TTL"
	// ScanWorkersKey bounds the worker pool of registry healing scans
	ScanWorkersKey = "SCAN_WORKERS"
	// ScanBoundKey is the deepest index a last-resort address search walks
	ScanBoundKey = "SCAN_BOUND"
	// ForwardScanDepthKey is how many indexes past the registry maximum a
	// release-all sweep probes
	ForwardScanDepthKey = "FORWARD_SCAN_DEPTH"
	// RevealWindowKey bounds how long a revealed mnemonic stays readable
	RevealWindowKey = "REVEAL_WINDOW"
	// VaultPassphraseKey is the passphrase used to unlock the vault at
	// startup and by the operational subcommands. Left unset, the daemon
	// starts with the vault locked.
	VaultPassphraseKey = "VAULT_PASSPHRASE"
	// EnableProfilerKey enables the profiler for performance investigation
	EnableProfilerKey = "ENABLE_PROFILER"
	// MetricsPortKey is the port the prometheus endpoint listens on, 0
	// disables it
	MetricsPortKey = "METRICS_PORT"

	DbLocation       = "db"
	RegistryLocation = "registry.json"
	SecretsLocation  = "secrets"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("paygate-daemon", false)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("PAYGATE")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(ChainIDKey, 1)
	vip.SetDefault(AddressTTLKey, "30m")
	vip.SetDefault(PaymentToleranceKey, "0.005")
	vip.SetDefault(GasPriceFloorKey, "1000000000")
	vip.SetDefault(MaxSendAttemptsKey, 5)
	vip.SetDefault(ConfirmTimeoutKey, "2m")
	vip.SetDefault(ProviderFreshnessWindowKey, "1h")
	vip.SetDefault(BalanceCacheTTLKey, "10s")
	vip.SetDefault(ScanWorkersKey, 8)
	vip.SetDefault(ScanBoundKey, 10000)
	vip.SetDefault(ForwardScanDepthKey, 20)
	vip.SetDefault(RevealWindowKey, "30s")
	vip.SetDefault(EnableProfilerKey, false)
	vip.SetDefault(MetricsPortKey, 0)
}

// GetString ...
func GetString(key string) string {
	return vip.GetString(key)
}

// GetInt ...
func GetInt(key string) int {
	return vip.GetInt(key)
}

// GetDuration ...
func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

// GetBool ...
func GetBool(key string) bool {
	return vip.GetBool(key)
}

// Set a value for the given key
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

// IsSet returns whether the given key is set
func IsSet(key string) bool {
	return vip.IsSet(key)
}

// GetDatadir ...
func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetProviderEndpoints returns the ordered endpoint list
func GetProviderEndpoints() []string {
	raw := GetString(ProviderEndpointsKey)
	if raw == "" {
		return nil
	}
	endpoints := strings.Split(raw, ",")
	for i := range endpoints {
		endpoints[i] = strings.TrimSpace(endpoints[i])
	}
	return endpoints
}

// GetPaymentTolerance returns the configured tolerance as a decimal
func GetPaymentTolerance() decimal.Decimal {
	tolerance, err := decimal.NewFromString(GetString(PaymentToleranceKey))
	if err != nil {
		log.WithError(err).Warn("invalid payment tolerance, using default")
		return decimal.RequireFromString("0.005")
	}
	return tolerance
}

// Validate returns an error on any configuration the daemon cannot safely
// start with. Called once at startup, never proceeds silently.
func Validate() error {
	if len(GetDatadir()) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	endpoints := GetProviderEndpoints()
	if len(endpoints) == 0 {
		return fmt.Errorf("at least one provider endpoint must be set")
	}
	for _, endpoint := range endpoints {
		if endpoint == "" {
			return fmt.Errorf("provider endpoint list contains an empty entry")
		}
	}

	if merchant := GetString(MerchantAddressKey); !common.IsHexAddress(merchant) {
		return fmt.Errorf("invalid merchant address %q", merchant)
	}

	if GetInt(ChainIDKey) <= 0 {
		return fmt.Errorf("chain id must be positive")
	}

	tolerance := GetPaymentTolerance()
	if tolerance.LessThanOrEqual(decimal.Zero) ||
		tolerance.GreaterThanOrEqual(decimal.RequireFromString("1")) {
		return fmt.Errorf("payment tolerance must be in (0, 1)")
	}

	return nil
}

// InitDatadir creates the data directory tree if missing
func InitDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(datadir); err != nil {
		return err
	}
	if err := makeDirectoryIfNotExists(
		filepath.Join(datadir, DbLocation),
	); err != nil {
		return err
	}
	return makeDirectoryIfNotExists(filepath.Join(datadir, SecretsLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
