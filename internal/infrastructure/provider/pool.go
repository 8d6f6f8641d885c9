package provider

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"

	"github.com/paygate-network/paygate-daemon/internal/core/domain"
	"github.com/paygate-network/paygate-daemon/internal/core/ports"
	"github.com/paygate-network/paygate-daemon/internal/metrics"
	"github.com/paygate-network/paygate-daemon/pkg/circuitbreaker"
)

const (
	// DefaultFreshnessWindow bounds how old a last-known-good connection
	// may be before it is no longer an acceptable fallback
	DefaultFreshnessWindow = time.Hour
	// DefaultProbeTimeout bounds the liveness and chain-identity probe of
	// a single endpoint
	DefaultProbeTimeout = 10 * time.Second
)

// DialFactory is the production ProviderFactory backed by go-ethereum's
// ethclient
func DialFactory(ctx context.Context, endpoint string) (ports.ProviderClient, error) {
	return ethclient.DialContext(ctx, endpoint)
}

type lastKnownGood struct {
	client   ports.ProviderClient
	endpoint string
	boundAt  time.Time
}

// PoolOpts is the struct given to the NewPool method
type PoolOpts struct {
	Endpoints       []string
	ChainID         *big.Int
	Factory         ports.ProviderFactory
	FreshnessWindow time.Duration
	ProbeTimeout    time.Duration
}

func (o PoolOpts) validate() error {
	if len(o.Endpoints) <= 0 {
		return fmt.Errorf("%w: missing rpc endpoints", domain.ErrConfiguration)
	}
	if o.ChainID == nil || o.ChainID.Sign() <= 0 {
		return fmt.Errorf("%w: missing expected chain id", domain.ErrConfiguration)
	}
	if o.Factory == nil {
		return fmt.Errorf("%w: missing provider factory", domain.ErrConfiguration)
	}
	return nil
}

type pool struct {
	endpoints       []string
	chainID         *big.Int
	factory         ports.ProviderFactory
	breaker         breaker
	freshnessWindow time.Duration
	probeTimeout    time.Duration

	mtx      sync.Mutex
	state    ports.ConnectionState
	current  ports.ProviderClient
	lastGood lastKnownGood
}

type breaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
}

// NewPool returns a ProviderPool over the ordered endpoint list. An
// endpoint is accepted only if it answers a liveness probe and reports the
// expected chain identity.
func NewPool(opts PoolOpts) (ports.ProviderPool, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = DefaultFreshnessWindow
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}

	return &pool{
		endpoints:       opts.Endpoints,
		chainID:         opts.ChainID,
		factory:         opts.Factory,
		breaker:         circuitbreaker.NewCircuitBreaker("provider-pool"),
		freshnessWindow: opts.FreshnessWindow,
		probeTimeout:    opts.ProbeTimeout,
		state:           ports.StateDisconnected,
	}, nil
}

func (p *pool) Client(ctx context.Context) (ports.ProviderClient, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.current != nil &&
		(p.state == ports.StateConnected || p.state == ports.StateDegraded) {
		return p.current, nil
	}
	return p.connect(ctx)
}

func (p *pool) Reconnect(ctx context.Context) (ports.ProviderClient, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.current = nil
	return p.connect(ctx)
}

func (p *pool) State() ports.ConnectionState {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.state
}

func (p *pool) Close() {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.lastGood.client != nil && p.lastGood.client != p.current {
		p.lastGood.client.Close()
	}
	if p.current != nil {
		p.current.Close()
	}
	p.current = nil
	p.lastGood = lastKnownGood{}
	p.setState(ports.StateDisconnected)
}

// connect walks the ordered endpoint list and binds the first endpoint that
// is live and on the expected chain. Must be called with the mutex held.
func (p *pool) connect(ctx context.Context) (ports.ProviderClient, error) {
	p.setState(ports.StateProbing)

	for _, endpoint := range p.endpoints {
		client, err := p.probe(ctx, endpoint)
		if err != nil {
			log.WithError(err).WithField("endpoint", endpoint).
				Warn("provider endpoint rejected, trying next")
			continue
		}

		p.bind(client, endpoint)
		p.setState(ports.StateConnected)
		log.WithField("endpoint", endpoint).Debug("provider endpoint bound")
		return client, nil
	}

	// every endpoint failed: fall back to the cached last known good
	// connection if it is still within the freshness window
	if p.lastGood.client != nil &&
		time.Since(p.lastGood.boundAt) <= p.freshnessWindow {
		p.current = p.lastGood.client
		p.setState(ports.StateDegraded)
		log.WithField("endpoint", p.lastGood.endpoint).
			Warn("all provider endpoints failed, serving degraded from last known good")
		return p.current, nil
	}

	p.setState(ports.StateDisconnected)
	return nil, domain.ErrProviderUnavailable
}

func (p *pool) probe(ctx context.Context, endpoint string) (ports.ProviderClient, error) {
	res, err := p.breaker.Execute(func() (interface{}, error) {
		probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
		defer cancel()

		client, err := p.factory(probeCtx, endpoint)
		if err != nil {
			return nil, err
		}

		if _, err := client.BlockNumber(probeCtx); err != nil {
			client.Close()
			return nil, fmt.Errorf("liveness probe: %w", err)
		}
		chainID, err := client.ChainID(probeCtx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("chain identity probe: %w", err)
		}
		if chainID.Cmp(p.chainID) != 0 {
			client.Close()
			return nil, fmt.Errorf(
				"endpoint reports chain id %s, expected %s", chainID, p.chainID,
			)
		}
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(ports.ProviderClient), nil
}

// bind replaces the current connection and refreshes the last known good
// cache. Must be called with the mutex held.
func (p *pool) bind(client ports.ProviderClient, endpoint string) {
	if p.lastGood.client != nil && p.lastGood.client != client &&
		p.lastGood.client != p.current {
		p.lastGood.client.Close()
	}
	if p.current != nil && p.current != client {
		p.current.Close()
	}
	p.current = client
	p.lastGood = lastKnownGood{
		client:   client,
		endpoint: endpoint,
		boundAt:  time.Now(),
	}
}

// setState updates the observable pool state and its gauge. Must be called
// with the mutex held.
func (p *pool) setState(state ports.ConnectionState) {
	p.state = state
	var value float64
	switch state {
	case ports.StateProbing:
		value = 1
	case ports.StateConnected:
		value = 2
	case ports.StateDegraded:
		value = 3
	}
	metrics.ProviderState.Set(value)
}
