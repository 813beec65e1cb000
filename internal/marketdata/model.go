/*

Model turns raw pool observations into price and volatility statistics, with a
TTL cache in front of the external data source so repeated strategy
evaluations within one expiry window do not multiply query volume.

*/

package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/rangeseeker/rebalancer/internal/cache"
	"github.com/rangeseeker/rebalancer/internal/logger"
	"github.com/rangeseeker/rebalancer/internal/types"
)

// poolStateTTL keeps pool snapshots briefly; volatility series are cached for
// the configured (longer) expiry.
const poolStateTTL = time.Minute

// Source is the market-data collaborator contract.
type Source interface {
	// PoolSwaps returns the pool's swap history for the trailing window,
	// ordered by time.
	PoolSwaps(ctx context.Context, pool common.Address, hoursBack int) ([]types.SwapObservation, error)

	// PoolState returns the latest known on-chain state of the pool.
	PoolState(ctx context.Context, pool common.Address) (types.PoolState, error)
}

// Model computes and caches market statistics for pools.
type Model struct {
	source         Source
	store          *cache.Store
	volatilityTTL  time.Duration
	token0Decimals int
	token1Decimals int
	logger         zerolog.Logger
}

// NewModel creates a Model. The cache store is owned exclusively by the
// Model; pass a store with an injected clock under test.
func NewModel(src Source, store *cache.Store, volatilityTTL time.Duration, token0Decimals, token1Decimals int) *Model {
	return &Model{
		source:         src,
		store:          store,
		volatilityTTL:  volatilityTTL,
		token0Decimals: token0Decimals,
		token1Decimals: token1Decimals,
		logger:         logger.GetForComponent("market_data"),
	}
}

// PoolVolatility returns volatility metrics for the pool over the trailing
// hoursBack window, serving the last computed value until the cache expires.
func (m *Model) PoolVolatility(ctx context.Context, pool common.Address, hoursBack int) (types.VolatilityMetrics, error) {
	key := fmt.Sprintf("vol:%s:%d", pool.Hex(), hoursBack)
	if cached, ok := m.store.Get(key); ok {
		return cached.(types.VolatilityMetrics), nil
	}

	observations, err := m.source.PoolSwaps(ctx, pool, hoursBack)
	if err != nil {
		return types.VolatilityMetrics{}, fmt.Errorf("%w: fetching swaps for %s: %w", types.ErrExternalServiceFailure, pool.Hex(), err)
	}

	window := time.Duration(hoursBack) * time.Hour
	metrics := Volatility(observations, window, m.token0Decimals, m.token1Decimals)

	m.store.Set(key, metrics, m.volatilityTTL)
	m.logger.Debug().
		Str("pool", pool.Hex()).
		Int("hoursBack", hoursBack).
		Int("observations", len(observations)).
		Float64("annualized", metrics.Annualized).
		Msg("Computed pool volatility")

	return metrics, nil
}

// CurrentPoolState returns the pool's latest state, cached briefly.
func (m *Model) CurrentPoolState(ctx context.Context, pool common.Address) (types.PoolState, error) {
	key := "pool:" + pool.Hex()
	if cached, ok := m.store.Get(key); ok {
		return cached.(types.PoolState), nil
	}

	state, err := m.source.PoolState(ctx, pool)
	if err != nil {
		return types.PoolState{}, fmt.Errorf("%w: fetching pool state for %s: %w", types.ErrExternalServiceFailure, pool.Hex(), err)
	}

	m.store.Set(key, state, poolStateTTL)
	return state, nil
}

// CurrentPrice derives the human-scale price from the pool's latest state.
func (m *Model) CurrentPrice(ctx context.Context, pool common.Address) (float64, error) {
	state, err := m.CurrentPoolState(ctx, pool)
	if err != nil {
		return 0, err
	}
	price := PriceFromSqrtX96(state.SqrtPriceX96, m.token0Decimals, m.token1Decimals)
	if price <= 0 {
		return 0, fmt.Errorf("%w: pool %s has no usable price", types.ErrInsufficientData, pool.Hex())
	}
	return price, nil
}
