/*

Market-facing value types: swap history observations, the latest known pool
state and derived volatility statistics. All are read-time views produced by
the market data collaborators; none are persisted by the core.

*/

package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapObservation is a single swap event from the pool's history,
// ordered by time. Immutable once produced.
type SwapObservation struct {
	Timestamp    int64    `json:"timestamp"`
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96"`
	Amount0      *big.Int `json:"amount0"`
	Amount1      *big.Int `json:"amount1"`
	Liquidity    *big.Int `json:"liquidity"`
	Tick         int32    `json:"tick"`
	BlockNumber  uint64   `json:"block_number"`
}

// PoolState is the latest known on-chain state of one pool.
// Refreshed per query, never persisted.
type PoolState struct {
	Address      common.Address `json:"address"`
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	FeeBps       uint32         `json:"fee_bps"`
	TickSpacing  int32          `json:"tick_spacing"`
	Liquidity    *big.Int       `json:"liquidity"`
	SqrtPriceX96 *big.Int       `json:"sqrt_price_x96"`
	Tick         int32          `json:"tick"`
}

// VolatilityMetrics holds realized and annualized volatility for a pool over
// an observation window. Both are non-negative; zero when fewer than two
// usable observations exist in the window.
type VolatilityMetrics struct {
	Realized   float64 `json:"realized"`
	Annualized float64 `json:"annualized"`
}
