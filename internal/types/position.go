/*

Wallet and position value types. A Position is created by a deposit and
destroyed by a withdraw-then-redeposit rebalance; there is no in-place tick
mutation on-chain. AgentWalletSnapshot is a read-time view recomputed every
evaluation, never stored.

*/

package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Agent is one managed wallet bound to a strategy and a pool.
type Agent struct {
	AgentID       string         `json:"agent_id"`
	WalletAddress common.Address `json:"wallet_address"`
	PoolAddress   common.Address `json:"pool_address"`
	StrategyID    string         `json:"strategy_id"`
	Active        bool           `json:"active"`
}

// Position is one concentrated liquidity position held by an agent wallet.
type Position struct {
	TokenID      *big.Int       `json:"token_id"`
	PoolAddress  common.Address `json:"pool_address"`
	TickLower    int32          `json:"tick_lower"`
	TickUpper    int32          `json:"tick_upper"`
	Token0Amount float64        `json:"token0_amount"`
	Token1Amount float64        `json:"token1_amount"`
	UsdValue0    float64        `json:"usd_value0"`
	UsdValue1    float64        `json:"usd_value1"`
}

// TotalValueUsd returns the combined USD value of both sides.
func (p Position) TotalValueUsd() float64 {
	return p.UsdValue0 + p.UsdValue1
}

// AssetBalance is one token balance held by an agent wallet.
type AssetBalance struct {
	Asset      common.Address `json:"asset"`
	Symbol     string         `json:"symbol"`
	BalanceRaw *big.Int       `json:"balance_raw"`
	Decimals   int            `json:"decimals"`
	PriceUsd   float64        `json:"price_usd"`
}

// Amount returns the balance scaled down by the asset's decimals.
func (b AssetBalance) Amount() float64 {
	if b.BalanceRaw == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(b.BalanceRaw),
		big.NewFloat(pow10(b.Decimals)),
	).Float64()
	return f
}

// ValueUsd returns the USD value of the balance.
func (b AssetBalance) ValueUsd() float64 {
	return b.Amount() * b.PriceUsd
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// AgentWalletSnapshot is a point-in-time view of an agent wallet.
type AgentWalletSnapshot struct {
	Address       common.Address `json:"address"`
	AssetBalances []AssetBalance `json:"asset_balances"`
	Positions     []Position     `json:"positions"`
}

// Balance returns the snapshot balance for an asset, or nil if the wallet
// does not hold it.
func (s *AgentWalletSnapshot) Balance(asset common.Address) *AssetBalance {
	for i := range s.AssetBalances {
		if s.AssetBalances[i].Asset == asset {
			return &s.AssetBalances[i]
		}
	}
	return nil
}
