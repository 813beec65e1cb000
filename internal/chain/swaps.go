/*

Swap event history. PoolSwaps filters the pool's Swap logs over a trailing
window and decorates each with its block timestamp, which the market data
model needs for return spacing. Block numbers for the window are estimated
from the chain's nominal block time; the estimate only has to be generous,
not exact, because observations are bucketed by timestamp downstream.

*/

package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rangeseeker/rebalancer/internal/types"
)

// blockTimeSeconds is the nominal block interval used to size log queries
// (2s on Base and OP-stack chains).
const blockTimeSeconds = 2

// PoolSwaps returns the pool's swap observations for the trailing hoursBack
// window, ordered oldest first.
func (c *Client) PoolSwaps(ctx context.Context, pool common.Address, hoursBack int) ([]types.SwapObservation, error) {
	latest, err := c.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching latest header: %w", types.ErrExternalServiceFailure, err)
	}

	blocksBack := int64(hoursBack) * 3600 / blockTimeSeconds
	fromBlock := new(big.Int).Sub(latest.Number, big.NewInt(blocksBack))
	if fromBlock.Sign() < 0 {
		fromBlock = big.NewInt(0)
	}

	swapTopic := v3PoolABI.Events["Swap"].ID
	logs, err := c.ethClient.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   latest.Number,
		Addresses: []common.Address{pool},
		Topics:    [][]common.Hash{{swapTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: filtering swap logs for %s: %w", types.ErrExternalServiceFailure, pool.Hex(), err)
	}

	cutoff := time.Now().Add(-time.Duration(hoursBack) * time.Hour).Unix()
	blockTimes := make(map[uint64]int64)

	observations := make([]types.SwapObservation, 0, len(logs))
	for _, entry := range logs {
		values, err := v3PoolABI.Unpack("Swap", entry.Data)
		if err != nil || len(values) < 5 {
			return nil, fmt.Errorf("%w: decoding swap log: %v", ErrUnexpectedOutput, err)
		}

		timestamp, ok := blockTimes[entry.BlockNumber]
		if !ok {
			header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(entry.BlockNumber))
			if err != nil {
				return nil, fmt.Errorf("%w: fetching header %d: %w", types.ErrExternalServiceFailure, entry.BlockNumber, err)
			}
			timestamp = int64(header.Time)
			blockTimes[entry.BlockNumber] = timestamp
		}
		if timestamp < cutoff {
			continue
		}

		observations = append(observations, types.SwapObservation{
			Timestamp:    timestamp,
			Amount0:      values[0].(*big.Int),
			Amount1:      values[1].(*big.Int),
			SqrtPriceX96: values[2].(*big.Int),
			Liquidity:    values[3].(*big.Int),
			Tick:         int32(values[4].(*big.Int).Int64()),
			BlockNumber:  entry.BlockNumber,
		})
	}

	c.logger.Debug().
		Str("pool", pool.Hex()).
		Int("hoursBack", hoursBack).
		Int("swaps", len(observations)).
		Msg("Fetched pool swap history")

	return observations, nil
}
