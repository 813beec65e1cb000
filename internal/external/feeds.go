package external

import (
	"context"
	"fmt"
	"strings"

	"github.com/rangeseeker/rebalancer/internal/types"
)

// feedRegistry maps asset symbols to Pyth USD feed IDs. Wrapped and native
// variants share a feed.
var feedRegistry = map[string]string{
	"ETH":   "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
	"WETH":  "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
	"BTC":   "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
	"WBTC":  "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
	"CBBTC": "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
	"USDC":  "eaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a",
	"USDT":  "2b89b9dc8fdf9f34709a5b106b472f0f39bb6ca9ce04b0fd7f2e971688e2e53b",
	"DAI":   "b0948a5e5313200c632b51bb5ca32f6de0d36e9950a942d19751e833f70dabfd",
	"SOL":   "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d",
}

// FeedIDForSymbol resolves an asset symbol to its Pyth feed ID.
func FeedIDForSymbol(symbol string) (string, error) {
	id, ok := feedRegistry[strings.ToUpper(symbol)]
	if !ok {
		return "", fmt.Errorf("%w: no price feed registered for asset %q", types.ErrInvalidConfiguration, symbol)
	}
	return id, nil
}

// PriceFetcher is the minimal oracle contract PricesForSymbols needs.
type PriceFetcher interface {
	LatestPrices(ctx context.Context, feedIDs []string) (map[string]float64, error)
}

// PricesForSymbols resolves symbols to feeds, fetches one batch, and returns
// prices keyed back by the original symbols.
func PricesForSymbols(ctx context.Context, oracle PriceFetcher, symbols []string) (map[string]float64, error) {
	feedBySymbol := make(map[string]string, len(symbols))
	feedIDs := make([]string, 0, len(symbols))
	seen := make(map[string]bool)
	for _, symbol := range symbols {
		id, err := FeedIDForSymbol(symbol)
		if err != nil {
			return nil, err
		}
		feedBySymbol[symbol] = id
		if !seen[id] {
			seen[id] = true
			feedIDs = append(feedIDs, id)
		}
	}

	prices, err := oracle.LatestPrices(ctx, feedIDs)
	if err != nil {
		return nil, err
	}

	result := make(map[string]float64, len(symbols))
	for symbol, id := range feedBySymbol {
		price, ok := prices[id]
		if !ok {
			return nil, fmt.Errorf("%w: no price returned for asset %s", types.ErrInsufficientData, symbol)
		}
		result[symbol] = price
	}
	return result, nil
}
