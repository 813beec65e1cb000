/*

Pyth Hermes price client. Prices are requested in batch by feed ID and scaled
by the published exponent into plain USD floats. The engine treats Pyth as the
single USD oracle for threshold rules and value accounting.

*/

package external

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/rangeseeker/rebalancer/internal/logger"
	"github.com/rangeseeker/rebalancer/internal/types"
)

const pythRequestTimeout = 10 * time.Second

// PythClient fetches USD prices from a Hermes endpoint.
type PythClient struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewPythClient creates a client for the given Hermes base URL, e.g.
// "https://hermes.pyth.network".
func NewPythClient(baseURL string) *PythClient {
	return &PythClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: pythRequestTimeout},
		logger:     logger.GetForComponent("pyth_client"),
	}
}

type pythPriceResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price string `json:"price"`
			Expo  int32  `json:"expo"`
		} `json:"price"`
	} `json:"parsed"`
}

// LatestPrices fetches the latest USD price for each feed ID. The returned
// map is keyed by feed ID exactly as requested (without 0x prefix handling;
// callers pass canonical lowercase hex IDs).
func (p *PythClient) LatestPrices(ctx context.Context, feedIDs []string) (map[string]float64, error) {
	if len(feedIDs) == 0 {
		return map[string]float64{}, nil
	}

	query := url.Values{}
	for _, id := range feedIDs {
		query.Add("ids[]", id)
	}
	endpoint := fmt.Sprintf("%s/v2/updates/price/latest?%s", p.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building price request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching prices: %w", types.ErrExternalServiceFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: price endpoint returned status %d", types.ErrExternalServiceFailure, resp.StatusCode)
	}

	var decoded pythPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding price response: %w", types.ErrExternalServiceFailure, err)
	}

	prices := make(map[string]float64, len(decoded.Parsed))
	for _, entry := range decoded.Parsed {
		var raw float64
		if _, err := fmt.Sscanf(entry.Price.Price, "%f", &raw); err != nil {
			return nil, fmt.Errorf("%w: unparseable price %q for feed %s", types.ErrExternalServiceFailure, entry.Price.Price, entry.ID)
		}
		price := raw * math.Pow10(int(entry.Price.Expo))
		if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			return nil, fmt.Errorf("%w: feed %s produced invalid price %g", types.ErrExternalServiceFailure, entry.ID, price)
		}
		prices[entry.ID] = price
	}

	for _, id := range feedIDs {
		if _, ok := prices[id]; !ok {
			return nil, fmt.Errorf("%w: feed %s missing from price response", types.ErrInsufficientData, id)
		}
	}

	p.logger.Debug().Int("feeds", len(prices)).Msg("Fetched oracle prices")
	return prices, nil
}
