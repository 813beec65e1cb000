/*

0x allowance-holder swap client. One call returns both the firm quote and a
ready-to-broadcast transaction payload. The issues block surfaces allowance
and balance problems before broadcast, which the orchestrator uses to decide
between a corrective approval and a hard failure.

*/

package external

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/rangeseeker/rebalancer/internal/logger"
	"github.com/rangeseeker/rebalancer/internal/types"
)

const zeroxRequestTimeout = 15 * time.Second

// SwapQuote is one firm quote from the allowance-holder endpoint.
type SwapQuote struct {
	SellToken  common.Address
	BuyToken   common.Address
	SellAmount *big.Int
	BuyAmount  *big.Int
	// To/Data/Value form the swap transaction to broadcast.
	To    common.Address
	Data  []byte
	Value *big.Int
	// AllowanceSpender is set when the quote reports an insufficient
	// allowance; approvals must target this address, not To.
	AllowanceSpender  *common.Address
	InsufficientFunds bool
}

// ZeroxClient fetches swap quotes from the 0x API.
type ZeroxClient struct {
	baseURL    string
	apiKey     string
	chainID    uint64
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewZeroxClient creates a client for the given API root, e.g.
// "https://api.0x.org".
func NewZeroxClient(baseURL, apiKey string, chainID uint64) *ZeroxClient {
	return &ZeroxClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		chainID:    chainID,
		httpClient: &http.Client{Timeout: zeroxRequestTimeout},
		logger:     logger.GetForComponent("zerox_client"),
	}
}

type zeroxQuoteResponse struct {
	SellAmount  string `json:"sellAmount"`
	BuyAmount   string `json:"buyAmount"`
	Transaction struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"transaction"`
	Issues struct {
		Allowance *struct {
			Spender string `json:"spender"`
			Actual  string `json:"actual"`
		} `json:"allowance"`
		Balance *struct {
			Token    string `json:"token"`
			Actual   string `json:"actual"`
			Expected string `json:"expected"`
		} `json:"balance"`
	} `json:"issues"`
}

// Quote fetches a firm allowance-holder quote for selling sellAmount of
// sellToken into buyToken from taker's wallet.
func (z *ZeroxClient) Quote(ctx context.Context, sellToken, buyToken, taker common.Address, sellAmount *big.Int) (*SwapQuote, error) {
	query := url.Values{}
	query.Set("chainId", fmt.Sprintf("%d", z.chainID))
	query.Set("sellToken", sellToken.Hex())
	query.Set("buyToken", buyToken.Hex())
	query.Set("sellAmount", sellAmount.String())
	query.Set("taker", taker.Hex())
	endpoint := fmt.Sprintf("%s/swap/allowance-holder/quote?%s", z.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building quote request: %w", err)
	}
	req.Header.Set("0x-api-key", z.apiKey)
	req.Header.Set("0x-version", "v2")

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching swap quote: %w", types.ErrExternalServiceFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: quote endpoint returned status %d", types.ErrExternalServiceFailure, resp.StatusCode)
	}

	var decoded zeroxQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding quote response: %w", types.ErrExternalServiceFailure, err)
	}

	quote := &SwapQuote{
		SellToken: sellToken,
		BuyToken:  buyToken,
	}

	var ok bool
	if quote.SellAmount, ok = new(big.Int).SetString(decoded.SellAmount, 10); !ok {
		return nil, fmt.Errorf("%w: unparseable sellAmount %q", types.ErrExternalServiceFailure, decoded.SellAmount)
	}
	if quote.BuyAmount, ok = new(big.Int).SetString(decoded.BuyAmount, 10); !ok {
		return nil, fmt.Errorf("%w: unparseable buyAmount %q", types.ErrExternalServiceFailure, decoded.BuyAmount)
	}

	if decoded.Transaction.To == "" || decoded.Transaction.Data == "" {
		return nil, fmt.Errorf("%w: quote missing transaction payload", types.ErrExternalServiceFailure)
	}
	quote.To = common.HexToAddress(decoded.Transaction.To)
	quote.Data = common.FromHex(decoded.Transaction.Data)
	quote.Value = big.NewInt(0)
	if decoded.Transaction.Value != "" {
		if quote.Value, ok = new(big.Int).SetString(decoded.Transaction.Value, 10); !ok {
			return nil, fmt.Errorf("%w: unparseable transaction value %q", types.ErrExternalServiceFailure, decoded.Transaction.Value)
		}
	}

	if issue := decoded.Issues.Allowance; issue != nil {
		spender := common.HexToAddress(issue.Spender)
		quote.AllowanceSpender = &spender
	}
	if decoded.Issues.Balance != nil {
		quote.InsufficientFunds = true
	}

	z.logger.Debug().
		Str("sellToken", sellToken.Hex()).
		Str("buyToken", buyToken.Hex()).
		Str("sellAmount", quote.SellAmount.String()).
		Str("buyAmount", quote.BuyAmount.String()).
		Bool("allowanceIssue", quote.AllowanceSpender != nil).
		Msg("Fetched swap quote")

	return quote, nil
}
