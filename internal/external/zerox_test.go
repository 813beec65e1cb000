package external

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangeseeker/rebalancer/internal/types"
)

func TestQuoteParsesTransactionAndAmounts(t *testing.T) {
	sellToken := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	buyToken := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	taker := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/allowance-holder/quote", r.URL.Path)
		assert.Equal(t, "8453", r.URL.Query().Get("chainId"))
		assert.Equal(t, "490000000000000000", r.URL.Query().Get("sellAmount"))
		assert.Equal(t, "test-key", r.Header.Get("0x-api-key"))
		w.Write([]byte(`{
			"sellAmount": "490000000000000000",
			"buyAmount": "1715000000",
			"transaction": {
				"to": "0x1234000000000000000000000000000000000000",
				"data": "0xdeadbeef",
				"value": "0"
			},
			"issues": {}
		}`))
	}))
	defer server.Close()

	client := NewZeroxClient(server.URL, "test-key", 8453)
	quote, err := client.Quote(context.Background(), sellToken, buyToken, taker, big.NewInt(49e16))
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(49e16), quote.SellAmount)
	assert.Equal(t, big.NewInt(1715000000), quote.BuyAmount)
	assert.Equal(t, common.HexToAddress("0x1234000000000000000000000000000000000000"), quote.To)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, quote.Data)
	assert.Nil(t, quote.AllowanceSpender)
	assert.False(t, quote.InsufficientFunds)
}

func TestQuoteSurfacesAllowanceIssue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"sellAmount": "100",
			"buyAmount": "200",
			"transaction": {"to": "0x1234000000000000000000000000000000000000", "data": "0x01", "value": ""},
			"issues": {
				"allowance": {"spender": "0x5678000000000000000000000000000000000000", "actual": "0"},
				"balance": {"token": "0xaaaa000000000000000000000000000000000000", "actual": "50", "expected": "100"}
			}
		}`))
	}))
	defer server.Close()

	client := NewZeroxClient(server.URL, "k", 8453)
	quote, err := client.Quote(context.Background(), common.Address{1}, common.Address{2}, common.Address{3}, big.NewInt(100))
	require.NoError(t, err)

	require.NotNil(t, quote.AllowanceSpender)
	assert.Equal(t, common.HexToAddress("0x5678000000000000000000000000000000000000"), *quote.AllowanceSpender)
	assert.True(t, quote.InsufficientFunds)
}

func TestQuoteMissingTransactionFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sellAmount": "100", "buyAmount": "200", "transaction": {}, "issues": {}}`))
	}))
	defer server.Close()

	client := NewZeroxClient(server.URL, "k", 8453)
	_, err := client.Quote(context.Background(), common.Address{1}, common.Address{2}, common.Address{3}, big.NewInt(100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrExternalServiceFailure))
}

func TestQuoteRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewZeroxClient(server.URL, "k", 8453)
	_, err := client.Quote(context.Background(), common.Address{1}, common.Address{2}, common.Address{3}, big.NewInt(100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrExternalServiceFailure))
}
