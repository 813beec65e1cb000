package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangeseeker/rebalancer/internal/types"
)

const ethFeedID = "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"

func TestLatestPricesScalesByExponent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/updates/price/latest", r.URL.Path)
		assert.Contains(t, r.URL.Query()["ids[]"], ethFeedID)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"parsed":[{"id":"` + ethFeedID + `","price":{"price":"349912345678","expo":-8}}]}`))
	}))
	defer server.Close()

	client := NewPythClient(server.URL)
	prices, err := client.LatestPrices(context.Background(), []string{ethFeedID})
	require.NoError(t, err)
	assert.InEpsilon(t, 3499.12345678, prices[ethFeedID], 1e-9)
}

func TestLatestPricesMissingFeedFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"parsed":[]}`))
	}))
	defer server.Close()

	client := NewPythClient(server.URL)
	_, err := client.LatestPrices(context.Background(), []string{ethFeedID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInsufficientData))
}

func TestLatestPricesRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewPythClient(server.URL)
	_, err := client.LatestPrices(context.Background(), []string{ethFeedID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrExternalServiceFailure))
}

func TestLatestPricesEmptyRequest(t *testing.T) {
	client := NewPythClient("http://unreachable.invalid")
	prices, err := client.LatestPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestFeedIDForSymbol(t *testing.T) {
	wethID, err := FeedIDForSymbol("WETH")
	require.NoError(t, err)
	ethID, err := FeedIDForSymbol("eth")
	require.NoError(t, err)
	assert.Equal(t, wethID, ethID, "wrapped and native variants share a feed")

	_, err = FeedIDForSymbol("UNLISTED")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidConfiguration))
}
