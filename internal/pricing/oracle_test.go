package pricing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

func tickerServer(t *testing.T, prices map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		price, ok := prices[symbol]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"code":-1121,"msg":"Invalid symbol."}`)
			return
		}
		fmt.Fprintf(w, `{"symbol":%q,"price":%q}`, symbol, price)
	}))
}

func TestRequiredChainAmountAtFixedPrice(t *testing.T) {
	srv := tickerServer(t, map[string]string{"ETHUSDT": "500.00"})
	defer srv.Close()

	oracle := NewOracle(zap.NewNop(), WithBaseURL(srv.URL))

	// $50 at $500 per coin is 0.1 coin, 1e17 wei at 18 decimals.
	amount, err := oracle.RequiredChainAmount(context.Background(), 5000, "ETH", 18)
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", amount.String())
}

func TestRequiredChainAmountRoundsDown(t *testing.T) {
	srv := tickerServer(t, map[string]string{"TRXUSDT": "0.33"})
	defer srv.Close()

	oracle := NewOracle(zap.NewNop(), WithBaseURL(srv.URL))

	// $10 / $0.33 = 30.3030... TRX, 30303030 at 6 decimals after the floor.
	amount, err := oracle.RequiredChainAmount(context.Background(), 1000, "TRX", 6)
	require.NoError(t, err)
	assert.Equal(t, "30303030", amount.String())
}

func TestStablecoinsPinToOneUSD(t *testing.T) {
	// No server: stablecoin pricing must never hit the network.
	oracle := NewOracle(zap.NewNop(), WithBaseURL("http://127.0.0.1:0"))

	amount, err := oracle.RequiredChainAmount(context.Background(), 2500, "USDT", 6)
	require.NoError(t, err)
	assert.Equal(t, "25000000", amount.String())

	amount, err = oracle.RequiredChainAmount(context.Background(), 2500, "USDC", 6)
	require.NoError(t, err)
	assert.Equal(t, "25000000", amount.String())
}

func TestSpotPriceFailsClosed(t *testing.T) {
	srv := tickerServer(t, nil)
	defer srv.Close()

	oracle := NewOracle(zap.NewNop(), WithBaseURL(srv.URL))

	_, err := oracle.RequiredChainAmount(context.Background(), 5000, "ETH", 18)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestSpotPriceRejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"ETHUSDT","price":"not-a-number"}`)
	}))
	defer srv.Close()

	oracle := NewOracle(zap.NewNop(), WithBaseURL(srv.URL))

	_, err := oracle.SpotPriceUSD(context.Background(), "ETH")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}
