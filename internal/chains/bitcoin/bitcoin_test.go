package bitcoin

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

const testAddress = "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"

func esploraServer(t *testing.T, utxoJSON string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/address/"+testAddress+"/utxo" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, utxoJSON)
	}))
}

func newTestChain(t *testing.T, baseURL string) *Chain {
	t.Helper()
	chain, err := New(domain.ChainBitcoin, baseURL, zap.NewNop())
	require.NoError(t, err)
	return chain
}

func TestReceivedAmountSumsConfirmedUTXOs(t *testing.T) {
	srv := esploraServer(t, `[
		{"txid":"a1","vout":0,"status":{"confirmed":true},"value":1000},
		{"txid":"b2","vout":1,"status":{"confirmed":true},"value":2000},
		{"txid":"c3","vout":0,"status":{"confirmed":true},"value":500}
	]`)
	defer srv.Close()

	chain := newTestChain(t, srv.URL)

	amount, err := chain.ReceivedAmount(context.Background(), testAddress, domain.NativeAsset(domain.ChainBitcoin))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3500), amount)
}

func TestReceivedAmountIgnoresUnconfirmedUTXOs(t *testing.T) {
	srv := esploraServer(t, `[
		{"txid":"a1","vout":0,"status":{"confirmed":true},"value":1000},
		{"txid":"b2","vout":1,"status":{"confirmed":false},"value":2000}
	]`)
	defer srv.Close()

	chain := newTestChain(t, srv.URL)

	amount, err := chain.ReceivedAmount(context.Background(), testAddress, domain.NativeAsset(domain.ChainBitcoin))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), amount)
}

func TestReceivedAmountEmptyAddressIsZero(t *testing.T) {
	srv := esploraServer(t, `[]`)
	defer srv.Close()

	chain := newTestChain(t, srv.URL)

	amount, err := chain.ReceivedAmount(context.Background(), testAddress, domain.NativeAsset(domain.ChainBitcoin))
	require.NoError(t, err)
	assert.Equal(t, int64(0), amount.Int64())
}

func TestReceivedAmountRejectsTokenAssets(t *testing.T) {
	chain := newTestChain(t, "http://127.0.0.1:0")

	asset := domain.TokenAsset(domain.ChainBitcoin, "FAKE", "nope", 8)
	_, err := chain.ReceivedAmount(context.Background(), testAddress, asset)
	assert.Error(t, err)
}

func TestExplorerOutageWrapsAdapterUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	chain := newTestChain(t, srv.URL)

	_, err := chain.ReceivedAmount(context.Background(), testAddress, domain.NativeAsset(domain.ChainBitcoin))
	assert.ErrorIs(t, err, domain.ErrAdapterUnavailable)
}

func TestValidateAddress(t *testing.T) {
	chain := newTestChain(t, "http://127.0.0.1:0")

	assert.NoError(t, chain.ValidateAddress(testAddress))
	assert.Error(t, chain.ValidateAddress("not-an-address"))
}
