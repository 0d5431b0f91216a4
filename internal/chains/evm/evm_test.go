package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

const (
	testHolder   = "0x9858effd232b4033e47d90003d41ec34ecaeda94"
	testContract = "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984"
)

// rpcServer answers JSON-RPC by method name, ignoring params.
func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		result, ok := results[req.Method]
		if !ok {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, req.ID)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, req.ID, result)
	}))
}

func newTestChain(t *testing.T, rpcURL string) *Chain {
	t.Helper()
	chain, err := New(domain.ChainEthereum, rpcURL, zap.NewNop())
	require.NoError(t, err)
	return chain
}

func TestReceivedAmountNativeBalance(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"eth_getBalance": "0xde0b6b3a7640000", // 1 ETH in wei
	})
	defer srv.Close()

	chain := newTestChain(t, srv.URL)

	amount, err := chain.ReceivedAmount(context.Background(), testHolder, domain.NativeAsset(domain.ChainEthereum))
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", amount.String())
}

func TestReceivedAmountERC20Balance(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"eth_call": fmt.Sprintf("0x%064x", big.NewInt(25_000_000)),
	})
	defer srv.Close()

	chain := newTestChain(t, srv.URL)

	asset := domain.TokenAsset(domain.ChainEthereum, "UNI", testContract, 18)
	amount, err := chain.ReceivedAmount(context.Background(), testHolder, asset)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(25_000_000), amount)
}

func TestReceivedAmountERC20EmptyResultIsZero(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"eth_call": "0x",
	})
	defer srv.Close()

	chain := newTestChain(t, srv.URL)

	asset := domain.TokenAsset(domain.ChainEthereum, "UNI", testContract, 18)
	amount, err := chain.ReceivedAmount(context.Background(), testHolder, asset)
	require.NoError(t, err)
	assert.Equal(t, int64(0), amount.Int64())
}

func TestTokenDecimals(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"eth_call": fmt.Sprintf("0x%064x", big.NewInt(6)),
	})
	defer srv.Close()

	chain := newTestChain(t, srv.URL)

	decimals, err := chain.TokenDecimals(context.Background(), testContract)
	require.NoError(t, err)
	assert.Equal(t, 6, decimals)
}

func TestRPCOutageWrapsAdapterUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	chain := newTestChain(t, srv.URL)

	_, err := chain.ReceivedAmount(context.Background(), testHolder, domain.NativeAsset(domain.ChainEthereum))
	assert.ErrorIs(t, err, domain.ErrAdapterUnavailable)
}

func TestValidateAddress(t *testing.T) {
	chain := newTestChain(t, "http://127.0.0.1:0")

	checksummed := common.HexToAddress(testHolder).Hex()

	assert.NoError(t, chain.ValidateAddress(testHolder))
	assert.NoError(t, chain.ValidateAddress(strings.ToUpper(strings.TrimPrefix(testHolder, "0x"))))
	assert.NoError(t, chain.ValidateAddress(checksummed))
	assert.Error(t, chain.ValidateAddress("not-an-address"))

	// Mixed case with the letter cases inverted is a checksum failure.
	flipped := "0x" + strings.Map(flipCase, strings.TrimPrefix(checksummed, "0x"))
	assert.Error(t, chain.ValidateAddress(flipped))
}

func flipCase(r rune) rune {
	switch {
	case r >= 'a' && r <= 'f':
		return r - 'a' + 'A'
	case r >= 'A' && r <= 'F':
		return r - 'A' + 'a'
	default:
		return r
	}
}
