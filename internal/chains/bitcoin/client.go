package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

// EsploraClient talks to a Blockstream-style block explorer API. It is the
// only Bitcoin data source the engine needs: address stats and UTXO sets.
type EsploraClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

func NewEsploraClient(baseURL string, logger *zap.Logger) *EsploraClient {
	return &EsploraClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// AddressInfo mirrors the explorer's /address/{addr} response.
type AddressInfo struct {
	Address    string `json:"address"`
	ChainStats struct {
		FundedTxoCount int64 `json:"funded_txo_count"`
		FundedTxoSum   int64 `json:"funded_txo_sum"`
		SpentTxoCount  int64 `json:"spent_txo_count"`
		SpentTxoSum    int64 `json:"spent_txo_sum"`
		TxCount        int64 `json:"tx_count"`
	} `json:"chain_stats"`
	MempoolStats struct {
		FundedTxoSum int64 `json:"funded_txo_sum"`
		SpentTxoSum  int64 `json:"spent_txo_sum"`
		TxCount      int64 `json:"tx_count"`
	} `json:"mempool_stats"`
}

// UTXO is one unspent output at an address.
type UTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight int64  `json:"block_height"`
		BlockHash   string `json:"block_hash"`
		BlockTime   int64  `json:"block_time"`
	} `json:"status"`
	Value int64 `json:"value"` // satoshis
}

func (c *EsploraClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: esplora request failed: %v", domain.ErrAdapterUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: esplora status %d: %s", domain.ErrAdapterUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode esplora response: %w", err)
	}

	return nil
}

// GetAddressInfo fetches funded/spent totals for an address.
func (c *EsploraClient) GetAddressInfo(ctx context.Context, address string) (*AddressInfo, error) {
	var info AddressInfo
	if err := c.get(ctx, "/address/"+address, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetUTXOs fetches the unspent outputs at an address.
func (c *EsploraClient) GetUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var utxos []UTXO
	if err := c.get(ctx, "/address/"+address+"/utxo", &utxos); err != nil {
		return nil, err
	}
	return utxos, nil
}
