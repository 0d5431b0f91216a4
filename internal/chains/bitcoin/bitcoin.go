package bitcoin

import (
	"context"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

// Chain adapts Bitcoin (mainnet or testnet) through an Esplora explorer.
type Chain struct {
	chain  domain.ChainID
	client *EsploraClient
	params *chaincfg.Params
	logger *zap.Logger
}

func New(chain domain.ChainID, explorerURL string, logger *zap.Logger) (*Chain, error) {
	params := &chaincfg.MainNetParams
	if chain.Testnet() {
		params = &chaincfg.TestNet3Params
	}

	logger.Info("Bitcoin chain initialized",
		zap.String("chain", string(chain)),
		zap.String("explorer", explorerURL))

	return &Chain{
		chain:  chain,
		client: NewEsploraClient(explorerURL, logger),
		params: params,
		logger: logger,
	}, nil
}

func (c *Chain) ChainID() domain.ChainID {
	return c.chain
}

func (c *Chain) NativeDecimals() int {
	return 8
}

// ReceivedAmount sums the confirmed UTXOs at the address, in satoshis. An
// address with no UTXOs yet is a legitimate zero.
func (c *Chain) ReceivedAmount(ctx context.Context, address string, asset *domain.Asset) (*big.Int, error) {
	if asset.Type != domain.AssetTypeNative {
		return nil, fmt.Errorf("bitcoin supports native BTC only")
	}
	if err := c.ValidateAddress(address); err != nil {
		return nil, err
	}

	utxos, err := c.client.GetUTXOs(ctx, address)
	if err != nil {
		return nil, err
	}

	var sum int64
	for _, utxo := range utxos {
		if !utxo.Status.Confirmed {
			continue
		}
		sum += utxo.Value
	}

	c.logger.Debug("UTXO sum computed",
		zap.String("address", address),
		zap.Int("utxos", len(utxos)),
		zap.Int64("sum_sats", sum))

	return big.NewInt(sum), nil
}

// TokenDecimals is unsupported: Bitcoin has no token layer here.
func (c *Chain) TokenDecimals(ctx context.Context, contractAddr string) (int, error) {
	return 0, fmt.Errorf("bitcoin has no token assets")
}

func (c *Chain) ValidateAddress(address string) error {
	if _, err := btcutil.DecodeAddress(address, c.params); err != nil {
		return fmt.Errorf("invalid bitcoin address: %w", err)
	}
	return nil
}
