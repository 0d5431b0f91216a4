// Package qruri renders wallet-scannable payment request URIs: EIP-681 for
// EVM chains, Solana Pay, BIP-21 for Bitcoin, and the tron: scheme.
package qruri

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"ico-relayer/internal/domain"
)

// Payload is the deposit instruction a client turns into a QR code.
type Payload struct {
	Address string           `json:"address"`
	Amount  domain.BigAmount `json:"amount"`
	Asset   string           `json:"asset"`
	URI     string           `json:"uri"`
}

// Build renders the URI for a deposit request. The amount is in the asset's
// minor units; schemes that want whole-unit decimals get the converted form.
func Build(chain domain.ChainID, asset *domain.Asset, address string, amount *big.Int) (*Payload, error) {
	var uri string

	switch chain.Family() {
	case domain.FamilyEVM:
		uri = evmURI(chain, asset, address, amount)
	case domain.FamilySolana:
		uri = solanaURI(asset, address, amount)
	case domain.FamilyBitcoin:
		uri = fmt.Sprintf("bitcoin:%s?amount=%s", address, wholeUnits(amount, asset.Decimals))
	case domain.FamilyTron:
		uri = tronURI(asset, address, amount)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, chain)
	}

	return &Payload{
		Address: address,
		Amount:  domain.NewBigAmount(amount),
		Asset:   asset.Symbol,
		URI:     uri,
	}, nil
}

func evmURI(chain domain.ChainID, asset *domain.Asset, address string, amount *big.Int) string {
	chainID := chain.EVMChainID()
	if asset.Type == domain.AssetTypeToken && asset.ContractAddr != nil {
		return fmt.Sprintf("ethereum:%s@%d/transfer?address=%s&uint256=%s",
			*asset.ContractAddr, chainID, address, amount.String())
	}
	return fmt.Sprintf("ethereum:%s@%d?value=%s", address, chainID, amount.String())
}

func solanaURI(asset *domain.Asset, address string, amount *big.Int) string {
	uri := fmt.Sprintf("solana:%s?amount=%s", address, wholeUnits(amount, asset.Decimals))
	if asset.Type == domain.AssetTypeToken && asset.ContractAddr != nil {
		uri += "&spl-token=" + *asset.ContractAddr
	}
	return uri
}

func tronURI(asset *domain.Asset, address string, amount *big.Int) string {
	uri := fmt.Sprintf("tron:%s?amount=%s", address, wholeUnits(amount, asset.Decimals))
	if asset.Type == domain.AssetTypeToken && asset.ContractAddr != nil {
		uri += "&token=" + *asset.ContractAddr
	}
	return uri
}

func wholeUnits(amount *big.Int, decimals int) string {
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}
