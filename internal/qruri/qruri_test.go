package qruri

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ico-relayer/internal/domain"
)

func TestBuildEVMNative(t *testing.T) {
	asset := domain.NativeAsset(domain.ChainEthereum)
	amount, _ := new(big.Int).SetString("100000000000000000", 10)

	payload, err := Build(domain.ChainEthereum, asset, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", amount)
	require.NoError(t, err)

	assert.Equal(t, "ethereum:0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B@1?value=100000000000000000", payload.URI)
	assert.Equal(t, "ETH", payload.Asset)
	assert.Equal(t, "100000000000000000", payload.Amount.String())
}

func TestBuildEVMToken(t *testing.T) {
	asset := domain.TokenAsset(domain.ChainPolygon, "USDT", "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", 6)

	payload, err := Build(domain.ChainPolygon, asset, "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", big.NewInt(25000000))
	require.NoError(t, err)

	assert.Equal(t,
		"ethereum:0xc2132D05D31c914a87C6611C10748AEb04B58e8F@137/transfer?address=0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B&uint256=25000000",
		payload.URI)
}

func TestBuildSolanaPay(t *testing.T) {
	owner := "7v91N7iZ9mNicL8WfG6cgSCKyRXydQjLh6UYBWwm6y1Q"

	native, err := Build(domain.ChainSolana, domain.NativeAsset(domain.ChainSolana), owner, big.NewInt(1500000000))
	require.NoError(t, err)
	assert.Equal(t, "solana:"+owner+"?amount=1.5", native.URI)

	mint := "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	token, err := Build(domain.ChainSolana, domain.TokenAsset(domain.ChainSolana, "USDC", mint, 6), owner, big.NewInt(25000000))
	require.NoError(t, err)
	assert.Equal(t, "solana:"+owner+"?amount=25&spl-token="+mint, token.URI)
}

func TestBuildBitcoinBIP21(t *testing.T) {
	payload, err := Build(domain.ChainBitcoin, domain.NativeAsset(domain.ChainBitcoin),
		"bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu", big.NewInt(150000))
	require.NoError(t, err)

	assert.Equal(t, "bitcoin:bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu?amount=0.0015", payload.URI)
}

func TestBuildTron(t *testing.T) {
	addr := "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

	native, err := Build(domain.ChainTron, domain.NativeAsset(domain.ChainTron), addr, big.NewInt(30303030))
	require.NoError(t, err)
	assert.Equal(t, "tron:"+addr+"?amount=30.30303", native.URI)

	token, err := Build(domain.ChainTron, domain.TokenAsset(domain.ChainTron, "USDT", addr, 6), addr, big.NewInt(1000000))
	require.NoError(t, err)
	assert.Equal(t, "tron:"+addr+"?amount=1&token="+addr, token.URI)
}
