package hdwallet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ico-relayer/internal/domain"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestNewDeriverRejectsInvalidMnemonic(t *testing.T) {
	_, err := NewDeriver("not a valid mnemonic at all")
	assert.ErrorIs(t, err, domain.ErrInvalidSeed)
}

func TestDeriveEthereumKnownVectors(t *testing.T) {
	d, err := NewDeriver(testMnemonic)
	require.NoError(t, err)

	w0, err := d.Derive(domain.ChainEthereum, 0)
	require.NoError(t, err)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", w0.Address)

	w1, err := d.Derive(domain.ChainEthereum, 1)
	require.NoError(t, err)
	assert.Equal(t, "0x6Fac4D18c912343BF86fa7049364Dd4E424Ab9C0", w1.Address)
}

func TestDeriveBitcoinKnownVectors(t *testing.T) {
	d, err := NewDeriver(testMnemonic)
	require.NoError(t, err)

	w0, err := d.Derive(domain.ChainBitcoin, 0)
	require.NoError(t, err)
	assert.Equal(t, "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu", w0.Address)

	w1, err := d.Derive(domain.ChainBitcoin, 1)
	require.NoError(t, err)
	assert.Equal(t, "bc1qnjg0jd8228aq7egyzacy8cys3knf9xvrerkf9g", w1.Address)
}

func TestDeriveIsDeterministic(t *testing.T) {
	first, err := NewDeriver(testMnemonic)
	require.NoError(t, err)
	second, err := NewDeriver(testMnemonic)
	require.NoError(t, err)

	for _, chain := range domain.SupportedChains() {
		a, err := first.Derive(chain, 7)
		require.NoError(t, err, "chain %s", chain)
		b, err := second.Derive(chain, 7)
		require.NoError(t, err, "chain %s", chain)

		assert.Equal(t, a.Address, b.Address, "chain %s", chain)
		assert.Equal(t, a.PrivateKey, b.PrivateKey, "chain %s", chain)
	}
}

func TestDeriveIndexesAreDistinct(t *testing.T) {
	d, err := NewDeriver(testMnemonic)
	require.NoError(t, err)

	for _, chain := range domain.SupportedChains() {
		seen := make(map[string]bool)
		for index := uint32(0); index < 10; index++ {
			w, err := d.Derive(chain, index)
			require.NoError(t, err)
			assert.False(t, seen[w.Address], "duplicate address on %s at index %d", chain, index)
			seen[w.Address] = true
		}
	}
}

func TestDeriveAddressFormats(t *testing.T) {
	d, err := NewDeriver(testMnemonic)
	require.NoError(t, err)

	tron, err := d.Derive(domain.ChainTron, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tron.Address, "T"))
	assert.Len(t, tron.Address, 34)

	sol, err := d.Derive(domain.ChainSolana, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, sol.Address)
	assert.NotContains(t, sol.Address, "0") // base58 excludes zero

	btcTestnet, err := d.Derive(domain.ChainBitcoinTestnet, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(btcTestnet.Address, "tb1"))
}

func TestDeriveTestnetSharesEVMAddresses(t *testing.T) {
	d, err := NewDeriver(testMnemonic)
	require.NoError(t, err)

	mainnet, err := d.Derive(domain.ChainEthereum, 3)
	require.NoError(t, err)
	testnet, err := d.Derive(domain.ChainSepolia, 3)
	require.NoError(t, err)

	assert.Equal(t, mainnet.Address, testnet.Address)
}
