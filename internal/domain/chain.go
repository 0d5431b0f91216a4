package domain

import (
	"context"
	"fmt"
	"math/big"
)

// ChainFamily groups ledgers that share an address and key scheme.
type ChainFamily string

const (
	FamilyEVM     ChainFamily = "evm"
	FamilySolana  ChainFamily = "solana"
	FamilyBitcoin ChainFamily = "bitcoin"
	FamilyTron    ChainFamily = "tron"
)

// ChainID identifies a supported deposit network. The set is closed: adding a
// chain means adding a constant here and an entry in chainInfo, nothing else.
type ChainID string

const (
	ChainEthereum       ChainID = "ethereum"
	ChainSepolia        ChainID = "sepolia"
	ChainPolygon        ChainID = "polygon"
	ChainAmoy           ChainID = "amoy"
	ChainSolana         ChainID = "solana"
	ChainSolanaDevnet   ChainID = "solana-devnet"
	ChainBitcoin        ChainID = "bitcoin"
	ChainBitcoinTestnet ChainID = "bitcoin-testnet"
	ChainTron           ChainID = "tron"
	ChainTronShasta     ChainID = "tron-shasta"
)

type chainMeta struct {
	family         ChainFamily
	testnet        bool
	nativeSymbol   string
	nativeDecimals int
	evmChainID     int64 // EIP-155 id, EVM chains only
}

var chainInfo = map[ChainID]chainMeta{
	ChainEthereum:       {FamilyEVM, false, "ETH", 18, 1},
	ChainSepolia:        {FamilyEVM, true, "ETH", 18, 11155111},
	ChainPolygon:        {FamilyEVM, false, "POL", 18, 137},
	ChainAmoy:           {FamilyEVM, true, "POL", 18, 80002},
	ChainSolana:         {FamilySolana, false, "SOL", 9, 0},
	ChainSolanaDevnet:   {FamilySolana, true, "SOL", 9, 0},
	ChainBitcoin:        {FamilyBitcoin, false, "BTC", 8, 0},
	ChainBitcoinTestnet: {FamilyBitcoin, true, "BTC", 8, 0},
	ChainTron:           {FamilyTron, false, "TRX", 6, 0},
	ChainTronShasta:     {FamilyTron, true, "TRX", 6, 0},
}

// ParseChainID validates a client-supplied chain identifier.
func ParseChainID(s string) (ChainID, error) {
	id := ChainID(s)
	if _, ok := chainInfo[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChain, s)
	}
	return id, nil
}

// SupportedChains returns every chain the engine knows about.
func SupportedChains() []ChainID {
	ids := make([]ChainID, 0, len(chainInfo))
	for id := range chainInfo {
		ids = append(ids, id)
	}
	return ids
}

func (c ChainID) Family() ChainFamily {
	return chainInfo[c].family
}

func (c ChainID) Testnet() bool {
	return chainInfo[c].testnet
}

func (c ChainID) NativeSymbol() string {
	return chainInfo[c].nativeSymbol
}

func (c ChainID) NativeDecimals() int {
	return chainInfo[c].nativeDecimals
}

// EVMChainID returns the EIP-155 chain id, zero for non-EVM chains.
func (c ChainID) EVMChainID() int64 {
	return chainInfo[c].evmChainID
}

type AssetType string

const (
	AssetTypeNative AssetType = "native"
	AssetTypeToken  AssetType = "token"
)

// Asset describes what the buyer pays with on the deposit chain.
type Asset struct {
	Chain        ChainID
	Symbol       string
	ContractAddr *string // token contract / SPL mint, tokens only
	Decimals     int
	Type         AssetType
}

// NativeAsset builds the base-coin asset for a chain.
func NativeAsset(chain ChainID) *Asset {
	return &Asset{
		Chain:    chain,
		Symbol:   chain.NativeSymbol(),
		Decimals: chain.NativeDecimals(),
		Type:     AssetTypeNative,
	}
}

// TokenAsset builds a fungible-token asset for a chain.
func TokenAsset(chain ChainID, symbol, contractAddr string, decimals int) *Asset {
	return &Asset{
		Chain:        chain,
		Symbol:       symbol,
		ContractAddr: &contractAddr,
		Decimals:     decimals,
		Type:         AssetTypeToken,
	}
}

// ChainAdapter is the uniform capability surface over one deposit network.
type ChainAdapter interface {
	// ChainID returns the network this adapter serves.
	ChainID() ChainID

	// ReceivedAmount reports how much of the asset the address holds, in
	// minor units. Account chains return the balance; Bitcoin sums confirmed
	// UTXOs. An address that has never been funded yields zero, not an
	// error; transport failures wrap ErrAdapterUnavailable.
	ReceivedAmount(ctx context.Context, address string, asset *Asset) (*big.Int, error)

	// NativeDecimals is fixed per chain family.
	NativeDecimals() int

	// TokenDecimals queries the token contract or mint.
	TokenDecimals(ctx context.Context, contractAddr string) (int, error)

	// ValidateAddress checks address format for this chain.
	ValidateAddress(address string) error
}

// Wallet is a derived deposit address and its key material. The private key
// is handed to the caller exactly once and must never be logged.
type Wallet struct {
	Chain      ChainID
	Address    string
	PrivateKey string
}
