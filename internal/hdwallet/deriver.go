package hdwallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"

	"ico-relayer/internal/domain"
)

// KeyScheme is implemented once per curve/address convention. Derivation is
// a pure function of (seed, scheme, index): the same inputs always produce
// the same wallet, so a lost deposit key is recoverable from the master
// mnemonic and the session's derivation index alone.
type KeyScheme interface {
	// DeriveChildKey walks the scheme's hierarchical path for index.
	DeriveChildKey(seed []byte, index uint32) (priv []byte, pub []byte, err error)

	// EncodeAddress renders the public key in the chain's address format.
	EncodeAddress(pub []byte) (string, error)

	// EncodePrivateKey renders the private key in the format the chain's
	// tooling expects (hex, WIF, ...).
	EncodePrivateKey(priv []byte) (string, error)
}

// Deriver produces per-session deposit wallets across all chain families.
type Deriver struct {
	seed    []byte
	schemes map[domain.ChainID]KeyScheme
}

// NewDeriver validates the master mnemonic and prepares one scheme per
// supported chain.
func NewDeriver(mnemonic string) (*Deriver, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, domain.ErrInvalidSeed
	}
	seed := bip39.NewSeed(mnemonic, "")

	return &Deriver{
		seed: seed,
		schemes: map[domain.ChainID]KeyScheme{
			domain.ChainEthereum:       newEVMScheme(),
			domain.ChainSepolia:        newEVMScheme(),
			domain.ChainPolygon:        newEVMScheme(),
			domain.ChainAmoy:           newEVMScheme(),
			domain.ChainTron:           newTronScheme(),
			domain.ChainTronShasta:     newTronScheme(),
			domain.ChainBitcoin:        newBitcoinScheme(false),
			domain.ChainBitcoinTestnet: newBitcoinScheme(true),
			domain.ChainSolana:         newSolanaScheme(),
			domain.ChainSolanaDevnet:   newSolanaScheme(),
		},
	}, nil
}

// Derive returns the deposit wallet for (chain, index). It has no side
// effects; persisting the secret exactly once is the caller's job.
func (d *Deriver) Derive(chain domain.ChainID, index uint32) (*domain.Wallet, error) {
	scheme, ok := d.schemes[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, chain)
	}

	priv, pub, err := scheme.DeriveChildKey(d.seed, index)
	if err != nil {
		return nil, fmt.Errorf("derive child key for %s/%d: %w", chain, index, err)
	}

	address, err := scheme.EncodeAddress(pub)
	if err != nil {
		return nil, fmt.Errorf("encode address for %s: %w", chain, err)
	}

	secret, err := scheme.EncodePrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("encode private key for %s: %w", chain, err)
	}

	return &domain.Wallet{
		Chain:      chain,
		Address:    address,
		PrivateKey: secret,
	}, nil
}
