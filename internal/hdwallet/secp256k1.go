package hdwallet

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	tronaddr "github.com/fbsobreira/gotron-sdk/pkg/address"
)

const hardened = hdkeychain.HardenedKeyStart

// secp256k1Scheme walks a BIP-32/BIP-44 style path. The concrete chain
// schemes embed it and add their address encoding.
//
// Paths:
//
//	EVM     m/44'/60'/0'/0/{index}
//	Tron    m/44'/195'/0'/0/{index}
//	Bitcoin m/84'/0'/0'/0/{index} (1' on testnet)
type secp256k1Scheme struct {
	purpose  uint32
	coinType uint32
	params   *chaincfg.Params
}

func (s secp256k1Scheme) DeriveChildKey(seed []byte, index uint32) ([]byte, []byte, error) {
	master, err := hdkeychain.NewMaster(seed, s.params)
	if err != nil {
		return nil, nil, fmt.Errorf("new master key: %w", err)
	}

	key := master
	for _, step := range []uint32{
		hardened + s.purpose,
		hardened + s.coinType,
		hardened, // account 0'
		0,        // external branch
		index,
	} {
		if key, err = key.Derive(step); err != nil {
			return nil, nil, fmt.Errorf("derive step %d: %w", step, err)
		}
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, nil, fmt.Errorf("extract private key: %w", err)
	}

	return privKey.Serialize(), privKey.PubKey().SerializeCompressed(), nil
}

// evmScheme encodes EIP-55 checksummed hex addresses.
type evmScheme struct {
	secp256k1Scheme
}

func newEVMScheme() evmScheme {
	return evmScheme{secp256k1Scheme{purpose: 44, coinType: 60, params: &chaincfg.MainNetParams}}
}

func (evmScheme) EncodeAddress(pub []byte) (string, error) {
	pubKey, err := btcec.ParsePubKey(pub)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey.ToECDSA()).Hex(), nil
}

func (evmScheme) EncodePrivateKey(priv []byte) (string, error) {
	return hex.EncodeToString(priv), nil
}

// tronScheme reuses the secp256k1 curve with Tron's base58check encoding.
type tronScheme struct {
	secp256k1Scheme
}

func newTronScheme() tronScheme {
	return tronScheme{secp256k1Scheme{purpose: 44, coinType: 195, params: &chaincfg.MainNetParams}}
}

func (tronScheme) EncodeAddress(pub []byte) (string, error) {
	pubKey, err := btcec.ParsePubKey(pub)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	return tronaddr.PubkeyToAddress(*pubKey.ToECDSA()).String(), nil
}

func (tronScheme) EncodePrivateKey(priv []byte) (string, error) {
	return hex.EncodeToString(priv), nil
}

// bitcoinScheme encodes bech32 P2WPKH addresses and WIF private keys.
type bitcoinScheme struct {
	secp256k1Scheme
}

func newBitcoinScheme(testnet bool) bitcoinScheme {
	coinType := uint32(0)
	params := &chaincfg.MainNetParams
	if testnet {
		coinType = 1
		params = &chaincfg.TestNet3Params
	}
	return bitcoinScheme{secp256k1Scheme{purpose: 84, coinType: coinType, params: params}}
}

func (s bitcoinScheme) EncodeAddress(pub []byte) (string, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub), s.params)
	if err != nil {
		return "", fmt.Errorf("p2wpkh address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

func (s bitcoinScheme) EncodePrivateKey(priv []byte) (string, error) {
	privKey, _ := btcec.PrivKeyFromBytes(priv)
	wif, err := btcutil.NewWIF(privKey, s.params, true)
	if err != nil {
		return "", fmt.Errorf("encode WIF: %w", err)
	}
	return wif.String(), nil
}
