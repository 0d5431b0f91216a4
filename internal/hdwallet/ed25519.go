package hdwallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// solanaScheme derives Ed25519 keys over SLIP-0010 (hardened-only) at
// m/44'/501'/{index}'/0' and encodes the public key as a base58 Solana
// address. No library in use covers SLIP-0010, so the HMAC-SHA512 ladder is
// implemented here against the published test vectors.
type solanaScheme struct{}

func newSolanaScheme() solanaScheme {
	return solanaScheme{}
}

func (solanaScheme) DeriveChildKey(seed []byte, index uint32) ([]byte, []byte, error) {
	key, chainCode := slip10MasterKey(seed)

	for _, step := range []uint32{44, 501, index, 0} {
		key, chainCode = slip10ChildKey(key, chainCode, hardened+step)
	}

	priv := ed25519.NewKeyFromSeed(key)
	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub, nil
}

func (solanaScheme) EncodeAddress(pub []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("unexpected public key length %d", len(pub))
	}
	return solana.PublicKeyFromBytes(pub).String(), nil
}

// EncodePrivateKey renders the full 64-byte expanded secret key as hex, the
// form Solana wallet tooling accepts.
func (solanaScheme) EncodePrivateKey(priv []byte) (string, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("unexpected private key length %d", len(priv))
	}
	return hex.EncodeToString(priv), nil
}

func slip10MasterKey(seed []byte) (key, chainCode []byte) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

func slip10ChildKey(parentKey, parentChain []byte, index uint32) (key, chainCode []byte) {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)

	mac := hmac.New(sha512.New, parentChain)
	mac.Write([]byte{0x00})
	mac.Write(parentKey)
	mac.Write(idx[:])
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}
