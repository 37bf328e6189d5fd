package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/permit"
)

// Signer produces EIP-712 permit signatures with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return NewSignerFromKey(pk), nil
}

// NewSignerFromKey wraps an existing key.
func NewSignerFromKey(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}
}

// GenerateSigner creates a Signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: generating key: %w", err)
	}
	return NewSignerFromKey(pk), nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the hex-encoded private key without 0x prefix.
func (s *Signer) PrivateKeyHex() string {
	return hex.EncodeToString(ethcrypto.FromECDSA(s.privateKey))
}

// SignAssetPermit signs an approval of spender for asset id.
func (s *Signer) SignAssetPermit(d permit.Domain, spender common.Address, id *uint256.Int, nonce uint64, deadline *uint256.Int) ([]byte, error) {
	return s.Sign(d, permit.AssetPermit{Spender: spender, ID: *id, Nonce: nonce, Deadline: *deadline})
}

// SignCurrencyPermit signs an EIP-2612 allowance from the signer to spender.
func (s *Signer) SignCurrencyPermit(d permit.Domain, spender common.Address, value *uint256.Int, nonce uint64, deadline *uint256.Int) ([]byte, error) {
	return s.Sign(d, permit.CurrencyPermit{Owner: s.address, Spender: spender, Value: *value, Nonce: nonce, Deadline: *deadline})
}

// Sign returns the 65-byte r || s || v signature of m under d, with v in {27,28}.
func (s *Signer) Sign(d permit.Domain, m permit.Message) ([]byte, error) {
	digest := permit.Digest(d, m)
	sig, err := ethcrypto.Sign(digest[:], s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// EncodeSignature renders sig as 0x-prefixed hex.
func EncodeSignature(sig []byte) string {
	return "0x" + hex.EncodeToString(sig)
}
