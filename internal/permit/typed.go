// Package permit implements EIP-712 typed-data permits for asset approvals and
// currency allowances, plus per-subject replay protection.
package permit

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Permit(address spender,uint256 id,uint256 nonce,uint256 deadline)
	assetPermitTypeHash = ethcrypto.Keccak256(
		[]byte("Permit(address spender,uint256 id,uint256 nonce,uint256 deadline)"),
	)

	// Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)
	currencyPermitTypeHash = ethcrypto.Keccak256(
		[]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"),
	)
)

// Domain binds signatures to one contract on one chain.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract common.Address
}

// Separator returns keccak256(abi.encode(typeHash, name, version, chainId, verifyingContract)).
func (d Domain) Separator() common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		domainTypeHash,
		ethcrypto.Keccak256([]byte(d.Name)),
		ethcrypto.Keccak256([]byte(d.Version)),
		word(uint256.NewInt(d.ChainID)),
		addressWord(d.VerifyingContract),
	))
}

// Message is an EIP-712 struct that can be hashed.
type Message interface {
	StructHash() common.Hash
}

// AssetPermit approves Spender for a single asset id.
type AssetPermit struct {
	Spender  common.Address
	ID       uint256.Int
	Nonce    uint64
	Deadline uint256.Int
}

func (p AssetPermit) StructHash() common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		assetPermitTypeHash,
		addressWord(p.Spender),
		word(&p.ID),
		word(uint256.NewInt(p.Nonce)),
		word(&p.Deadline),
	))
}

// CurrencyPermit sets Spender's allowance over Owner's balance to Value.
type CurrencyPermit struct {
	Owner    common.Address
	Spender  common.Address
	Value    uint256.Int
	Nonce    uint64
	Deadline uint256.Int
}

func (p CurrencyPermit) StructHash() common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		currencyPermitTypeHash,
		addressWord(p.Owner),
		addressWord(p.Spender),
		word(&p.Value),
		word(uint256.NewInt(p.Nonce)),
		word(&p.Deadline),
	))
}

// Digest computes keccak256("\x19\x01" || domainSeparator || structHash).
func Digest(d Domain, m Message) common.Hash {
	sep := d.Separator()
	sh := m.StructHash()
	return common.BytesToHash(ethcrypto.Keccak256([]byte{0x19, 0x01}, sep[:], sh[:]))
}

func word(n *uint256.Int) []byte {
	b := n.Bytes32()
	return b[:]
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}
