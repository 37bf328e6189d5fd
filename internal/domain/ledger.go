package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Tx is the execution context of a single atomic operation. Mutations register
// an undo with OnRevert so that a failed operation leaves no trace.
type Tx interface {
	Sender() common.Address
	Height() uint64
	Time() uint64
	OnRevert(undo func())
}

// NFTLedger is a non-fungible asset contract.
type NFTLedger interface {
	Address() common.Address
	OwnerOf(id *uint256.Int) (common.Address, error)
	TransferFrom(tx Tx, operator, from, to common.Address, id *uint256.Int) error
	Permit(tx Tx, owner, spender common.Address, id, deadline *uint256.Int, sig []byte) error
	Nonce(id *uint256.Int) uint64
}

// CurrencyLedger is the fungible payment token.
type CurrencyLedger interface {
	Address() common.Address
	BalanceOf(owner common.Address) uint256.Int
	Allowance(owner, spender common.Address) uint256.Int
	Transfer(tx Tx, from, to common.Address, amount *uint256.Int) error
	TransferFrom(tx Tx, operator, from, to common.Address, amount *uint256.Int) error
	Approve(tx Tx, owner, spender common.Address, amount *uint256.Int) error
	Permit(tx Tx, owner, spender common.Address, value, deadline *uint256.Int, sig []byte) error
}

// Vault receives fee shares. Deposit is called after the share has been pushed
// to Address; Claim releases accumulated funds to the vault's beneficiary.
type Vault interface {
	Address() common.Address
	Deposit(tx Tx, amount *uint256.Int) error
	Claim(tx Tx) error
}
