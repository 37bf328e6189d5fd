package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/chain"
	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/permit"
)

var _ domain.CurrencyLedger = (*Token)(nil)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Token is an ERC-20 style currency with EIP-2612 permits.
type Token struct {
	address    common.Address
	symbol     string
	supply     uint256.Int
	balances   map[common.Address]uint256.Int
	allowances map[allowanceKey]uint256.Int
	permits    *permit.Verifier
}

// NewToken creates an empty currency at address.
func NewToken(address common.Address, symbol string, d permit.Domain) *Token {
	d.VerifyingContract = address
	return &Token{
		address:    address,
		symbol:     symbol,
		balances:   make(map[common.Address]uint256.Int),
		allowances: make(map[allowanceKey]uint256.Int),
		permits:    permit.NewVerifier(d),
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Symbol() string          { return t.symbol }

// Domain returns the EIP-712 domain of currency permits.
func (t *Token) Domain() permit.Domain { return t.permits.Domain() }

// Nonce returns the next permit nonce for owner.
func (t *Token) Nonce(owner common.Address) uint64 { return t.permits.OwnerNonce(owner) }

func (t *Token) TotalSupply() uint256.Int { return t.supply }

func (t *Token) BalanceOf(owner common.Address) uint256.Int { return t.balances[owner] }

func (t *Token) Allowance(owner, spender common.Address) uint256.Int {
	return t.allowances[allowanceKey{owner, spender}]
}

// Mint creates amount new units for to.
func (t *Token) Mint(tx domain.Tx, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("ledger: mint: %w", ErrZeroAddress)
	}
	supply, overflow := new(uint256.Int).AddOverflow(&t.supply, amount)
	if overflow {
		return fmt.Errorf("ledger: mint: supply overflow")
	}
	chain.Assign(tx, &t.supply, *supply)
	bal := t.balances[to]
	chain.Set(tx, t.balances, to, *new(uint256.Int).Add(&bal, amount))
	return nil
}

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(tx domain.Tx, owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return fmt.Errorf("ledger: approve: %w", ErrZeroAddress)
	}
	chain.Set(tx, t.allowances, allowanceKey{owner, spender}, *amount)
	return nil
}

// Permit applies an EIP-2612 signed approval.
func (t *Token) Permit(tx domain.Tx, owner, spender common.Address, value, deadline *uint256.Int, sig []byte) error {
	if err := t.permits.VerifyCurrency(tx, owner, spender, value, deadline, sig); err != nil {
		return fmt.Errorf("ledger: permit: %w", err)
	}
	return t.Approve(tx, owner, spender, value)
}

// Transfer moves amount from the acting account from to to.
func (t *Token) Transfer(tx domain.Tx, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("ledger: transfer: %w", ErrZeroAddress)
	}
	bal := t.balances[from]
	if bal.Lt(amount) {
		return fmt.Errorf("ledger: transfer %s from %s: %w", amount.Dec(), from.Hex(), ErrInsufficientBalance)
	}
	chain.Set(tx, t.balances, from, *new(uint256.Int).Sub(&bal, amount))
	dst := t.balances[to]
	chain.Set(tx, t.balances, to, *new(uint256.Int).Add(&dst, amount))
	return nil
}

// TransferFrom moves amount on behalf of from, spending operator's allowance
// unless operator is from itself. A max allowance is never decremented.
func (t *Token) TransferFrom(tx domain.Tx, operator, from, to common.Address, amount *uint256.Int) error {
	if operator != from {
		key := allowanceKey{from, operator}
		allowed := t.allowances[key]
		if allowed.Lt(amount) {
			return fmt.Errorf("ledger: transferFrom %s by %s: %w", from.Hex(), operator.Hex(), ErrInsufficientAllowance)
		}
		if !isMax(&allowed) {
			chain.Set(tx, t.allowances, key, *new(uint256.Int).Sub(&allowed, amount))
		}
	}
	return t.Transfer(tx, from, to, amount)
}

func isMax(v *uint256.Int) bool {
	return v.Eq(new(uint256.Int).SetAllOne())
}
