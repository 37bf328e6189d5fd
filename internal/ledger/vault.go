package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

var _ domain.Vault = (*Vault)(nil)

// Vault collects one fee stream, stakes it, and pays principal plus yield to
// its beneficiary on Claim.
type Vault struct {
	name        string
	address     common.Address
	beneficiary common.Address
	currency    *Token
	staker      *Staker
}

func NewVault(name string, address, beneficiary common.Address, currency *Token, staker *Staker) *Vault {
	return &Vault{name: name, address: address, beneficiary: beneficiary, currency: currency, staker: staker}
}

func (v *Vault) Name() string                { return v.name }
func (v *Vault) Address() common.Address     { return v.address }
func (v *Vault) Beneficiary() common.Address { return v.beneficiary }

// Deposit stakes an inflow that has already been transferred to the vault.
func (v *Vault) Deposit(tx domain.Tx, amount *uint256.Int) error {
	if v.staker == nil {
		return nil
	}
	if err := v.staker.Deposit(tx, v.address, amount); err != nil {
		return fmt.Errorf("ledger: vault %s deposit: %w", v.name, err)
	}
	return nil
}

// Claim unstakes everything, harvests, and pays the beneficiary. Any sender
// may trigger it; the payout always goes to the beneficiary.
func (v *Vault) Claim(tx domain.Tx) error {
	if v.staker != nil {
		principal := v.staker.Staked(v.address)
		if err := v.staker.Withdraw(tx, v.address, &principal); err != nil {
			return fmt.Errorf("ledger: vault %s claim: %w", v.name, err)
		}
		if _, err := v.staker.Harvest(tx, v.address); err != nil {
			return fmt.Errorf("ledger: vault %s claim: %w", v.name, err)
		}
	}
	bal := v.currency.BalanceOf(v.address)
	if bal.IsZero() {
		return nil
	}
	if err := v.currency.Transfer(tx, v.address, v.beneficiary, &bal); err != nil {
		return fmt.Errorf("ledger: vault %s claim: %w", v.name, err)
	}
	return nil
}

// Holdings returns the vault's idle balance plus its staked principal.
func (v *Vault) Holdings() uint256.Int {
	bal := v.currency.BalanceOf(v.address)
	if v.staker != nil {
		staked := v.staker.Staked(v.address)
		bal.Add(&bal, &staked)
	}
	return bal
}
