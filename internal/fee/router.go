package fee

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

// Payer pays out of custody.
type Payer interface {
	PushCurrency(tx domain.Tx, to common.Address, amount *uint256.Int) error
}

// Router distributes escrowed settlement amounts to the fee vaults and the
// seller.
type Router struct {
	payer   Payer
	owner   domain.Vault
	staking domain.Vault
}

func NewRouter(payer Payer, ownerVault, stakingVault domain.Vault) *Router {
	return &Router{payer: payer, owner: ownerVault, staking: stakingVault}
}

// Settle pays each vault its share and notifies it, then pays the seller the
// remainder. Zero shares are skipped. Any failure aborts the settlement.
func (r *Router) Settle(tx domain.Tx, seller common.Address, amount *uint256.Int, cfg domain.FeeConfig) (Split, error) {
	split := Compute(amount, cfg)

	if err := r.fund(tx, "owner", r.owner, &split.Owner); err != nil {
		return Split{}, err
	}
	if err := r.fund(tx, "staking", r.staking, &split.Staking); err != nil {
		return Split{}, err
	}
	if err := r.payer.PushCurrency(tx, seller, &split.Seller); err != nil {
		return Split{}, fmt.Errorf("fee: pay seller: %w", err)
	}
	return split, nil
}

func (r *Router) fund(tx domain.Tx, name string, v domain.Vault, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if v == nil {
		return fmt.Errorf("fee: %s vault: %w: not configured", name, domain.ErrTransferFailure)
	}
	if err := r.payer.PushCurrency(tx, v.Address(), amount); err != nil {
		return fmt.Errorf("fee: fund %s vault: %w", name, err)
	}
	if err := v.Deposit(tx, amount); err != nil {
		return fmt.Errorf("fee: %s vault deposit: %w: %w", name, domain.ErrTransferFailure, err)
	}
	return nil
}
