// Package escrow moves assets and currency into and out of the store's
// custody address.
package escrow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

// Registry resolves collection addresses.
type Registry interface {
	Collection(addr common.Address) (domain.NFTLedger, error)
}

// Adapter performs every external transfer on behalf of the store, acting as
// the custody address. Ledger failures are reported as domain.ErrTransferFailure.
type Adapter struct {
	custody  common.Address
	currency domain.CurrencyLedger
	nfts     Registry
}

func New(custody common.Address, currency domain.CurrencyLedger, nfts Registry) *Adapter {
	return &Adapter{custody: custody, currency: currency, nfts: nfts}
}

// Custody returns the address that holds escrowed value.
func (a *Adapter) Custody() common.Address { return a.custody }

// OwnerOf returns the ledger owner of an asset. Unknown collections and
// nonexistent assets report domain.ErrInvalidState.
func (a *Adapter) OwnerOf(collection common.Address, id *uint256.Int) (common.Address, error) {
	nft, err := a.nfts.Collection(collection)
	if err != nil {
		return common.Address{}, fmt.Errorf("escrow: %w: %w", domain.ErrInvalidState, err)
	}
	owner, err := nft.OwnerOf(id)
	if err != nil {
		return common.Address{}, fmt.Errorf("escrow: %w: %w", domain.ErrInvalidState, err)
	}
	return owner, nil
}

// PermitAsset submits owner's signed approval of the custody address for id.
func (a *Adapter) PermitAsset(tx domain.Tx, collection, owner common.Address, id, deadline *uint256.Int, sig []byte) error {
	nft, err := a.nfts.Collection(collection)
	if err != nil {
		return fmt.Errorf("escrow: permit: %w: %w", domain.ErrInvalidState, err)
	}
	if err := nft.Permit(tx, owner, a.custody, id, deadline, sig); err != nil {
		return fmt.Errorf("escrow: permit: %w", err)
	}
	return nil
}

// PullAsset moves id from owner into custody.
func (a *Adapter) PullAsset(tx domain.Tx, collection, owner common.Address, id *uint256.Int) error {
	return a.moveAsset(tx, "pull asset", collection, owner, a.custody, id)
}

// PushAsset moves id out of custody to to.
func (a *Adapter) PushAsset(tx domain.Tx, collection, to common.Address, id *uint256.Int) error {
	return a.moveAsset(tx, "push asset", collection, a.custody, to, id)
}

// TransferAsset moves id directly between two accounts using the custody
// address's operator approval.
func (a *Adapter) TransferAsset(tx domain.Tx, collection, from, to common.Address, id *uint256.Int) error {
	return a.moveAsset(tx, "transfer asset", collection, from, to, id)
}

func (a *Adapter) moveAsset(tx domain.Tx, op string, collection, from, to common.Address, id *uint256.Int) error {
	nft, err := a.nfts.Collection(collection)
	if err != nil {
		return fmt.Errorf("escrow: %s: %w: %w", op, domain.ErrTransferFailure, err)
	}
	if err := nft.TransferFrom(tx, a.custody, from, to, id); err != nil {
		return fmt.Errorf("escrow: %s %s: %w: %w", op, id.Dec(), domain.ErrTransferFailure, err)
	}
	return nil
}

// PullCurrency moves amount from from into custody. Zero is a no-op.
func (a *Adapter) PullCurrency(tx domain.Tx, from common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := a.currency.TransferFrom(tx, a.custody, from, a.custody, amount); err != nil {
		return fmt.Errorf("escrow: pull currency %s from %s: %w: %w", amount.Dec(), from.Hex(), domain.ErrTransferFailure, err)
	}
	return nil
}

// PushCurrency pays amount out of custody to to. Zero is a no-op.
func (a *Adapter) PushCurrency(tx domain.Tx, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := a.currency.Transfer(tx, a.custody, to, amount); err != nil {
		return fmt.Errorf("escrow: push currency %s to %s: %w: %w", amount.Dec(), to.Hex(), domain.ErrTransferFailure, err)
	}
	return nil
}
