package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/chain"
	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/permit"
)

var _ domain.NFTLedger = (*NFT)(nil)

type operatorKey struct {
	owner    common.Address
	operator common.Address
}

// NFT is an ERC-721 style collection with EIP-712 permits for single-token
// approvals.
type NFT struct {
	address   common.Address
	name      string
	nextID    uint256.Int
	owners    map[uint256.Int]common.Address
	approvals map[uint256.Int]common.Address
	operators map[operatorKey]bool
	balances  map[common.Address]uint64
	permits   *permit.Verifier
}

// NewNFT creates an empty collection at address.
func NewNFT(address common.Address, d permit.Domain) *NFT {
	d.VerifyingContract = address
	return &NFT{
		address:   address,
		name:      d.Name,
		owners:    make(map[uint256.Int]common.Address),
		approvals: make(map[uint256.Int]common.Address),
		operators: make(map[operatorKey]bool),
		balances:  make(map[common.Address]uint64),
		permits:   permit.NewVerifier(d),
	}
}

func (n *NFT) Address() common.Address { return n.address }
func (n *NFT) Name() string            { return n.name }

// Domain returns the EIP-712 domain of asset permits.
func (n *NFT) Domain() permit.Domain { return n.permits.Domain() }

// Nonce returns the next permit nonce for id.
func (n *NFT) Nonce(id *uint256.Int) uint64 { return n.permits.AssetNonce(id) }

func (n *NFT) BalanceOf(owner common.Address) uint64 { return n.balances[owner] }

func (n *NFT) OwnerOf(id *uint256.Int) (common.Address, error) {
	owner, ok := n.owners[*id]
	if !ok {
		return common.Address{}, fmt.Errorf("ledger: ownerOf %s: %w", id.Dec(), ErrNonexistentToken)
	}
	return owner, nil
}

func (n *NFT) GetApproved(id *uint256.Int) common.Address { return n.approvals[*id] }

func (n *NFT) IsApprovedForAll(owner, operator common.Address) bool {
	return n.operators[operatorKey{owner, operator}]
}

// Mint assigns the next sequential id to to and returns it.
func (n *NFT) Mint(tx domain.Tx, to common.Address) (uint256.Int, error) {
	if to == (common.Address{}) {
		return uint256.Int{}, fmt.Errorf("ledger: mint: %w", ErrZeroAddress)
	}
	id := n.nextID
	chain.Assign(tx, &n.nextID, *new(uint256.Int).AddUint64(&id, 1))
	chain.Set(tx, n.owners, id, to)
	chain.Set(tx, n.balances, to, n.balances[to]+1)
	return id, nil
}

// Approve lets spender transfer id. caller must own id or be an operator.
func (n *NFT) Approve(tx domain.Tx, caller, spender common.Address, id *uint256.Int) error {
	owner, err := n.OwnerOf(id)
	if err != nil {
		return err
	}
	if caller != owner && !n.IsApprovedForAll(owner, caller) {
		return fmt.Errorf("ledger: approve %s: %w", id.Dec(), ErrNotApproved)
	}
	chain.Set(tx, n.approvals, *id, spender)
	return nil
}

// SetApprovalForAll toggles operator rights over every token owned by owner.
func (n *NFT) SetApprovalForAll(tx domain.Tx, owner, operator common.Address, approved bool) error {
	if operator == (common.Address{}) {
		return fmt.Errorf("ledger: setApprovalForAll: %w", ErrZeroAddress)
	}
	chain.Set(tx, n.operators, operatorKey{owner, operator}, approved)
	return nil
}

// Permit applies owner's signed approval of spender for id.
func (n *NFT) Permit(tx domain.Tx, owner, spender common.Address, id, deadline *uint256.Int, sig []byte) error {
	current, err := n.OwnerOf(id)
	if err != nil {
		return err
	}
	if current != owner {
		return fmt.Errorf("ledger: permit %s: %w", id.Dec(), ErrNotOwner)
	}
	if err := n.permits.VerifyAsset(tx, owner, spender, id, deadline, sig); err != nil {
		return fmt.Errorf("ledger: permit %s: %w", id.Dec(), err)
	}
	chain.Set(tx, n.approvals, *id, spender)
	return nil
}

// TransferFrom moves id from from to to. operator must be the owner, the
// approved address for id, or an operator for the owner.
func (n *NFT) TransferFrom(tx domain.Tx, operator, from, to common.Address, id *uint256.Int) error {
	owner, err := n.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("ledger: transferFrom %s: %w", id.Dec(), ErrNotOwner)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("ledger: transferFrom %s: %w", id.Dec(), ErrZeroAddress)
	}
	if operator != owner && n.approvals[*id] != operator && !n.IsApprovedForAll(owner, operator) {
		return fmt.Errorf("ledger: transferFrom %s by %s: %w", id.Dec(), operator.Hex(), ErrNotApproved)
	}

	chain.Delete(tx, n.approvals, *id)
	chain.Set(tx, n.owners, *id, to)
	chain.Set(tx, n.balances, from, n.balances[from]-1)
	chain.Set(tx, n.balances, to, n.balances[to]+1)
	return nil
}
