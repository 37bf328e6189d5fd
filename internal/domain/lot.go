package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MaxBps is the basis-point denominator used by fee configuration.
const MaxBps = 10_000

// LotKey identifies a single tradable asset: an asset contract and a token id.
type LotKey struct {
	Collection common.Address
	ID         uint256.Int
}

// NewLotKey builds a LotKey from a collection address and token id.
func NewLotKey(collection common.Address, id *uint256.Int) LotKey {
	return LotKey{Collection: collection, ID: *id}
}

func (k LotKey) String() string {
	return k.Collection.Hex() + "#" + k.ID.Dec()
}

// Sale is a fixed-price listing. The asset sits in custody while it exists.
type Sale struct {
	Seller common.Address
	Price  uint256.Int
}

// Offer is a standing bid for a lot, with its price held in custody while open.
type Offer struct {
	ID    uint64
	Buyer common.Address
	Price uint256.Int
	Open  bool
}

// Auction is an English auction that closes at EndHeight.
// The zero HighestBidder means no bid has been placed.
type Auction struct {
	Seller        common.Address
	StartPrice    uint256.Int
	EndHeight     uint64
	HighestBidder common.Address
	HighestBid    uint256.Int
}

// HasBid reports whether the auction holds an escrowed bid. The zero address
// can never hold currency (the token rejects it as a mint or transfer target),
// so it can never be a real bidder.
func (a Auction) HasBid() bool {
	return a.HighestBidder != (common.Address{})
}

// FeeConfig holds per-collection fee rates in basis points.
type FeeConfig struct {
	OwnerFeeBps   uint16
	StakingFeeBps uint16
}

// Validate checks that the combined fee rate does not exceed 100%.
func (c FeeConfig) Validate() error {
	if uint32(c.OwnerFeeBps)+uint32(c.StakingFeeBps) > MaxBps {
		return fmt.Errorf("%w: fees %d+%d bps exceed %d", ErrInvalidAmount, c.OwnerFeeBps, c.StakingFeeBps, MaxBps)
	}
	return nil
}

// LotView is a read-only snapshot of everything recorded for one lot.
type LotView struct {
	Key     LotKey
	Sale    *Sale
	Auction *Auction
	Offers  []Offer
}
