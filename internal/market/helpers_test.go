package market_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/world"
)

var (
	admin   = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	seller  = common.HexToAddress("0x0000000000000000000000000000000000005e11")
	buyer   = common.HexToAddress("0x000000000000000000000000000000000000b001")
	bidder1 = common.HexToAddress("0x000000000000000000000000000000000000b1d1")
	bidder2 = common.HexToAddress("0x000000000000000000000000000000000000b1d2")
	pauper  = common.HexToAddress("0x0000000000000000000000000000000000000bad")

	collection = world.DevCollection
)

const startingBalance = 1_000_000

type env struct {
	t   *testing.T
	ctx context.Context
	w   *world.World
}

func newEnv(t *testing.T) *env {
	t.Helper()
	w, err := world.New(world.DevConfig(admin), nil)
	require.NoError(t, err)
	e := &env{t: t, ctx: context.Background(), w: w}
	require.NoError(t, w.Fund(e.ctx, uint256.NewInt(startingBalance), seller, buyer, bidder1, bidder2))
	return e
}

// do executes one store operation from sender.
func (e *env) do(sender common.Address, op func(tx domain.Tx) (domain.Event, error)) (domain.Event, error) {
	e.t.Helper()
	var evt domain.Event
	_, err := e.w.Exec(e.ctx, sender, func(tx domain.Tx) error {
		var err error
		evt, err = op(tx)
		return err
	})
	return evt, err
}

func (e *env) mint(owner common.Address) *uint256.Int {
	e.t.Helper()
	id, err := e.w.MintAsset(e.ctx, collection, owner, true)
	require.NoError(e.t, err)
	return &id
}

func (e *env) ownerOf(id *uint256.Int) common.Address {
	e.t.Helper()
	owner, err := e.w.Escrow.OwnerOf(collection, id)
	require.NoError(e.t, err)
	return owner
}

func (e *env) balance(acct common.Address) uint64 {
	b := e.w.Currency.BalanceOf(acct)
	return b.Uint64()
}

func (e *env) height() uint64 {
	return e.w.Chain.Head().Height
}

func (e *env) lot(id *uint256.Int) domain.LotView {
	return e.w.Market.Lot(domain.NewLotKey(collection, id))
}

func (e *env) setFees(ownerBps, stakingBps uint16) {
	e.t.Helper()
	_, err := e.do(admin, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.SetFees(tx, collection, domain.FeeConfig{OwnerFeeBps: ownerBps, StakingFeeBps: stakingBps})
	})
	require.NoError(e.t, err)
}

func (e *env) sell(from common.Address, id *uint256.Int, price uint64) (domain.Event, error) {
	return e.do(from, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.Sell(tx, collection, id, uint256.NewInt(price))
	})
}

func (e *env) buy(from common.Address, id *uint256.Int) (domain.Event, error) {
	return e.do(from, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.Buy(tx, collection, id)
	})
}

func (e *env) cancelSale(from common.Address, id *uint256.Int) (domain.Event, error) {
	return e.do(from, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.CancelSale(tx, collection, id)
	})
}

func (e *env) offer(from common.Address, id *uint256.Int, price uint64) (domain.Event, error) {
	return e.do(from, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.Offer(tx, collection, id, uint256.NewInt(price))
	})
}

func (e *env) acceptOffer(from common.Address, id *uint256.Int, offerID uint64) (domain.Event, error) {
	return e.do(from, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.AcceptOffer(tx, collection, id, offerID)
	})
}

func (e *env) cancelOffer(from common.Address, id *uint256.Int, offerID uint64) (domain.Event, error) {
	return e.do(from, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.CancelOffer(tx, collection, id, offerID)
	})
}

func (e *env) auction(from common.Address, id *uint256.Int, start, endHeight uint64) (domain.Event, error) {
	return e.do(from, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.Auction(tx, collection, id, uint256.NewInt(start), endHeight)
	})
}

func (e *env) bid(from common.Address, id *uint256.Int, amount uint64) (domain.Event, error) {
	return e.do(from, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.Bid(tx, collection, id, uint256.NewInt(amount))
	})
}

func (e *env) cancelAuction(from common.Address, id *uint256.Int) (domain.Event, error) {
	return e.do(from, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.CancelAuction(tx, collection, id)
	})
}

func (e *env) claim(from common.Address, id *uint256.Int) (domain.Event, error) {
	return e.do(from, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.Claim(tx, collection, id)
	})
}
