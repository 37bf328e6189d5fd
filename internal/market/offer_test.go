package market_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/world"
)

func TestOfferAcceptedByLedgerOwner(t *testing.T) {
	e := newEnv(t)
	id := e.mint(seller)

	evt, err := e.offer(buyer, id, 500)
	require.NoError(t, err)
	assert.Equal(t, []string{collection.Hex(), "0", "0", buyer.Hex(), "500"}, evt.Args())
	assert.Equal(t, uint64(500), e.balance(world.DevStore))
	assert.Equal(t, uint64(startingBalance-500), e.balance(buyer))

	evt, err = e.acceptOffer(seller, id, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{collection.Hex(), "0", "0", seller.Hex()}, evt.Args())
	assert.Equal(t, buyer, e.ownerOf(id))
	assert.Equal(t, uint64(startingBalance+500), e.balance(seller))
	assert.Zero(t, e.balance(world.DevStore))

	view := e.lot(id)
	require.Len(t, view.Offers, 1)
	assert.False(t, view.Offers[0].Open)

	_, err = e.acceptOffer(seller, id, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = e.cancelOffer(buyer, id, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestOfferIDsAreSequentialPerLot(t *testing.T) {
	e := newEnv(t)
	a := e.mint(seller)
	b := e.mint(seller)

	steps := []struct {
		id   *uint256.Int
		from common.Address
		want uint64
	}{
		{a, buyer, 0},
		{a, bidder1, 1},
		{b, bidder2, 0},
		{a, buyer, 2},
	}
	for _, s := range steps {
		evt, err := e.offer(s.from, s.id, 10)
		require.NoError(t, err)
		require.NotNil(t, evt.OfferID)
		assert.Equal(t, s.want, *evt.OfferID)
	}
	assert.Len(t, e.lot(a).Offers, 3)
	assert.Len(t, e.lot(b).Offers, 1)
}

func TestOfferValidation(t *testing.T) {
	e := newEnv(t)
	id := e.mint(seller)

	_, err := e.offer(buyer, id, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.offer(buyer, uint256.NewInt(99), 10)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = e.offer(pauper, id, 10)
	assert.ErrorIs(t, err, domain.ErrTransferFailure)
	assert.Empty(t, e.lot(id).Offers)

	_, err = e.acceptOffer(seller, id, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCancelOffer(t *testing.T) {
	e := newEnv(t)
	id := e.mint(seller)
	_, err := e.offer(buyer, id, 700)
	require.NoError(t, err)

	_, err = e.cancelOffer(bidder1, id, 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	evt, err := e.cancelOffer(buyer, id, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{collection.Hex(), "0", "0", buyer.Hex()}, evt.Args())
	assert.Equal(t, uint64(startingBalance), e.balance(buyer))

	_, err = e.cancelOffer(buyer, id, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = e.acceptOffer(seller, id, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestAcceptOfferRequiresOwner(t *testing.T) {
	e := newEnv(t)
	id := e.mint(seller)
	_, err := e.offer(buyer, id, 100)
	require.NoError(t, err)

	_, err = e.acceptOffer(bidder1, id, 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.True(t, e.lot(id).Offers[0].Open)
}

func TestAcceptOfferEndsSale(t *testing.T) {
	e := newEnv(t)
	e.setFees(1_000, 0)
	id := e.mint(seller)
	_, err := e.sell(seller, id, 5_000)
	require.NoError(t, err)
	_, err = e.offer(buyer, id, 3_000)
	require.NoError(t, err)

	_, err = e.acceptOffer(seller, id, 0)
	require.NoError(t, err)
	assert.Nil(t, e.lot(id).Sale)
	assert.Equal(t, buyer, e.ownerOf(id))
	assert.Equal(t, uint64(startingBalance+2_700), e.balance(seller))
	owner := e.w.OwnerVault.Holdings()
	assert.Equal(t, uint64(300), owner.Uint64())

	_, err = e.buy(bidder1, id)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestAcceptOfferOnAuction(t *testing.T) {
	e := newEnv(t)
	id := e.mint(seller)
	_, err := e.auction(seller, id, 100, e.height()+20)
	require.NoError(t, err)
	_, err = e.offer(buyer, id, 80)
	require.NoError(t, err)

	_, err = e.bid(bidder1, id, 100)
	require.NoError(t, err)
	_, err = e.acceptOffer(seller, id, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	other := e.mint(seller)
	_, err = e.auction(seller, other, 100, e.height()+20)
	require.NoError(t, err)
	_, err = e.offer(buyer, other, 80)
	require.NoError(t, err)
	_, err = e.acceptOffer(seller, other, 0)
	require.NoError(t, err)
	assert.Nil(t, e.lot(other).Auction)
	assert.Equal(t, buyer, e.ownerOf(other))
}

func TestCompetingOffersLoserCancels(t *testing.T) {
	e := newEnv(t)
	id := e.mint(seller)

	_, err := e.offer(buyer, id, 10)
	require.NoError(t, err)
	_, err = e.offer(bidder1, id, 12)
	require.NoError(t, err)
	assert.Equal(t, uint64(22), e.balance(world.DevStore))

	_, err = e.acceptOffer(seller, id, 1)
	require.NoError(t, err)
	assert.Equal(t, bidder1, e.ownerOf(id))
	assert.Equal(t, uint64(startingBalance+12), e.balance(seller))
	assert.Equal(t, uint64(10), e.balance(world.DevStore))

	// the losing offer stays open until its buyer withdraws it
	view := e.lot(id)
	require.Len(t, view.Offers, 2)
	assert.True(t, view.Offers[0].Open)
	assert.False(t, view.Offers[1].Open)

	_, err = e.cancelOffer(buyer, id, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(startingBalance), e.balance(buyer))
	assert.Zero(t, e.balance(world.DevStore))
}
