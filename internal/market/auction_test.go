package market_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/world"
)

func TestAuctionLifecycle(t *testing.T) {
	e := newEnv(t)
	e.setFees(500, 500)
	id := e.mint(seller)
	end := e.height() + 10

	evt, err := e.auction(seller, id, 100, end)
	require.NoError(t, err)
	assert.Equal(t, domain.EventAuction, evt.Kind)
	assert.Equal(t, uint64(100), evt.Amount.Uint64())
	assert.Equal(t, end, evt.EndHeight)
	assert.Equal(t, world.DevStore, e.ownerOf(id))

	_, err = e.bid(bidder1, id, 99)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// The first bid may equal the start price.
	_, err = e.bid(bidder1, id, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(startingBalance-100), e.balance(bidder1))

	_, err = e.bid(bidder2, id, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.bid(bidder2, id, 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(startingBalance), e.balance(bidder1))
	assert.Equal(t, uint64(startingBalance-150), e.balance(bidder2))
	assert.Equal(t, uint64(150), e.balance(world.DevStore))

	_, err = e.claim(buyer, id)
	assert.ErrorIs(t, err, domain.ErrExpiredOrNotYetDue)

	e.w.Chain.Mine(end - e.height())
	_, err = e.bid(bidder1, id, 500)
	assert.ErrorIs(t, err, domain.ErrExpiredOrNotYetDue)

	evt, err = e.claim(buyer, id)
	require.NoError(t, err)
	assert.Equal(t, []string{collection.Hex(), "0", bidder2.Hex(), "150"}, evt.Args())
	assert.Equal(t, bidder2, e.ownerOf(id))
	assert.Equal(t, uint64(startingBalance+136), e.balance(seller))
	assert.Zero(t, e.balance(world.DevStore))
	assert.Nil(t, e.lot(id).Auction)

	_, err = e.claim(buyer, id)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestAuctionEndHeightBoundary(t *testing.T) {
	e := newEnv(t)
	id := e.mint(seller)
	end := e.height() + 5
	_, err := e.auction(seller, id, 100, end)
	require.NoError(t, err)

	// each operation lands in the block after head
	e.w.Chain.Mine(end - 2 - e.height())
	evt, err := e.bid(bidder1, id, 100)
	require.NoError(t, err)
	assert.Equal(t, end-1, evt.Height)

	_, err = e.claim(buyer, id)
	assert.ErrorIs(t, err, domain.ErrExpiredOrNotYetDue)
	assert.Equal(t, end-1, e.height())

	_, err = e.bid(bidder2, id, 200)
	assert.ErrorIs(t, err, domain.ErrExpiredOrNotYetDue)
	assert.Equal(t, uint64(startingBalance), e.balance(bidder2))

	evt, err = e.claim(buyer, id)
	require.NoError(t, err)
	assert.Equal(t, end, evt.Height)
	assert.Equal(t, bidder1, e.ownerOf(id))
	assert.Equal(t, uint64(startingBalance+100), e.balance(seller))
}

func TestSelfOutbidRefundsPrevious(t *testing.T) {
	e := newEnv(t)
	id := e.mint(seller)
	_, err := e.auction(seller, id, 100, e.height()+10)
	require.NoError(t, err)

	_, err = e.bid(bidder1, id, 100)
	require.NoError(t, err)
	_, err = e.bid(bidder1, id, 300)
	require.NoError(t, err)
	assert.Equal(t, uint64(startingBalance-300), e.balance(bidder1))
	assert.Equal(t, uint64(300), e.balance(world.DevStore))
}

func TestAuctionValidation(t *testing.T) {
	e := newEnv(t)
	id := e.mint(seller)

	_, err := e.auction(seller, id, 100, e.height())
	assert.ErrorIs(t, err, domain.ErrExpiredOrNotYetDue)

	_, err = e.auction(seller, id, 0, e.height()+5)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.auction(buyer, id, 100, e.height()+5)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = e.bid(bidder1, id, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = e.auction(seller, id, 100, e.height()+5)
	require.NoError(t, err)
	_, err = e.sell(seller, id, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = e.bid(pauper, id, 100)
	assert.ErrorIs(t, err, domain.ErrTransferFailure)
	assert.False(t, e.lot(id).Auction.HasBid())
}

func TestCancelAuction(t *testing.T) {
	e := newEnv(t)
	id := e.mint(seller)
	_, err := e.auction(seller, id, 100, e.height()+10)
	require.NoError(t, err)

	_, err = e.cancelAuction(buyer, id)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	evt, err := e.cancelAuction(seller, id)
	require.NoError(t, err)
	assert.Equal(t, []string{collection.Hex(), "0", seller.Hex()}, evt.Args())
	assert.Equal(t, seller, e.ownerOf(id))

	_, err = e.auction(seller, id, 100, e.height()+10)
	require.NoError(t, err)
	_, err = e.bid(bidder1, id, 100)
	require.NoError(t, err)
	_, err = e.cancelAuction(seller, id)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestClaimWithoutBidReturnsAsset(t *testing.T) {
	e := newEnv(t)
	id := e.mint(seller)
	end := e.height() + 3
	_, err := e.auction(seller, id, 100, end)
	require.NoError(t, err)

	e.w.Chain.Mine(3)
	evt, err := e.claim(bidder1, id)
	require.NoError(t, err)
	assert.Equal(t, []string{collection.Hex(), "0", seller.Hex(), "0"}, evt.Args())
	assert.Equal(t, seller, e.ownerOf(id))
	assert.Equal(t, uint64(startingBalance), e.balance(seller))
}
