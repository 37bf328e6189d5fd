package market_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/fee"
	"github.com/alanyoungcy/nftstore/internal/market"
	"github.com/alanyoungcy/nftstore/internal/world"
)

func TestSetFees(t *testing.T) {
	e := newEnv(t)

	_, err := e.do(seller, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.SetFees(tx, collection, domain.FeeConfig{OwnerFeeBps: 100})
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = e.do(admin, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.SetFees(tx, collection, domain.FeeConfig{OwnerFeeBps: 9_000, StakingFeeBps: 1_001})
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, domain.FeeConfig{}, e.w.Market.Fees(collection))

	evt, err := e.do(admin, func(tx domain.Tx) (domain.Event, error) {
		return e.w.Market.SetFees(tx, collection, domain.FeeConfig{OwnerFeeBps: 5_000, StakingFeeBps: 1_000})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{collection.Hex(), "5000", "1000"}, evt.Args())
	assert.Equal(t, domain.FeeConfig{OwnerFeeBps: 5_000, StakingFeeBps: 1_000}, e.w.Market.Fees(collection))
}

// totalCurrency sums the balances of every account the tests touch.
func totalCurrency(e *env) uint64 {
	var sum uint64
	for _, a := range []common.Address{
		admin, seller, buyer, bidder1, bidder2, pauper,
		world.DevStore, world.DevOwnerVault, world.DevStakingVault, world.DevStaker,
	} {
		sum += e.balance(a)
	}
	return sum
}

func TestCurrencyIsConserved(t *testing.T) {
	e := newEnv(t)
	e.setFees(1_234, 567)
	before := totalCurrency(e)

	a, b, c := e.mint(seller), e.mint(seller), e.mint(seller)

	_, err := e.sell(seller, a, 9_999)
	require.NoError(t, err)
	_, err = e.offer(bidder1, a, 777)
	require.NoError(t, err)
	_, err = e.buy(buyer, a)
	require.NoError(t, err)

	_, err = e.auction(seller, b, 10, e.height()+6)
	require.NoError(t, err)
	_, err = e.bid(bidder1, b, 10)
	require.NoError(t, err)
	_, err = e.bid(bidder2, b, 33)
	require.NoError(t, err)
	_, err = e.buy(pauper, b)
	assert.Error(t, err)
	e.w.Chain.Mine(6)
	_, err = e.claim(admin, b)
	require.NoError(t, err)

	_, err = e.offer(buyer, c, 4_321)
	require.NoError(t, err)
	_, err = e.acceptOffer(seller, c, 0)
	require.NoError(t, err)
	_, err = e.cancelOffer(bidder1, a, 0)
	require.NoError(t, err)

	assert.Equal(t, before, totalCurrency(e))
	assert.Zero(t, e.balance(world.DevStore))
}

func TestCustodyMatchesLotState(t *testing.T) {
	e := newEnv(t)
	ids := []*uint256.Int{e.mint(seller), e.mint(seller), e.mint(seller)}

	_, err := e.sell(seller, ids[0], 100)
	require.NoError(t, err)
	_, err = e.auction(seller, ids[1], 100, e.height()+5)
	require.NoError(t, err)

	for _, id := range ids {
		view := e.lot(id)
		inCustody := e.ownerOf(id) == world.DevStore
		assert.Equal(t, view.Sale != nil || view.Auction != nil, inCustody)
		assert.False(t, view.Sale != nil && view.Auction != nil)
	}
}

// reentrantSettler calls back into the store while a settlement is in flight.
type reentrantSettler struct {
	store *market.Store
	err   error
}

func (r *reentrantSettler) Settle(tx domain.Tx, _ common.Address, _ *uint256.Int, _ domain.FeeConfig) (fee.Split, error) {
	_, r.err = r.store.Buy(tx, collection, uint256.NewInt(0))
	return fee.Split{}, r.err
}

func TestReentrantCallRejected(t *testing.T) {
	e := newEnv(t)
	settler := &reentrantSettler{}
	store := market.New(admin, e.w.Escrow, settler, nil)
	settler.store = store

	id := e.mint(seller)
	_, err := e.do(seller, func(tx domain.Tx) (domain.Event, error) {
		return store.Sell(tx, collection, id, uint256.NewInt(100))
	})
	require.NoError(t, err)

	_, err = e.do(buyer, func(tx domain.Tx) (domain.Event, error) {
		return store.Buy(tx, collection, id)
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.ErrorIs(t, settler.err, domain.ErrInvalidState)
	assert.Contains(t, settler.err.Error(), "reentrant")

	view := store.Lot(domain.NewLotKey(collection, id))
	assert.NotNil(t, view.Sale)
	assert.Equal(t, uint64(startingBalance), e.balance(buyer))
}
