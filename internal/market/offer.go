package market

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

// Offer escrows price from the caller as a standing bid on an asset. Offers
// coexist with any listing and are numbered per lot from zero.
func (s *Store) Offer(tx domain.Tx, collection common.Address, id, price *uint256.Int) (domain.Event, error) {
	exit, err := s.enter()
	if err != nil {
		return domain.Event{}, err
	}
	defer exit()

	key := domain.NewLotKey(collection, id)
	if price.IsZero() {
		return domain.Event{}, fmt.Errorf("market: offer %s: %w: price must be positive", key, domain.ErrInvalidAmount)
	}
	if _, err := s.escrow.OwnerOf(collection, id); err != nil {
		return domain.Event{}, fmt.Errorf("market: offer %s: %w", key, err)
	}

	buyer := tx.Sender()
	l := s.lot(tx, key)
	offerID := uint64(len(l.offers))
	l.appendOffer(tx, domain.Offer{ID: offerID, Buyer: buyer, Price: *price, Open: true})

	if err := s.escrow.PullCurrency(tx, buyer, price); err != nil {
		return domain.Event{}, fmt.Errorf("market: offer %s: %w", key, err)
	}

	s.logger.Info("offer placed",
		slog.String("lot", key.String()),
		slog.Uint64("offer_id", offerID),
		slog.String("buyer", buyer.Hex()),
		slog.String("price", price.Dec()),
	)
	evt := newEvent(tx, domain.EventOffer, key, buyer)
	evt.OfferID = &offerID
	evt.Amount = *price
	return evt, nil
}

// CancelOffer closes the caller's open offer and refunds it.
func (s *Store) CancelOffer(tx domain.Tx, collection common.Address, id *uint256.Int, offerID uint64) (domain.Event, error) {
	exit, err := s.enter()
	if err != nil {
		return domain.Event{}, err
	}
	defer exit()

	key := domain.NewLotKey(collection, id)
	l, o, err := s.openOffer(key, offerID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("market: cancel offer %s: %w", key, err)
	}
	if o.Buyer != tx.Sender() {
		return domain.Event{}, fmt.Errorf("market: cancel offer %s: %w: caller is not the buyer", key, domain.ErrUnauthorized)
	}

	l.closeOffer(tx, int(offerID))
	if err := s.escrow.PushCurrency(tx, o.Buyer, &o.Price); err != nil {
		return domain.Event{}, fmt.Errorf("market: cancel offer %s: %w", key, err)
	}

	s.logger.Info("offer cancelled", slog.String("lot", key.String()), slog.Uint64("offer_id", offerID))
	evt := newEvent(tx, domain.EventCancelOffer, key, o.Buyer)
	evt.OfferID = &offerID
	evt.Amount = o.Price
	return evt, nil
}

// AcceptOffer sells the asset to an open offer. The caller must be the
// effective owner: the seller while a sale or an unbid auction holds the asset,
// otherwise the ledger owner, who must have approved the custody address.
// Accepting ends any sale or unbid auction on the lot.
func (s *Store) AcceptOffer(tx domain.Tx, collection common.Address, id *uint256.Int, offerID uint64) (domain.Event, error) {
	exit, err := s.enter()
	if err != nil {
		return domain.Event{}, err
	}
	defer exit()

	key := domain.NewLotKey(collection, id)
	l, o, err := s.openOffer(key, offerID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("market: accept offer %s: %w", key, err)
	}
	if l.auction != nil && l.auction.HasBid() {
		return domain.Event{}, fmt.Errorf("market: accept offer %s: %w: auction has a bid", key, domain.ErrInvalidState)
	}

	seller, escrowed, err := s.effectiveOwner(key, l)
	if err != nil {
		return domain.Event{}, fmt.Errorf("market: accept offer %s: %w", key, err)
	}
	if seller != tx.Sender() {
		return domain.Event{}, fmt.Errorf("market: accept offer %s: %w: caller is not the owner", key, domain.ErrUnauthorized)
	}

	l.closeOffer(tx, int(offerID))
	l.setSale(tx, nil)
	l.setAuction(tx, nil)

	split, err := s.fees.Settle(tx, seller, &o.Price, s.rates[collection])
	if err != nil {
		return domain.Event{}, fmt.Errorf("market: accept offer %s: %w", key, err)
	}
	if escrowed {
		err = s.escrow.PushAsset(tx, collection, o.Buyer, id)
	} else {
		err = s.escrow.TransferAsset(tx, collection, seller, o.Buyer, id)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("market: accept offer %s: %w", key, err)
	}

	s.logger.Info("offer accepted",
		slog.String("lot", key.String()),
		slog.Uint64("offer_id", offerID),
		slog.String("buyer", o.Buyer.Hex()),
		slog.String("price", o.Price.Dec()),
		slog.String("seller_proceeds", split.Seller.Dec()),
	)
	evt := newEvent(tx, domain.EventAcceptOffer, key, seller)
	evt.OfferID = &offerID
	evt.Amount = o.Price
	return evt, nil
}

func (s *Store) openOffer(key domain.LotKey, offerID uint64) (*lot, domain.Offer, error) {
	l := s.lots[key]
	if l == nil || offerID >= uint64(len(l.offers)) {
		return nil, domain.Offer{}, fmt.Errorf("%w: unknown offer %d", domain.ErrInvalidState, offerID)
	}
	o := l.offers[offerID]
	if !o.Open {
		return nil, domain.Offer{}, fmt.Errorf("%w: offer %d is closed", domain.ErrInvalidState, offerID)
	}
	return l, o, nil
}

// effectiveOwner reports who may accept offers on l and whether the asset is
// currently in custody.
func (s *Store) effectiveOwner(key domain.LotKey, l *lot) (common.Address, bool, error) {
	switch {
	case l.sale != nil:
		return l.sale.Seller, true, nil
	case l.auction != nil:
		return l.auction.Seller, true, nil
	}
	owner, err := s.escrow.OwnerOf(key.Collection, &key.ID)
	if err != nil {
		return common.Address{}, false, err
	}
	return owner, false, nil
}
