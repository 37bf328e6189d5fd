package market

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

// Auction opens an English auction that accepts bids until endHeight and takes
// the asset into custody.
func (s *Store) Auction(tx domain.Tx, collection common.Address, id, startPrice *uint256.Int, endHeight uint64) (domain.Event, error) {
	return s.auction(tx, collection, id, startPrice, endHeight, nil)
}

// AuctionWithPermit is Auction with a signed approval submitted in the same operation.
func (s *Store) AuctionWithPermit(tx domain.Tx, collection common.Address, id, startPrice *uint256.Int, endHeight uint64, p Permit) (domain.Event, error) {
	return s.auction(tx, collection, id, startPrice, endHeight, &p)
}

func (s *Store) auction(tx domain.Tx, collection common.Address, id, startPrice *uint256.Int, endHeight uint64, p *Permit) (domain.Event, error) {
	exit, err := s.enter()
	if err != nil {
		return domain.Event{}, err
	}
	defer exit()

	key := domain.NewLotKey(collection, id)
	if startPrice.IsZero() {
		return domain.Event{}, fmt.Errorf("market: auction %s: %w: start price must be positive", key, domain.ErrInvalidAmount)
	}
	if endHeight <= tx.Height() {
		return domain.Event{}, fmt.Errorf("market: auction %s: %w: end height %d not after %d", key, domain.ErrExpiredOrNotYetDue, endHeight, tx.Height())
	}
	l := s.lot(tx, key)
	if l.listed() {
		return domain.Event{}, fmt.Errorf("market: auction %s: %w: already listed", key, domain.ErrInvalidState)
	}
	if err := s.requireOwner(tx, key); err != nil {
		return domain.Event{}, fmt.Errorf("market: auction %s: %w", key, err)
	}

	seller := tx.Sender()
	l.setAuction(tx, &domain.Auction{Seller: seller, StartPrice: *startPrice, EndHeight: endHeight})

	if p != nil {
		if err := s.escrow.PermitAsset(tx, collection, seller, id, &p.Deadline, p.Signature); err != nil {
			return domain.Event{}, fmt.Errorf("market: auction %s: %w", key, err)
		}
	}
	if err := s.escrow.PullAsset(tx, collection, seller, id); err != nil {
		return domain.Event{}, fmt.Errorf("market: auction %s: %w", key, err)
	}

	s.logger.Info("auction opened",
		slog.String("lot", key.String()),
		slog.String("seller", seller.Hex()),
		slog.String("start_price", startPrice.Dec()),
		slog.Uint64("end_height", endHeight),
	)
	evt := newEvent(tx, domain.EventAuction, key, seller)
	evt.Amount = *startPrice
	evt.EndHeight = endHeight
	return evt, nil
}

// Bid escrows amount as the new highest bid and refunds the previous bidder.
// The first bid must be at least the start price; later bids must exceed the
// current highest bid.
func (s *Store) Bid(tx domain.Tx, collection common.Address, id, amount *uint256.Int) (domain.Event, error) {
	exit, err := s.enter()
	if err != nil {
		return domain.Event{}, err
	}
	defer exit()

	key := domain.NewLotKey(collection, id)
	l := s.lots[key]
	if l == nil || l.auction == nil {
		return domain.Event{}, fmt.Errorf("market: bid %s: %w: no auction", key, domain.ErrInvalidState)
	}
	prev := *l.auction
	if tx.Height() >= prev.EndHeight {
		return domain.Event{}, fmt.Errorf("market: bid %s: %w: auction ended at %d", key, domain.ErrExpiredOrNotYetDue, prev.EndHeight)
	}
	switch {
	case amount.IsZero():
		return domain.Event{}, fmt.Errorf("market: bid %s: %w: bid must be positive", key, domain.ErrInvalidAmount)
	case !prev.HasBid() && amount.Lt(&prev.StartPrice):
		return domain.Event{}, fmt.Errorf("market: bid %s: %w: %s below start price %s", key, domain.ErrInvalidAmount, amount.Dec(), prev.StartPrice.Dec())
	case prev.HasBid() && !amount.Gt(&prev.HighestBid):
		return domain.Event{}, fmt.Errorf("market: bid %s: %w: %s does not beat %s", key, domain.ErrInvalidAmount, amount.Dec(), prev.HighestBid.Dec())
	}

	bidder := tx.Sender()
	next := prev
	next.HighestBidder = bidder
	next.HighestBid = *amount
	l.setAuction(tx, &next)

	if err := s.escrow.PullCurrency(tx, bidder, amount); err != nil {
		return domain.Event{}, fmt.Errorf("market: bid %s: %w", key, err)
	}
	if prev.HasBid() {
		if err := s.escrow.PushCurrency(tx, prev.HighestBidder, &prev.HighestBid); err != nil {
			return domain.Event{}, fmt.Errorf("market: bid %s: refund: %w", key, err)
		}
	}

	s.logger.Info("bid placed",
		slog.String("lot", key.String()),
		slog.String("bidder", bidder.Hex()),
		slog.String("amount", amount.Dec()),
	)
	evt := newEvent(tx, domain.EventBid, key, bidder)
	evt.Amount = *amount
	return evt, nil
}

// CancelAuction withdraws an auction that has no bid and returns the asset.
func (s *Store) CancelAuction(tx domain.Tx, collection common.Address, id *uint256.Int) (domain.Event, error) {
	exit, err := s.enter()
	if err != nil {
		return domain.Event{}, err
	}
	defer exit()

	key := domain.NewLotKey(collection, id)
	l := s.lots[key]
	if l == nil || l.auction == nil {
		return domain.Event{}, fmt.Errorf("market: cancel auction %s: %w: no auction", key, domain.ErrInvalidState)
	}
	a := *l.auction
	if a.Seller != tx.Sender() {
		return domain.Event{}, fmt.Errorf("market: cancel auction %s: %w: caller is not the seller", key, domain.ErrUnauthorized)
	}
	if a.HasBid() {
		return domain.Event{}, fmt.Errorf("market: cancel auction %s: %w: auction has a bid", key, domain.ErrInvalidState)
	}

	l.setAuction(tx, nil)
	if err := s.escrow.PushAsset(tx, collection, a.Seller, id); err != nil {
		return domain.Event{}, fmt.Errorf("market: cancel auction %s: %w", key, err)
	}

	s.logger.Info("auction cancelled", slog.String("lot", key.String()))
	return newEvent(tx, domain.EventCancelAuction, key, a.Seller), nil
}

// Claim settles an ended auction. Anyone may call it. With a bid, the seller is
// paid through the fee router and the winner receives the asset; without one,
// the asset returns to the seller.
func (s *Store) Claim(tx domain.Tx, collection common.Address, id *uint256.Int) (domain.Event, error) {
	exit, err := s.enter()
	if err != nil {
		return domain.Event{}, err
	}
	defer exit()

	key := domain.NewLotKey(collection, id)
	l := s.lots[key]
	if l == nil || l.auction == nil {
		return domain.Event{}, fmt.Errorf("market: claim %s: %w: no auction", key, domain.ErrInvalidState)
	}
	a := *l.auction
	if tx.Height() < a.EndHeight {
		return domain.Event{}, fmt.Errorf("market: claim %s: %w: auction ends at %d", key, domain.ErrExpiredOrNotYetDue, a.EndHeight)
	}

	l.setAuction(tx, nil)

	if !a.HasBid() {
		if err := s.escrow.PushAsset(tx, collection, a.Seller, id); err != nil {
			return domain.Event{}, fmt.Errorf("market: claim %s: %w", key, err)
		}
		s.logger.Info("auction expired unbid", slog.String("lot", key.String()))
		return newEvent(tx, domain.EventClaim, key, a.Seller), nil
	}

	split, err := s.fees.Settle(tx, a.Seller, &a.HighestBid, s.rates[collection])
	if err != nil {
		return domain.Event{}, fmt.Errorf("market: claim %s: %w", key, err)
	}
	if err := s.escrow.PushAsset(tx, collection, a.HighestBidder, id); err != nil {
		return domain.Event{}, fmt.Errorf("market: claim %s: %w", key, err)
	}

	s.logger.Info("auction settled",
		slog.String("lot", key.String()),
		slog.String("winner", a.HighestBidder.Hex()),
		slog.String("amount", a.HighestBid.Dec()),
		slog.String("seller_proceeds", split.Seller.Dec()),
	)
	evt := newEvent(tx, domain.EventClaim, key, a.HighestBidder)
	evt.Amount = a.HighestBid
	return evt, nil
}
