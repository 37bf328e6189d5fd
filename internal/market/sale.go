package market

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

// Sell lists an asset the caller owns at a fixed price and takes it into custody.
// The caller must have approved the custody address.
func (s *Store) Sell(tx domain.Tx, collection common.Address, id, price *uint256.Int) (domain.Event, error) {
	return s.sell(tx, collection, id, price, nil)
}

// SellWithPermit is Sell with a signed approval submitted in the same operation.
func (s *Store) SellWithPermit(tx domain.Tx, collection common.Address, id, price *uint256.Int, p Permit) (domain.Event, error) {
	return s.sell(tx, collection, id, price, &p)
}

func (s *Store) sell(tx domain.Tx, collection common.Address, id, price *uint256.Int, p *Permit) (domain.Event, error) {
	exit, err := s.enter()
	if err != nil {
		return domain.Event{}, err
	}
	defer exit()

	key := domain.NewLotKey(collection, id)
	if price.IsZero() {
		return domain.Event{}, fmt.Errorf("market: sell %s: %w: price must be positive", key, domain.ErrInvalidAmount)
	}
	l := s.lot(tx, key)
	if l.listed() {
		return domain.Event{}, fmt.Errorf("market: sell %s: %w: already listed", key, domain.ErrInvalidState)
	}
	if err := s.requireOwner(tx, key); err != nil {
		return domain.Event{}, fmt.Errorf("market: sell %s: %w", key, err)
	}

	seller := tx.Sender()
	l.setSale(tx, &domain.Sale{Seller: seller, Price: *price})

	if p != nil {
		if err := s.escrow.PermitAsset(tx, collection, seller, id, &p.Deadline, p.Signature); err != nil {
			return domain.Event{}, fmt.Errorf("market: sell %s: %w", key, err)
		}
	}
	if err := s.escrow.PullAsset(tx, collection, seller, id); err != nil {
		return domain.Event{}, fmt.Errorf("market: sell %s: %w", key, err)
	}

	s.logger.Info("sale listed",
		slog.String("lot", key.String()),
		slog.String("seller", seller.Hex()),
		slog.String("price", price.Dec()),
	)
	evt := newEvent(tx, domain.EventSell, key, seller)
	evt.Amount = *price
	return evt, nil
}

// CancelSale withdraws the caller's listing and returns the asset.
func (s *Store) CancelSale(tx domain.Tx, collection common.Address, id *uint256.Int) (domain.Event, error) {
	exit, err := s.enter()
	if err != nil {
		return domain.Event{}, err
	}
	defer exit()

	key := domain.NewLotKey(collection, id)
	l := s.lots[key]
	if l == nil || l.sale == nil {
		return domain.Event{}, fmt.Errorf("market: cancel sale %s: %w: no sale", key, domain.ErrInvalidState)
	}
	sale := *l.sale
	if sale.Seller != tx.Sender() {
		return domain.Event{}, fmt.Errorf("market: cancel sale %s: %w: caller is not the seller", key, domain.ErrUnauthorized)
	}

	l.setSale(tx, nil)
	if err := s.escrow.PushAsset(tx, collection, sale.Seller, id); err != nil {
		return domain.Event{}, fmt.Errorf("market: cancel sale %s: %w", key, err)
	}

	s.logger.Info("sale cancelled", slog.String("lot", key.String()))
	return newEvent(tx, domain.EventCancelSale, key, sale.Seller), nil
}

// Buy pays the listed price and receives the asset.
func (s *Store) Buy(tx domain.Tx, collection common.Address, id *uint256.Int) (domain.Event, error) {
	exit, err := s.enter()
	if err != nil {
		return domain.Event{}, err
	}
	defer exit()

	key := domain.NewLotKey(collection, id)
	l := s.lots[key]
	if l == nil || l.sale == nil {
		return domain.Event{}, fmt.Errorf("market: buy %s: %w: no sale", key, domain.ErrInvalidState)
	}
	sale := *l.sale
	buyer := tx.Sender()

	l.setSale(tx, nil)
	if err := s.escrow.PullCurrency(tx, buyer, &sale.Price); err != nil {
		return domain.Event{}, fmt.Errorf("market: buy %s: %w", key, err)
	}
	split, err := s.fees.Settle(tx, sale.Seller, &sale.Price, s.rates[collection])
	if err != nil {
		return domain.Event{}, fmt.Errorf("market: buy %s: %w", key, err)
	}
	if err := s.escrow.PushAsset(tx, collection, buyer, id); err != nil {
		return domain.Event{}, fmt.Errorf("market: buy %s: %w", key, err)
	}

	s.logger.Info("sale settled",
		slog.String("lot", key.String()),
		slog.String("buyer", buyer.Hex()),
		slog.String("price", sale.Price.Dec()),
		slog.String("seller_proceeds", split.Seller.Dec()),
	)
	evt := newEvent(tx, domain.EventBuy, key, buyer)
	evt.Amount = sale.Price
	return evt, nil
}
