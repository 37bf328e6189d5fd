package market

import (
	"github.com/alanyoungcy/nftstore/internal/chain"
	"github.com/alanyoungcy/nftstore/internal/domain"
)

// lot holds the mutable record of one asset. Sale and auction are never both
// set. Records are replaced, never mutated in place, so undo can restore the
// previous pointer.
type lot struct {
	sale    *domain.Sale
	auction *domain.Auction
	offers  []domain.Offer
}

func (l *lot) listed() bool {
	return l.sale != nil || l.auction != nil
}

func (l *lot) setSale(j chain.Journal, sale *domain.Sale) {
	chain.Assign(j, &l.sale, sale)
}

func (l *lot) setAuction(j chain.Journal, a *domain.Auction) {
	chain.Assign(j, &l.auction, a)
}

func (l *lot) appendOffer(j chain.Journal, o domain.Offer) {
	n := len(l.offers)
	l.offers = append(l.offers, o)
	j.OnRevert(func() { l.offers = l.offers[:n] })
}

func (l *lot) closeOffer(j chain.Journal, i int) {
	prev := l.offers[i]
	l.offers[i].Open = false
	j.OnRevert(func() { l.offers[i] = prev })
}
