package handler

import (
	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/permit"
)

type saleJSON struct {
	Seller string `json:"seller"`
	Price  string `json:"price"`
}

type auctionJSON struct {
	Seller        string `json:"seller"`
	StartPrice    string `json:"start_price"`
	EndHeight     uint64 `json:"end_height"`
	HighestBidder string `json:"highest_bidder,omitempty"`
	HighestBid    string `json:"highest_bid"`
}

type offerJSON struct {
	ID    uint64 `json:"id"`
	Buyer string `json:"buyer"`
	Price string `json:"price"`
	Open  bool   `json:"open"`
}

type lotResponse struct {
	Collection string       `json:"collection"`
	TokenID    string       `json:"token_id"`
	Sale       *saleJSON    `json:"sale"`
	Auction    *auctionJSON `json:"auction"`
	Offers     []offerJSON  `json:"offers"`
}

func newLotResponse(v domain.LotView) lotResponse {
	out := lotResponse{
		Collection: v.Key.Collection.Hex(),
		TokenID:    v.Key.ID.Dec(),
		Offers:     make([]offerJSON, 0, len(v.Offers)),
	}
	if v.Sale != nil {
		out.Sale = &saleJSON{Seller: v.Sale.Seller.Hex(), Price: v.Sale.Price.Dec()}
	}
	if a := v.Auction; a != nil {
		out.Auction = &auctionJSON{
			Seller:     a.Seller.Hex(),
			StartPrice: a.StartPrice.Dec(),
			EndHeight:  a.EndHeight,
			HighestBid: a.HighestBid.Dec(),
		}
		if a.HasBid() {
			out.Auction.HighestBidder = a.HighestBidder.Hex()
		}
	}
	for _, o := range v.Offers {
		out.Offers = append(out.Offers, offerJSON{
			ID:    o.ID,
			Buyer: o.Buyer.Hex(),
			Price: o.Price.Dec(),
			Open:  o.Open,
		})
	}
	return out
}

type feesJSON struct {
	Collection    string `json:"collection"`
	OwnerFeeBps   uint16 `json:"owner_fee_bps"`
	StakingFeeBps uint16 `json:"staking_fee_bps"`
}

type domainJSON struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           uint64 `json:"chain_id"`
	VerifyingContract string `json:"verifying_contract"`
	Separator         string `json:"separator"`
}

func newDomainJSON(d permit.Domain) domainJSON {
	return domainJSON{
		Name:              d.Name,
		Version:           d.Version,
		ChainID:           d.ChainID,
		VerifyingContract: d.VerifyingContract.Hex(),
		Separator:         d.Separator().Hex(),
	}
}

type eventsResponse struct {
	Events []domain.Event `json:"events"`
}
