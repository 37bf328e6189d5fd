package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind names a store event.
type EventKind string

const (
	EventSell          EventKind = "Sell"
	EventBuy           EventKind = "Buy"
	EventCancelSale    EventKind = "CancelSale"
	EventOffer         EventKind = "Offer"
	EventAcceptOffer   EventKind = "AcceptOffer"
	EventCancelOffer   EventKind = "CancelOffer"
	EventAuction       EventKind = "Auction"
	EventBid           EventKind = "Bid"
	EventClaim         EventKind = "Claim"
	EventCancelAuction EventKind = "CancelAuction"
	EventSetFees       EventKind = "SetFees"
)

// Event is emitted once per successful store operation.
//
// Actor is the seller, buyer, bidder or winner depending on Kind. Amount carries
// the price, start price, bid or claimed amount. OfferID is set only for offer
// events and Fees only for SetFees.
type Event struct {
	ID         string
	Kind       EventKind
	Collection common.Address
	TokenID    uint256.Int
	Actor      common.Address
	OfferID    *uint64
	Amount     uint256.Int
	EndHeight  uint64
	Fees       *FeeConfig
	Height     uint64
	BlockTime  uint64
	CreatedAt  time.Time
}

// Lot returns the key of the lot the event refers to.
func (e Event) Lot() LotKey {
	return LotKey{Collection: e.Collection, ID: e.TokenID}
}

// Args returns the event arguments in their canonical order, rendered as strings.
func (e Event) Args() []string {
	coll := e.Collection.Hex()
	id := e.TokenID.Dec()
	actor := e.Actor.Hex()
	amount := e.Amount.Dec()
	offer := ""
	if e.OfferID != nil {
		offer = strconv.FormatUint(*e.OfferID, 10)
	}

	switch e.Kind {
	case EventSell, EventBuy, EventBid, EventClaim:
		return []string{coll, id, actor, amount}
	case EventCancelSale, EventCancelAuction:
		return []string{coll, id, actor}
	case EventOffer:
		return []string{coll, id, offer, actor, amount}
	case EventAcceptOffer, EventCancelOffer:
		return []string{coll, id, offer, actor}
	case EventAuction:
		return []string{coll, id, actor, amount, strconv.FormatUint(e.EndHeight, 10)}
	case EventSetFees:
		var f FeeConfig
		if e.Fees != nil {
			f = *e.Fees
		}
		return []string{coll, strconv.Itoa(int(f.OwnerFeeBps)), strconv.Itoa(int(f.StakingFeeBps))}
	default:
		return nil
	}
}

type eventJSON struct {
	ID            string    `json:"id,omitempty"`
	Kind          EventKind `json:"kind"`
	Collection    string    `json:"collection"`
	TokenID       string    `json:"token_id"`
	Actor         string    `json:"actor"`
	OfferID       *uint64   `json:"offer_id,omitempty"`
	Amount        string    `json:"amount"`
	EndHeight     uint64    `json:"end_height,omitempty"`
	OwnerFeeBps   *uint16   `json:"owner_fee_bps,omitempty"`
	StakingFeeBps *uint16   `json:"staking_fee_bps,omitempty"`
	Height        uint64    `json:"height"`
	BlockTime     uint64    `json:"block_time"`
	Args          []string  `json:"args"`
	CreatedAt     time.Time `json:"created_at"`
}

// MarshalJSON renders addresses as checksummed hex and amounts as decimal strings.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		ID:         e.ID,
		Kind:       e.Kind,
		Collection: e.Collection.Hex(),
		TokenID:    e.TokenID.Dec(),
		Actor:      e.Actor.Hex(),
		OfferID:    e.OfferID,
		Amount:     e.Amount.Dec(),
		EndHeight:  e.EndHeight,
		Height:     e.Height,
		BlockTime:  e.BlockTime,
		Args:       e.Args(),
		CreatedAt:  e.CreatedAt,
	}
	if e.Fees != nil {
		out.OwnerFeeBps = &e.Fees.OwnerFeeBps
		out.StakingFeeBps = &e.Fees.StakingFeeBps
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	id, err := uint256.FromDecimal(in.TokenID)
	if err != nil {
		return err
	}
	amount, err := uint256.FromDecimal(in.Amount)
	if err != nil {
		return err
	}
	*e = Event{
		ID:         in.ID,
		Kind:       in.Kind,
		Collection: common.HexToAddress(in.Collection),
		TokenID:    *id,
		Actor:      common.HexToAddress(in.Actor),
		OfferID:    in.OfferID,
		Amount:     *amount,
		EndHeight:  in.EndHeight,
		Height:     in.Height,
		BlockTime:  in.BlockTime,
		CreatedAt:  in.CreatedAt,
	}
	if in.OwnerFeeBps != nil && in.StakingFeeBps != nil {
		e.Fees = &FeeConfig{OwnerFeeBps: *in.OwnerFeeBps, StakingFeeBps: *in.StakingFeeBps}
	}
	return nil
}
