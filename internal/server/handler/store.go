package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/chain"
	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/market"
)

// StoreService defines the methods that the store handler requires from the
// service layer.
type StoreService interface {
	Sell(ctx context.Context, from, collection common.Address, id, price *uint256.Int) (domain.Event, error)
	SellWithPermit(ctx context.Context, from, collection common.Address, id, price *uint256.Int, p market.Permit) (domain.Event, error)
	CancelSale(ctx context.Context, from, collection common.Address, id *uint256.Int) (domain.Event, error)
	Buy(ctx context.Context, from, collection common.Address, id *uint256.Int) (domain.Event, error)
	Offer(ctx context.Context, from, collection common.Address, id, price *uint256.Int) (domain.Event, error)
	CancelOffer(ctx context.Context, from, collection common.Address, id *uint256.Int, offerID uint64) (domain.Event, error)
	AcceptOffer(ctx context.Context, from, collection common.Address, id *uint256.Int, offerID uint64) (domain.Event, error)
	Auction(ctx context.Context, from, collection common.Address, id, startPrice *uint256.Int, endHeight uint64) (domain.Event, error)
	AuctionWithPermit(ctx context.Context, from, collection common.Address, id, startPrice *uint256.Int, endHeight uint64, p market.Permit) (domain.Event, error)
	Bid(ctx context.Context, from, collection common.Address, id, amount *uint256.Int) (domain.Event, error)
	CancelAuction(ctx context.Context, from, collection common.Address, id *uint256.Int) (domain.Event, error)
	Claim(ctx context.Context, from, collection common.Address, id *uint256.Int) (domain.Event, error)
	SetFees(ctx context.Context, from, collection common.Address, cfg domain.FeeConfig) (domain.Event, error)
	ClaimVault(ctx context.Context, from common.Address, name string) (chain.Block, error)
	Lot(key domain.LotKey) domain.LotView
	Fees(collection common.Address) domain.FeeConfig
	Events(ctx context.Context, key domain.LotKey, opts domain.ListOpts) ([]domain.Event, error)
	RecentEvents(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error)
}

// StoreHandler serves the sale, offer, auction and fee endpoints.
type StoreHandler struct {
	store  StoreService
	logger *slog.Logger
}

// NewStoreHandler creates a StoreHandler with the given service and logger.
func NewStoreHandler(store StoreService, logger *slog.Logger) *StoreHandler {
	return &StoreHandler{store: store, logger: logHandler(logger, "store")}
}

// permitJSON carries an optional asset permit.
type permitJSON struct {
	Deadline  string `json:"deadline"`
	Signature string `json:"signature"`
}

func (p *permitJSON) parse() (market.Permit, error) {
	deadline, err := parseUint256("permit.deadline", p.Deadline)
	if err != nil {
		return market.Permit{}, err
	}
	sig, err := parseSignature("permit.signature", p.Signature)
	if err != nil {
		return market.Permit{}, err
	}
	return market.Permit{Deadline: *deadline, Signature: sig}, nil
}

// fromRequest is the body of operations that take no other argument.
type fromRequest struct {
	From string `json:"from"`
}

type priceRequest struct {
	From   string      `json:"from"`
	Price  string      `json:"price"`
	Permit *permitJSON `json:"permit,omitempty"`
}

type auctionRequest struct {
	From       string      `json:"from"`
	StartPrice string      `json:"start_price"`
	EndHeight  uint64      `json:"end_height"`
	Permit     *permitJSON `json:"permit,omitempty"`
}

type bidRequest struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type feesRequest struct {
	From          string `json:"from"`
	OwnerFeeBps   uint16 `json:"owner_fee_bps"`
	StakingFeeBps uint16 `json:"staking_fee_bps"`
}

type lotCall struct {
	collection common.Address
	id         *uint256.Int
	from       common.Address
}

// readLotCall decodes the body into req and resolves the lot and the sender.
// It writes the error response itself and reports false on failure.
func readLotCall(w http.ResponseWriter, r *http.Request, req any, from func() string) (lotCall, bool) {
	collection, id, err := parseLot(r)
	if err != nil {
		badRequest(w, err)
		return lotCall{}, false
	}
	if err := decodeJSON(w, r, req); err != nil {
		badRequest(w, err)
		return lotCall{}, false
	}
	sender, err := parseAddress("from", from())
	if err != nil {
		badRequest(w, err)
		return lotCall{}, false
	}
	return lotCall{collection: collection, id: id, from: sender}, true
}

func (h *StoreHandler) respond(w http.ResponseWriter, r *http.Request, evt domain.Event, err error) {
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

// GetLot returns the sale, auction and offers recorded for a lot.
// GET /v1/lots/{collection}/{id}
func (h *StoreHandler) GetLot(w http.ResponseWriter, r *http.Request) {
	collection, id, err := parseLot(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLotResponse(h.store.Lot(domain.NewLotKey(collection, id))))
}

// ListLotEvents returns persisted events of one lot, newest first.
// GET /v1/lots/{collection}/{id}/events?limit=50&offset=0
func (h *StoreHandler) ListLotEvents(w http.ResponseWriter, r *http.Request) {
	collection, id, err := parseLot(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	events, err := h.store.Events(r.Context(), domain.NewLotKey(collection, id), parseListOpts(r))
	h.writeEvents(w, r, events, err)
}

// ListRecentEvents returns the newest persisted events across all lots.
// GET /v1/events?limit=50&offset=0
func (h *StoreHandler) ListRecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.RecentEvents(r.Context(), parseListOpts(r))
	h.writeEvents(w, r, events, err)
}

func (h *StoreHandler) writeEvents(w http.ResponseWriter, r *http.Request, events []domain.Event, err error) {
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// Sell lists a lot at a fixed price, optionally authorised by a permit.
// POST /v1/lots/{collection}/{id}/sale
func (h *StoreHandler) Sell(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	call, ok := readLotCall(w, r, &req, func() string { return req.From })
	if !ok {
		return
	}
	price, err := parseUint256("price", req.Price)
	if err != nil {
		badRequest(w, err)
		return
	}
	if req.Permit != nil {
		p, err := req.Permit.parse()
		if err != nil {
			badRequest(w, err)
			return
		}
		evt, err := h.store.SellWithPermit(r.Context(), call.from, call.collection, call.id, price, p)
		h.respond(w, r, evt, err)
		return
	}
	evt, err := h.store.Sell(r.Context(), call.from, call.collection, call.id, price)
	h.respond(w, r, evt, err)
}

// CancelSale withdraws a sale.
// POST /v1/lots/{collection}/{id}/sale/cancel
func (h *StoreHandler) CancelSale(w http.ResponseWriter, r *http.Request) {
	var req fromRequest
	call, ok := readLotCall(w, r, &req, func() string { return req.From })
	if !ok {
		return
	}
	evt, err := h.store.CancelSale(r.Context(), call.from, call.collection, call.id)
	h.respond(w, r, evt, err)
}

// Buy settles a sale at its listed price.
// POST /v1/lots/{collection}/{id}/buy
func (h *StoreHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req fromRequest
	call, ok := readLotCall(w, r, &req, func() string { return req.From })
	if !ok {
		return
	}
	evt, err := h.store.Buy(r.Context(), call.from, call.collection, call.id)
	h.respond(w, r, evt, err)
}

// MakeOffer escrows a standing offer.
// POST /v1/lots/{collection}/{id}/offers
func (h *StoreHandler) MakeOffer(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	call, ok := readLotCall(w, r, &req, func() string { return req.From })
	if !ok {
		return
	}
	price, err := parseUint256("price", req.Price)
	if err != nil {
		badRequest(w, err)
		return
	}
	evt, err := h.store.Offer(r.Context(), call.from, call.collection, call.id, price)
	h.respond(w, r, evt, err)
}

func parseOfferID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("offer"), 10, 64)
}

// CancelOffer refunds an open offer to its buyer.
// POST /v1/lots/{collection}/{id}/offers/{offer}/cancel
func (h *StoreHandler) CancelOffer(w http.ResponseWriter, r *http.Request) {
	offerID, err := parseOfferID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "offer: invalid offer id")
		return
	}
	var req fromRequest
	call, ok := readLotCall(w, r, &req, func() string { return req.From })
	if !ok {
		return
	}
	evt, err := h.store.CancelOffer(r.Context(), call.from, call.collection, call.id, offerID)
	h.respond(w, r, evt, err)
}

// AcceptOffer settles an open offer with the lot's owner.
// POST /v1/lots/{collection}/{id}/offers/{offer}/accept
func (h *StoreHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	offerID, err := parseOfferID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "offer: invalid offer id")
		return
	}
	var req fromRequest
	call, ok := readLotCall(w, r, &req, func() string { return req.From })
	if !ok {
		return
	}
	evt, err := h.store.AcceptOffer(r.Context(), call.from, call.collection, call.id, offerID)
	h.respond(w, r, evt, err)
}

// StartAuction opens an English auction, optionally authorised by a permit.
// POST /v1/lots/{collection}/{id}/auction
func (h *StoreHandler) StartAuction(w http.ResponseWriter, r *http.Request) {
	var req auctionRequest
	call, ok := readLotCall(w, r, &req, func() string { return req.From })
	if !ok {
		return
	}
	start, err := parseUint256("start_price", req.StartPrice)
	if err != nil {
		badRequest(w, err)
		return
	}
	if req.Permit != nil {
		p, err := req.Permit.parse()
		if err != nil {
			badRequest(w, err)
			return
		}
		evt, err := h.store.AuctionWithPermit(r.Context(), call.from, call.collection, call.id, start, req.EndHeight, p)
		h.respond(w, r, evt, err)
		return
	}
	evt, err := h.store.Auction(r.Context(), call.from, call.collection, call.id, start, req.EndHeight)
	h.respond(w, r, evt, err)
}

// Bid raises the highest bid of a running auction.
// POST /v1/lots/{collection}/{id}/auction/bid
func (h *StoreHandler) Bid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	call, ok := readLotCall(w, r, &req, func() string { return req.From })
	if !ok {
		return
	}
	amount, err := parseUint256("amount", req.Amount)
	if err != nil {
		badRequest(w, err)
		return
	}
	evt, err := h.store.Bid(r.Context(), call.from, call.collection, call.id, amount)
	h.respond(w, r, evt, err)
}

// CancelAuction withdraws an auction that has no bid.
// POST /v1/lots/{collection}/{id}/auction/cancel
func (h *StoreHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	var req fromRequest
	call, ok := readLotCall(w, r, &req, func() string { return req.From })
	if !ok {
		return
	}
	evt, err := h.store.CancelAuction(r.Context(), call.from, call.collection, call.id)
	h.respond(w, r, evt, err)
}

// Claim settles an ended auction.
// POST /v1/lots/{collection}/{id}/auction/claim
func (h *StoreHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req fromRequest
	call, ok := readLotCall(w, r, &req, func() string { return req.From })
	if !ok {
		return
	}
	evt, err := h.store.Claim(r.Context(), call.from, call.collection, call.id)
	h.respond(w, r, evt, err)
}

// GetFees returns the fee rates of a collection.
// GET /v1/fees/{collection}
func (h *StoreHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	collection, err := parseAddress("collection", r.PathValue("collection"))
	if err != nil {
		badRequest(w, err)
		return
	}
	cfg := h.store.Fees(collection)
	writeJSON(w, http.StatusOK, feesJSON{
		Collection:    collection.Hex(),
		OwnerFeeBps:   cfg.OwnerFeeBps,
		StakingFeeBps: cfg.StakingFeeBps,
	})
}

// SetFees replaces the fee rates of a collection. Admin only.
// PUT /v1/fees/{collection}
func (h *StoreHandler) SetFees(w http.ResponseWriter, r *http.Request) {
	collection, err := parseAddress("collection", r.PathValue("collection"))
	if err != nil {
		badRequest(w, err)
		return
	}
	var req feesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		badRequest(w, err)
		return
	}
	evt, err := h.store.SetFees(r.Context(), from, collection, domain.FeeConfig{
		OwnerFeeBps:   req.OwnerFeeBps,
		StakingFeeBps: req.StakingFeeBps,
	})
	h.respond(w, r, evt, err)
}

// ClaimVault pays a fee vault out to its beneficiary.
// POST /v1/vaults/{name}/claim
func (h *StoreHandler) ClaimVault(w http.ResponseWriter, r *http.Request) {
	var req fromRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		badRequest(w, err)
		return
	}
	blk, err := h.store.ClaimVault(r.Context(), from, r.PathValue("name"))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vault": r.PathValue("name"), "block": blk})
}
