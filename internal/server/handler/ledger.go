package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/chain"
	"github.com/alanyoungcy/nftstore/internal/permit"
	"github.com/alanyoungcy/nftstore/internal/service"
)

// LedgerService defines the methods that the ledger handler requires from the
// service layer.
type LedgerService interface {
	Chain() service.ChainInfo
	Custody() common.Address
	Balances(owner common.Address) service.Balances
	OwnerOf(collection common.Address, id *uint256.Int) (common.Address, uint64, error)
	AssetDomain(collection common.Address) (permit.Domain, error)
	CurrencyDomain() permit.Domain
	Collections() []common.Address
	PermitCurrency(ctx context.Context, from, owner common.Address, value, deadline *uint256.Int, sig []byte) error
	MintCurrency(ctx context.Context, to common.Address, amount *uint256.Int) error
	MintAsset(ctx context.Context, collection, to common.Address, approve bool) (uint256.Int, error)
	ApproveStore(ctx context.Context, owner, collection common.Address) error
	Mine(n uint64) (chain.Block, error)
}

// LedgerHandler serves chain, balance, permit-domain and devnet endpoints.
type LedgerHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler with the given service and logger.
func NewLedgerHandler(ledger LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logHandler(logger, "ledger")}
}

// GetChain returns the chain id, head block and execution counters.
// GET /v1/chain
func (h *LedgerHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	info := h.ledger.Chain()
	writeJSON(w, http.StatusOK, map[string]any{
		"chain_id":    info.ChainID,
		"head":        info.Head,
		"stats":       info.Stats,
		"devnet":      info.Devnet,
		"store":       h.ledger.Custody().Hex(),
		"collections": addressStrings(h.ledger.Collections()),
	})
}

func addressStrings(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}

// GetAccount returns an account's currency balance, permit nonce and store
// allowance.
// GET /v1/accounts/{address}
func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		badRequest(w, err)
		return
	}
	b := h.ledger.Balances(owner)
	writeJSON(w, http.StatusOK, map[string]any{
		"address":         owner.Hex(),
		"currency":        b.Currency.Dec(),
		"currency_nonce":  b.CurrencyNonce,
		"store_allowance": b.StoreAllowance.Dec(),
	})
}

// GetAsset returns an asset's ledger owner and next permit nonce.
// GET /v1/assets/{collection}/{id}
func (h *LedgerHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	collection, id, err := parseLot(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	owner, nonce, err := h.ledger.OwnerOf(collection, id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection":   collection.Hex(),
		"token_id":     id.Dec(),
		"owner":        owner.Hex(),
		"permit_nonce": nonce,
	})
}

// GetAssetDomain returns the EIP-712 domain asset permits are signed under.
// GET /v1/domains/assets/{collection}
func (h *LedgerHandler) GetAssetDomain(w http.ResponseWriter, r *http.Request) {
	collection, err := parseAddress("collection", r.PathValue("collection"))
	if err != nil {
		badRequest(w, err)
		return
	}
	d, err := h.ledger.AssetDomain(collection)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDomainJSON(d))
}

// GetCurrencyDomain returns the EIP-712 domain of the currency.
// GET /v1/domains/currency
func (h *LedgerHandler) GetCurrencyDomain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newDomainJSON(h.ledger.CurrencyDomain()))
}

type currencyPermitRequest struct {
	From      string `json:"from"`
	Owner     string `json:"owner"`
	Value     string `json:"value"`
	Deadline  string `json:"deadline"`
	Signature string `json:"signature"`
}

// PermitCurrency submits an EIP-2612 permit granting the store an allowance.
// POST /v1/currency/permit
func (h *LedgerHandler) PermitCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyPermitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		badRequest(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		badRequest(w, err)
		return
	}
	value, err := parseUint256("value", req.Value)
	if err != nil {
		badRequest(w, err)
		return
	}
	deadline, err := parseUint256("deadline", req.Deadline)
	if err != nil {
		badRequest(w, err)
		return
	}
	sig, err := parseSignature("signature", req.Signature)
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := h.ledger.PermitCurrency(r.Context(), from, owner, value, deadline, sig); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner.Hex(), "allowance": value.Dec()})
}

type mintCurrencyRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// MintCurrency mints currency and approves the store for it. Devnet only.
// POST /v1/dev/currency/mint
func (h *LedgerHandler) MintCurrency(w http.ResponseWriter, r *http.Request) {
	var req mintCurrencyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		badRequest(w, err)
		return
	}
	amount, err := parseUint256("amount", req.Amount)
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := h.ledger.MintCurrency(r.Context(), to, amount); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"to": to.Hex(), "amount": amount.Dec()})
}

type mintAssetRequest struct {
	Collection string `json:"collection"`
	To         string `json:"to"`
	Approve    bool   `json:"approve"`
}

// MintAsset mints the next asset of a collection. Devnet only.
// POST /v1/dev/assets/mint
func (h *LedgerHandler) MintAsset(w http.ResponseWriter, r *http.Request) {
	var req mintAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		badRequest(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		badRequest(w, err)
		return
	}
	id, err := h.ledger.MintAsset(r.Context(), collection, to, req.Approve)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection": collection.Hex(),
		"token_id":   id.Dec(),
		"owner":      to.Hex(),
	})
}

type approveRequest struct {
	Owner      string `json:"owner"`
	Collection string `json:"collection"`
}

// ApproveStore makes the store an operator for an owner's assets. Devnet only.
// POST /v1/dev/assets/approve
func (h *LedgerHandler) ApproveStore(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		badRequest(w, err)
		return
	}
	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		badRequest(w, err)
		return
	}
	if err := h.ledger.ApproveStore(r.Context(), owner, collection); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner.Hex(), "collection": collection.Hex(), "approved": true})
}

// maxMineBlocks bounds a single mine request.
const maxMineBlocks = 100_000

type mineRequest struct {
	Blocks uint64 `json:"blocks"`
}

// Mine advances the chain. Devnet only.
// POST /v1/dev/mine
func (h *LedgerHandler) Mine(w http.ResponseWriter, r *http.Request) {
	var req mineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if req.Blocks == 0 {
		req.Blocks = 1
	}
	if req.Blocks > maxMineBlocks {
		writeError(w, http.StatusBadRequest, "blocks: at most 100000 per request")
		return
	}
	blk, err := h.ledger.Mine(req.Blocks)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"head": blk})
}
