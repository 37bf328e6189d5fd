package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftstore/internal/crypto"
	"github.com/alanyoungcy/nftstore/internal/server/handler"
	"github.com/alanyoungcy/nftstore/internal/service"
	"github.com/alanyoungcy/nftstore/internal/world"
)

var (
	admin  = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	seller = common.HexToAddress("0x0000000000000000000000000000000000005e11")
	buyer  = common.HexToAddress("0x000000000000000000000000000000000000b001")
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type testAPI struct {
	t  *testing.T
	h  http.Handler
	w  *world.World
	lg *service.LedgerService
}

func newTestAPI(t *testing.T, cfg Config, devnet bool) *testAPI {
	t.Helper()
	w, err := world.New(world.DevConfig(admin), discard())
	require.NoError(t, err)
	store := service.NewStoreService(w, discard())
	ledger := service.NewLedgerService(w, devnet, discard())
	h := NewHandler(cfg, Handlers{
		Health: handler.NewHealthHandler(nil, discard()),
		Store:  handler.NewStoreHandler(store, discard()),
		Ledger: handler.NewLedgerHandler(ledger, discard()),
	}, nil, discard())
	return &testAPI{t: t, h: h, w: w, lg: ledger}
}

func (a *testAPI) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *testAPI) mintAsset(to common.Address, approve bool) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/dev/assets/mint", map[string]any{
		"collection": world.DevCollection.Hex(),
		"to":         to.Hex(),
		"approve":    approve,
	})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(a.t, rec)["token_id"].(string)
}

func (a *testAPI) fund(to common.Address, amount string) {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/dev/currency/mint", map[string]any{"to": to.Hex(), "amount": amount})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
}

func lotPath(id string, suffix string) string {
	return "/v1/lots/" + world.DevCollection.Hex() + "/" + id + suffix
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, Config{}, true)
	rec := api.do(http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSaleFlow(t *testing.T) {
	api := newTestAPI(t, Config{}, true)
	id := api.mintAsset(seller, true)
	api.fund(buyer, "10000")

	rec := api.do(http.MethodPost, lotPath(id, "/sale"), map[string]any{"from": seller.Hex(), "price": "1000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	evt := decode(t, rec)
	assert.Equal(t, "Sell", evt["kind"])

	rec = api.do(http.MethodGet, lotPath(id, ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lot := decode(t, rec)
	sale := lot["sale"].(map[string]any)
	assert.Equal(t, "1000", sale["price"])
	assert.Equal(t, seller.Hex(), sale["seller"])

	rec = api.do(http.MethodPost, lotPath(id, "/buy"), map[string]any{"from": buyer.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/v1/assets/"+world.DevCollection.Hex()+"/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, buyer.Hex(), decode(t, rec)["owner"])

	rec = api.do(http.MethodGet, "/v1/accounts/"+seller.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", decode(t, rec)["currency"])

	rec = api.do(http.MethodGet, "/v1/accounts/"+buyer.Hex(), nil)
	assert.Equal(t, "9000", decode(t, rec)["currency"])

	rec = api.do(http.MethodGet, lotPath(id, ""), nil)
	assert.Nil(t, decode(t, rec)["sale"])
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t, Config{}, true)
	id := api.mintAsset(seller, true)
	api.fund(buyer, "10")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"buy without sale", http.MethodPost, lotPath(id, "/buy"), map[string]any{"from": buyer.Hex()}, http.StatusConflict},
		{"zero price", http.MethodPost, lotPath(id, "/sale"), map[string]any{"from": seller.Hex(), "price": "0"}, http.StatusBadRequest},
		{"not owner", http.MethodPost, lotPath(id, "/sale"), map[string]any{"from": buyer.Hex(), "price": "5"}, http.StatusForbidden},
		{"bad collection", http.MethodGet, "/v1/lots/nope/1", nil, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/v1/lots/" + world.DevCollection.Hex() + "/xyz", nil, http.StatusBadRequest},
		{"missing body", http.MethodPost, lotPath(id, "/buy"), nil, http.StatusBadRequest},
		{"bad sender", http.MethodPost, lotPath(id, "/buy"), map[string]any{"from": "0x12"}, http.StatusBadRequest},
		{"fees by non admin", http.MethodPut, "/v1/fees/" + world.DevCollection.Hex(), map[string]any{"from": seller.Hex(), "owner_fee_bps": 100}, http.StatusForbidden},
		{"fees over 100%", http.MethodPut, "/v1/fees/" + world.DevCollection.Hex(), map[string]any{"from": admin.Hex(), "owner_fee_bps": 9000, "staking_fee_bps": 2000}, http.StatusBadRequest},
		{"unknown asset", http.MethodGet, "/v1/assets/" + world.DevCollection.Hex() + "/999", nil, http.StatusNotFound},
		{"unknown vault", http.MethodPost, "/v1/vaults/treasury/claim", map[string]any{"from": admin.Hex()}, http.StatusNotFound},
		{"event log not configured", http.MethodGet, "/v1/events", nil, http.StatusNotFound},
		{"offer on missing asset", http.MethodPost, lotPath("999", "/offers"), map[string]any{"from": buyer.Hex(), "price": "5"}, http.StatusConflict},
		{"unfunded offer", http.MethodPost, lotPath(id, "/offers"), map[string]any{"from": buyer.Hex(), "price": "50"}, http.StatusFailedDependency},
		{"bad offer id", http.MethodPost, lotPath(id, "/offers/x/accept"), map[string]any{"from": seller.Hex()}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestFeesAndVaultClaim(t *testing.T) {
	api := newTestAPI(t, Config{}, true)
	id := api.mintAsset(seller, true)
	api.fund(buyer, "10000")

	rec := api.do(http.MethodPut, "/v1/fees/"+world.DevCollection.Hex(), map[string]any{
		"from": admin.Hex(), "owner_fee_bps": 250, "staking_fee_bps": 250,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/v1/fees/"+world.DevCollection.Hex(), nil)
	fees := decode(t, rec)
	assert.EqualValues(t, 250, fees["owner_fee_bps"])
	assert.EqualValues(t, 250, fees["staking_fee_bps"])

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, lotPath(id, "/sale"), map[string]any{"from": seller.Hex(), "price": "1000"}).Code)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, lotPath(id, "/buy"), map[string]any{"from": buyer.Hex()}).Code)

	rec = api.do(http.MethodGet, "/v1/accounts/"+seller.Hex(), nil)
	assert.Equal(t, "950", decode(t, rec)["currency"])

	rec = api.do(http.MethodPost, "/v1/vaults/owner/claim", map[string]any{"from": admin.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = api.do(http.MethodGet, "/v1/accounts/"+admin.Hex(), nil)
	assert.Equal(t, "25", decode(t, rec)["currency"])

	rec = api.do(http.MethodPost, "/v1/vaults/staking/claim", map[string]any{"from": seller.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = api.do(http.MethodGet, "/v1/accounts/"+admin.Hex(), nil)
	assert.Equal(t, "50", decode(t, rec)["currency"])
	rec = api.do(http.MethodGet, "/v1/accounts/"+seller.Hex(), nil)
	assert.Equal(t, "950", decode(t, rec)["currency"])
}

func TestOfferFlow(t *testing.T) {
	api := newTestAPI(t, Config{}, true)
	id := api.mintAsset(seller, true)
	api.fund(buyer, "500")

	rec := api.do(http.MethodPost, lotPath(id, "/offers"), map[string]any{"from": buyer.Hex(), "price": "300"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 0, decode(t, rec)["offer_id"])

	rec = api.do(http.MethodPost, lotPath(id, "/offers/0/accept"), map[string]any{"from": buyer.Hex()})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, lotPath(id, "/offers/0/accept"), map[string]any{"from": seller.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "AcceptOffer", decode(t, rec)["kind"])

	rec = api.do(http.MethodGet, lotPath(id, ""), nil)
	offers := decode(t, rec)["offers"].([]any)
	require.Len(t, offers, 1)
	assert.Equal(t, false, offers[0].(map[string]any)["open"])

	rec = api.do(http.MethodPost, lotPath(id, "/offers/0/cancel"), map[string]any{"from": buyer.Hex()})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuctionFlow(t *testing.T) {
	api := newTestAPI(t, Config{}, true)
	id := api.mintAsset(seller, true)
	api.fund(buyer, "1000")

	head := decode(t, api.do(http.MethodGet, "/v1/chain", nil))["head"].(map[string]any)["height"].(float64)
	end := uint64(head) + 5

	rec := api.do(http.MethodPost, lotPath(id, "/auction"), map[string]any{
		"from": seller.Hex(), "start_price": "100", "end_height": end,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, lotPath(id, "/auction/bid"), map[string]any{"from": buyer.Hex(), "amount": "99"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, lotPath(id, "/auction/bid"), map[string]any{"from": buyer.Hex(), "amount": "150"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, lotPath(id, "/auction/claim"), map[string]any{"from": buyer.Hex()})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(http.MethodPost, "/v1/dev/mine", map[string]any{"blocks": 10})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPost, lotPath(id, "/auction/claim"), map[string]any{"from": buyer.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	evt := decode(t, rec)
	assert.Equal(t, "Claim", evt["kind"])
	assert.Equal(t, "150", evt["amount"])

	rec = api.do(http.MethodGet, "/v1/assets/"+world.DevCollection.Hex()+"/"+id, nil)
	assert.Equal(t, buyer.Hex(), decode(t, rec)["owner"])
}

func TestSellWithPermit(t *testing.T) {
	api := newTestAPI(t, Config{}, true)
	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)
	id := api.mintAsset(signer.Address(), false)

	rec := api.do(http.MethodGet, "/v1/domains/assets/"+world.DevCollection.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, world.DevCollection.Hex(), decode(t, rec)["verifying_contract"])

	d, err := api.lg.AssetDomain(world.DevCollection)
	require.NoError(t, err)
	deadline := uint256.NewInt(uint64(time.Now().Add(time.Hour).Unix()))
	tokenID, err := uint256.FromDecimal(id)
	require.NoError(t, err)
	sig, err := signer.SignAssetPermit(d, world.DevStore, tokenID, 0, deadline)
	require.NoError(t, err)

	body := map[string]any{
		"from":  signer.Address().Hex(),
		"price": "0x64",
		"permit": map[string]any{
			"deadline":  deadline.Dec(),
			"signature": crypto.EncodeSignature(sig),
		},
	}
	rec = api.do(http.MethodPost, lotPath(id, "/sale"), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "100", decode(t, rec)["amount"])

	// Replaying the consumed permit fails its signature check.
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, lotPath(id, "/sale/cancel"), map[string]any{"from": signer.Address().Hex()}).Code)
	rec = api.do(http.MethodPost, lotPath(id, "/sale"), body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDevnetEndpointsDisabled(t *testing.T) {
	api := newTestAPI(t, Config{}, false)
	rec := api.do(http.MethodPost, "/v1/dev/mine", map[string]any{"blocks": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodGet, "/v1/chain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode(t, rec)
	assert.Equal(t, false, info["devnet"])
	assert.EqualValues(t, 1337, info["chain_id"])
}

func TestMineRejectsHugeRequests(t *testing.T) {
	api := newTestAPI(t, Config{}, true)
	rec := api.do(http.MethodPost, "/v1/dev/mine", map[string]any{"blocks": 1_000_000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthGuardsMutations(t *testing.T) {
	api := newTestAPI(t, Config{APIKey: "s3cret"}, true)

	rec := api.do(http.MethodGet, "/v1/chain", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPost, "/v1/dev/mine", map[string]any{"blocks": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodPost, "/v1/dev/mine", map[string]any{"blocks": 1}, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodPost, "/v1/dev/mine", map[string]any{"blocks": 1}, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

type denyLimiter struct{ calls int }

func (d *denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	d.calls++
	return d.calls <= 1, nil
}

func (d *denyLimiter) Wait(context.Context, string) error { return nil }

func TestRateLimit(t *testing.T) {
	lim := &denyLimiter{}
	api := newTestAPI(t, Config{RateLimiter: lim, RateLimit: 1, RateWindow: 30 * time.Second}, true)

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/v1/chain", nil).Code)
	rec := api.do(http.MethodGet, "/v1/chain", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestCORSAndRequestID(t *testing.T) {
	api := newTestAPI(t, Config{CORSOrigins: []string{"http://app.local"}}, true)

	rec := api.do(http.MethodOptions, "/v1/chain", nil, "Origin", "http://app.local")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.local", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = api.do(http.MethodGet, "/v1/chain", nil, "Origin", "http://evil.local", "X-Request-ID", "req-42")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
