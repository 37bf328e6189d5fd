package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func testEvent(kind domain.EventKind, amount uint64) domain.Event {
	return domain.Event{
		Kind:       kind,
		Collection: common.HexToAddress("0x5710"),
		TokenID:    *uint256.NewInt(3),
		Actor:      common.HexToAddress("0xb001"),
		Amount:     *uint256.NewInt(amount),
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyEventFiltersByKind(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discard())

	require.NoError(t, n.NotifyEvent(context.Background(), testEvent(domain.EventBid, 10)))
	require.NoError(t, n.NotifyEvent(context.Background(), testEvent(domain.EventBuy, 10)))
	require.NoError(t, n.NotifyEvent(context.Background(), testEvent(domain.EventClaim, 0)))
	assert.Equal(t, []string{"Sale settled", "Auction expired"}, s.titles)
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, []string{"Offer"}, discard())

	err := n.NotifyEvent(context.Background(), testEvent(domain.EventOffer, 5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.titles, 1)
}

func TestFormat(t *testing.T) {
	title, msg := Format(testEvent(domain.EventClaim, 150))
	assert.Equal(t, "Auction settled", title)
	assert.Contains(t, msg, "for 150")
	assert.Contains(t, msg, "#3")
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithBaseURL(srv.URL)
	require.NoError(t, s.Send(context.Background(), "T", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*T*\nbody", got["text"])
}

func TestDiscordSenderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "T", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}
