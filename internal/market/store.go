// Package market implements the lot state machine: fixed-price sales, standing
// offers and English auctions over escrowed assets and currency.
package market

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/chain"
	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/fee"
)

// Escrow moves value into and out of custody.
type Escrow interface {
	Custody() common.Address
	OwnerOf(collection common.Address, id *uint256.Int) (common.Address, error)
	PermitAsset(tx domain.Tx, collection, owner common.Address, id, deadline *uint256.Int, sig []byte) error
	PullAsset(tx domain.Tx, collection, owner common.Address, id *uint256.Int) error
	PushAsset(tx domain.Tx, collection, to common.Address, id *uint256.Int) error
	TransferAsset(tx domain.Tx, collection, from, to common.Address, id *uint256.Int) error
	PullCurrency(tx domain.Tx, from common.Address, amount *uint256.Int) error
	PushCurrency(tx domain.Tx, to common.Address, amount *uint256.Int) error
}

// Settler distributes a settlement amount held in custody.
type Settler interface {
	Settle(tx domain.Tx, seller common.Address, amount *uint256.Int, cfg domain.FeeConfig) (fee.Split, error)
}

// Permit authorizes custody of an asset in the same operation that lists it.
type Permit struct {
	Deadline  uint256.Int
	Signature []byte
}

// Store holds every lot record and the per-collection fee configuration.
// Callers must run each operation inside a chain.Tx; Store itself is not
// safe for concurrent use.
type Store struct {
	admin   common.Address
	escrow  Escrow
	fees    Settler
	lots    map[domain.LotKey]*lot
	rates   map[common.Address]domain.FeeConfig
	entered bool
	logger  *slog.Logger
}

// New creates a Store administered by admin.
func New(admin common.Address, escrow Escrow, fees Settler, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		admin:  admin,
		escrow: escrow,
		fees:   fees,
		lots:   make(map[domain.LotKey]*lot),
		rates:  make(map[common.Address]domain.FeeConfig),
		logger: logger.With(slog.String("component", "market")),
	}
}

// Admin returns the address allowed to configure fees.
func (s *Store) Admin() common.Address { return s.admin }

// Fees returns the fee configuration of collection. Unset collections pay no fees.
func (s *Store) Fees(collection common.Address) domain.FeeConfig {
	return s.rates[collection]
}

// SetFees configures the fee rates applied to settlements in collection.
func (s *Store) SetFees(tx domain.Tx, collection common.Address, cfg domain.FeeConfig) (domain.Event, error) {
	exit, err := s.enter()
	if err != nil {
		return domain.Event{}, err
	}
	defer exit()

	if tx.Sender() != s.admin {
		return domain.Event{}, fmt.Errorf("market: set fees: %w: caller %s is not admin", domain.ErrUnauthorized, tx.Sender().Hex())
	}
	if err := cfg.Validate(); err != nil {
		return domain.Event{}, fmt.Errorf("market: set fees: %w", err)
	}
	chain.Set(tx, s.rates, collection, cfg)

	s.logger.Info("fees set",
		slog.String("collection", collection.Hex()),
		slog.Int("owner_fee_bps", int(cfg.OwnerFeeBps)),
		slog.Int("staking_fee_bps", int(cfg.StakingFeeBps)),
	)
	evt := newEvent(tx, domain.EventSetFees, domain.LotKey{Collection: collection}, s.admin)
	evt.Fees = &cfg
	return evt, nil
}

// Lot returns a snapshot of everything recorded for key.
func (s *Store) Lot(key domain.LotKey) domain.LotView {
	view := domain.LotView{Key: key}
	l, ok := s.lots[key]
	if !ok {
		return view
	}
	if l.sale != nil {
		sale := *l.sale
		view.Sale = &sale
	}
	if l.auction != nil {
		a := *l.auction
		view.Auction = &a
	}
	view.Offers = append([]domain.Offer(nil), l.offers...)
	return view
}

// enter guards against an external call re-entering the state machine.
func (s *Store) enter() (func(), error) {
	if s.entered {
		return nil, fmt.Errorf("market: %w: reentrant call", domain.ErrInvalidState)
	}
	s.entered = true
	return func() { s.entered = false }, nil
}

// lot returns the record for key, creating an empty one if needed.
func (s *Store) lot(tx domain.Tx, key domain.LotKey) *lot {
	l, ok := s.lots[key]
	if !ok {
		l = &lot{}
		chain.Set(tx, s.lots, key, l)
	}
	return l
}

// requireOwner checks that the caller is the ledger owner of key.
func (s *Store) requireOwner(tx domain.Tx, key domain.LotKey) error {
	owner, err := s.escrow.OwnerOf(key.Collection, &key.ID)
	if err != nil {
		return err
	}
	if owner != tx.Sender() {
		return fmt.Errorf("%w: %s is not the owner of %s", domain.ErrUnauthorized, tx.Sender().Hex(), key)
	}
	return nil
}

func newEvent(tx domain.Tx, kind domain.EventKind, key domain.LotKey, actor common.Address) domain.Event {
	return domain.Event{
		Kind:       kind,
		Collection: key.Collection,
		TokenID:    key.ID,
		Actor:      actor,
		Height:     tx.Height(),
		BlockTime:  tx.Time(),
	}
}
