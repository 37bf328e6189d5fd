// Package service admits store operations, then fans committed events out to
// the bus, the event log, the audit log and notifiers.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/nftstore/internal/chain"
	"github.com/alanyoungcy/nftstore/internal/domain"
	"github.com/alanyoungcy/nftstore/internal/market"
	"github.com/alanyoungcy/nftstore/internal/world"
)

// EventNotifier is told about committed events.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, evt domain.Event) error
}

// StoreService is the entry point for every store operation.
type StoreService struct {
	world    *world.World
	bus      domain.SignalBus
	events   domain.EventStore
	audit    domain.AuditStore
	notifier EventNotifier
	limiter  domain.RateLimiter
	limit    int
	window   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewStoreService creates a StoreService over w. Sinks are optional and
// attached with the With* methods.
func NewStoreService(w *world.World, logger *slog.Logger) *StoreService {
	return &StoreService{
		world:  w,
		now:    time.Now,
		logger: logger.With(slog.String("component", "store_service")),
	}
}

func (s *StoreService) WithBus(bus domain.SignalBus) *StoreService {
	s.bus = bus
	return s
}

func (s *StoreService) WithEventStore(events domain.EventStore) *StoreService {
	s.events = events
	return s
}

func (s *StoreService) WithAudit(audit domain.AuditStore) *StoreService {
	s.audit = audit
	return s
}

func (s *StoreService) WithNotifier(n EventNotifier) *StoreService {
	s.notifier = n
	return s
}

// WithRateLimit caps each caller at limit operations per window.
func (s *StoreService) WithRateLimit(limiter domain.RateLimiter, limit int, window time.Duration) *StoreService {
	s.limiter = limiter
	s.limit = limit
	s.window = window
	return s
}

func (s *StoreService) Sell(ctx context.Context, from, collection common.Address, id, price *uint256.Int) (domain.Event, error) {
	return s.submit(ctx, "sell", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.Sell(tx, collection, id, price)
	})
}

func (s *StoreService) SellWithPermit(ctx context.Context, from, collection common.Address, id, price *uint256.Int, p market.Permit) (domain.Event, error) {
	return s.submit(ctx, "sell_with_permit", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.SellWithPermit(tx, collection, id, price, p)
	})
}

func (s *StoreService) CancelSale(ctx context.Context, from, collection common.Address, id *uint256.Int) (domain.Event, error) {
	return s.submit(ctx, "cancel_sale", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.CancelSale(tx, collection, id)
	})
}

func (s *StoreService) Buy(ctx context.Context, from, collection common.Address, id *uint256.Int) (domain.Event, error) {
	return s.submit(ctx, "buy", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.Buy(tx, collection, id)
	})
}

func (s *StoreService) Offer(ctx context.Context, from, collection common.Address, id, price *uint256.Int) (domain.Event, error) {
	return s.submit(ctx, "offer", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.Offer(tx, collection, id, price)
	})
}

func (s *StoreService) CancelOffer(ctx context.Context, from, collection common.Address, id *uint256.Int, offerID uint64) (domain.Event, error) {
	return s.submit(ctx, "cancel_offer", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.CancelOffer(tx, collection, id, offerID)
	})
}

func (s *StoreService) AcceptOffer(ctx context.Context, from, collection common.Address, id *uint256.Int, offerID uint64) (domain.Event, error) {
	return s.submit(ctx, "accept_offer", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.AcceptOffer(tx, collection, id, offerID)
	})
}

func (s *StoreService) Auction(ctx context.Context, from, collection common.Address, id, startPrice *uint256.Int, endHeight uint64) (domain.Event, error) {
	return s.submit(ctx, "auction", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.Auction(tx, collection, id, startPrice, endHeight)
	})
}

func (s *StoreService) AuctionWithPermit(ctx context.Context, from, collection common.Address, id, startPrice *uint256.Int, endHeight uint64, p market.Permit) (domain.Event, error) {
	return s.submit(ctx, "auction_with_permit", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.AuctionWithPermit(tx, collection, id, startPrice, endHeight, p)
	})
}

func (s *StoreService) Bid(ctx context.Context, from, collection common.Address, id, amount *uint256.Int) (domain.Event, error) {
	return s.submit(ctx, "bid", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.Bid(tx, collection, id, amount)
	})
}

func (s *StoreService) CancelAuction(ctx context.Context, from, collection common.Address, id *uint256.Int) (domain.Event, error) {
	return s.submit(ctx, "cancel_auction", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.CancelAuction(tx, collection, id)
	})
}

func (s *StoreService) Claim(ctx context.Context, from, collection common.Address, id *uint256.Int) (domain.Event, error) {
	return s.submit(ctx, "claim", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.Claim(tx, collection, id)
	})
}

func (s *StoreService) SetFees(ctx context.Context, from, collection common.Address, cfg domain.FeeConfig) (domain.Event, error) {
	return s.submit(ctx, "set_fees", from, func(tx domain.Tx) (domain.Event, error) {
		return s.world.Market.SetFees(tx, collection, cfg)
	})
}

// ClaimVault pays out the named fee vault to its beneficiary.
func (s *StoreService) ClaimVault(ctx context.Context, from common.Address, name string) (chain.Block, error) {
	if err := s.admit(ctx, from); err != nil {
		return chain.Block{}, err
	}
	v, err := s.world.VaultByName(name)
	if err != nil {
		return chain.Block{}, fmt.Errorf("store_service: claim vault: %w", err)
	}
	blk, err := s.world.Exec(ctx, from, v.Claim)
	if err != nil {
		s.logger.WarnContext(ctx, "vault claim rejected",
			slog.String("vault", name),
			slog.String("from", from.Hex()),
			slog.String("error", err.Error()),
		)
		return chain.Block{}, fmt.Errorf("store_service: claim vault %s: %w", name, err)
	}
	s.auditLog(context.WithoutCancel(ctx), "vault_claimed", map[string]any{
		"vault":       name,
		"beneficiary": v.Beneficiary().Hex(),
		"height":      blk.Height,
	})
	return blk, nil
}

// Lot returns a consistent snapshot of one lot.
func (s *StoreService) Lot(key domain.LotKey) domain.LotView {
	var view domain.LotView
	s.world.Chain.View(func(chain.Block) { view = s.world.Market.Lot(key) })
	return view
}

// Fees returns the fee configuration of collection.
func (s *StoreService) Fees(collection common.Address) domain.FeeConfig {
	var cfg domain.FeeConfig
	s.world.Chain.View(func(chain.Block) { cfg = s.world.Market.Fees(collection) })
	return cfg
}

// Admin returns the fee administrator.
func (s *StoreService) Admin() common.Address { return s.world.Market.Admin() }

// Head returns the latest block.
func (s *StoreService) Head() chain.Block { return s.world.Chain.Head() }

// Events lists persisted events for one lot.
func (s *StoreService) Events(ctx context.Context, key domain.LotKey, opts domain.ListOpts) ([]domain.Event, error) {
	if s.events == nil {
		return nil, fmt.Errorf("store_service: event store: %w", domain.ErrNotFound)
	}
	return s.events.ListByLot(ctx, key, opts)
}

// RecentEvents lists the newest persisted events.
func (s *StoreService) RecentEvents(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	if s.events == nil {
		return nil, fmt.Errorf("store_service: event store: %w", domain.ErrNotFound)
	}
	return s.events.ListRecent(ctx, opts)
}

func (s *StoreService) submit(ctx context.Context, op string, from common.Address, fn func(tx domain.Tx) (domain.Event, error)) (domain.Event, error) {
	if err := s.admit(ctx, from); err != nil {
		return domain.Event{}, err
	}

	var evt domain.Event
	_, err := s.world.Exec(ctx, from, func(tx domain.Tx) error {
		var err error
		evt, err = fn(tx)
		return err
	})
	if err != nil {
		s.logger.WarnContext(ctx, "operation rejected",
			slog.String("op", op),
			slog.String("from", from.Hex()),
			slog.String("error", err.Error()),
		)
		return domain.Event{}, fmt.Errorf("store_service: %s: %w", op, err)
	}

	evt.ID = uuid.NewString()
	evt.CreatedAt = s.now().UTC()
	s.publish(context.WithoutCancel(ctx), evt)
	return evt, nil
}

func (s *StoreService) admit(ctx context.Context, from common.Address) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, "store:"+from.Hex(), s.limit, s.window)
	if err != nil {
		return fmt.Errorf("store_service: rate limiter: %w", err)
	}
	if !allowed {
		return fmt.Errorf("store_service: %s: %w", from.Hex(), domain.ErrRateLimited)
	}
	return nil
}

// publish fans a committed event out to every sink. The operation is already
// final, so sink failures are only logged.
func (s *StoreService) publish(ctx context.Context, evt domain.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal event failed", slog.String("error", err.Error()))
		return
	}

	if s.bus != nil {
		channels := []string{domain.ChannelEvents}
		if evt.Kind != domain.EventSetFees {
			channels = append(channels, domain.LotChannel(evt.Lot()))
		}
		for _, ch := range channels {
			if err := s.bus.Publish(ctx, ch, payload); err != nil {
				s.logger.WarnContext(ctx, "publish event failed",
					slog.String("channel", ch),
					slog.String("event_id", evt.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		if err := s.bus.StreamAppend(ctx, domain.StreamEvents, payload); err != nil {
			s.logger.WarnContext(ctx, "stream append failed",
				slog.String("event_id", evt.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.events != nil {
		if err := s.events.Append(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "persist event failed",
				slog.String("event_id", evt.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.auditLog(ctx, "store_"+string(evt.Kind), map[string]any{
		"event_id": evt.ID,
		"args":     evt.Args(),
		"height":   evt.Height,
	})

	if s.notifier != nil {
		if err := s.notifier.NotifyEvent(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("event_id", evt.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "event committed",
		slog.String("event_id", evt.ID),
		slog.String("kind", string(evt.Kind)),
		slog.Uint64("height", evt.Height),
	)
}

func (s *StoreService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
