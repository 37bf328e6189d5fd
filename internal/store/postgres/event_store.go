package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

var _ domain.EventStore = (*EventStore)(nil)

// EventStore implements domain.EventStore. Each row keeps the full JSON event
// alongside the columns it is queried by.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts evt. Appending an id twice is a no-op.
func (s *EventStore) Append(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("postgres: marshal event: %w", err)
	}
	var offerID *int64
	if evt.OfferID != nil {
		v := int64(*evt.OfferID)
		offerID = &v
	}

	const query = `
		INSERT INTO store_events
			(id, kind, collection, token_id, actor, offer_id, amount, height, block_time, payload, created_at)
		VALUES
			($1, $2, $3, CAST($4::text AS NUMERIC), $5, $6, CAST($7::text AS NUMERIC), $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`
	_, err = s.pool.Exec(ctx, query,
		evt.ID,
		string(evt.Kind),
		evt.Collection.Hex(),
		evt.TokenID.Dec(),
		evt.Actor.Hex(),
		offerID,
		evt.Amount.Dec(),
		int64(evt.Height),
		int64(evt.BlockTime),
		payload,
		evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", evt.ID, err)
	}
	return nil
}

// ListByLot returns the events of one lot, newest first.
func (s *EventStore) ListByLot(ctx context.Context, key domain.LotKey, opts domain.ListOpts) ([]domain.Event, error) {
	query, args := newListQuery(
		`SELECT payload FROM store_events WHERE collection = $1 AND token_id = CAST($2::text AS NUMERIC)`,
		key.Collection.Hex(), key.ID.Dec(),
	).apply(opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for %s: %w", key, err)
	}
	return scanEvents(rows)
}

// ListRecent returns the newest events across all lots.
func (s *EventStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	query, args := newListQuery(`SELECT payload FROM store_events WHERE 1=1`).apply(opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent events: %w", err)
	}
	return scanEvents(rows)
}

// ListBefore returns up to limit events created before the cutoff, oldest first.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Event, error) {
	const query = `SELECT payload FROM store_events WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before.Format(time.RFC3339), err)
	}
	return scanEvents(rows)
}

// DeleteBefore removes events created before the cutoff.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM store_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanEvents(rows pgx.Rows) ([]domain.Event, error) {
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		var evt domain.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("postgres: decode event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan events rows: %w", err)
	}
	return events, nil
}
