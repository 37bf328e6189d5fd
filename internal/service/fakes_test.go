package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  [][]byte
	err       error
}

func newFakeBus() *fakeBus { return &fakeBus{published: make(map[string][][]byte)} }

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.streamed = append(b.streamed, payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeEvents struct {
	events []domain.Event
	err    error
}

func (f *fakeEvents) Append(_ context.Context, evt domain.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeEvents) ListByLot(_ context.Context, key domain.LotKey, _ domain.ListOpts) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range f.events {
		if e.Lot() == key {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvents) ListRecent(context.Context, domain.ListOpts) ([]domain.Event, error) {
	return f.events, nil
}

func (f *fakeEvents) ListBefore(context.Context, time.Time, int) ([]domain.Event, error) {
	return nil, nil
}

func (f *fakeEvents) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeAudit struct {
	entries []string
}

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.entries = append(f.entries, event)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeLimiter struct {
	allow bool
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, nil
}

func (f *fakeLimiter) Wait(context.Context, string) error { return nil }

type fakeNotifier struct {
	kinds []domain.EventKind
}

func (f *fakeNotifier) NotifyEvent(_ context.Context, evt domain.Event) error {
	f.kinds = append(f.kinds, evt.Kind)
	return nil
}
